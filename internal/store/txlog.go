package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Transaction is an immutable audit record. Every committed mutation belongs
// to exactly one transaction; ids are strictly increasing in commit order
// (AUTOINCREMENT - never reused, never reordered).
type Transaction struct {
	ID            int64
	IssuedAt      time.Time
	ActorID       string
	OriginAddress string
	RequestID     string
}

// timeLayout is the stored timestamp format (RFC 3339, UTC, nanoseconds).
const timeLayout = time.RFC3339Nano

// InsertTransaction allocates the next transaction id inside tx.
// The AUTOINCREMENT allocation is atomic with the rest of the write: if the
// enclosing SQL transaction rolls back, the id is burned but nothing
// references it, so monotonicity of committed ids is preserved.
func InsertTransaction(ctx context.Context, tx *sql.Tx, rec Transaction) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (issued_at, actor_id, origin_address, request_id)
		VALUES (?, ?, ?, ?)
	`,
		rec.IssuedAt.UTC().Format(timeLayout),
		rec.ActorID,
		rec.OriginAddress,
		rec.RequestID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction: last insert id: %w", err)
	}
	return id, nil
}

// GetTransaction retrieves a transaction record by id.
// Returns sql.ErrNoRows if it does not exist.
func (s *Store) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	var (
		rec      Transaction
		issuedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, issued_at, actor_id, origin_address, request_id
		FROM transactions
		WHERE id = ?
	`, id).Scan(&rec.ID, &issuedAt, &rec.ActorID, &rec.OriginAddress, &rec.RequestID)
	if err != nil {
		return Transaction{}, err
	}

	rec.IssuedAt, err = time.Parse(timeLayout, issuedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %d: parse issued_at: %w", id, err)
	}
	return rec, nil
}

// MaxTransactionID returns the highest committed transaction id, or 0 when
// the log is empty.
func (s *Store) MaxTransactionID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM transactions`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max transaction id: %w", err)
	}
	return max.Int64, nil
}
