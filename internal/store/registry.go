package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// VersionHash maps a content digest to the entity and transaction that first
// produced it. content_hash is globally unique: identical canonical content
// always resolves to the same row, regardless of when it was rewritten.
type VersionHash struct {
	ID            int64
	EntityID      int64
	TransactionID int64
	ContentHash   string
	CreatedAt     time.Time
}

// VersionTag binds a human-readable name to exactly one version hash.
type VersionTag struct {
	ID            int64
	VersionHashID int64
	TagName       string
	TransactionID int64
	CreatedAt     time.Time
}

// RegisterHash records a content digest inside tx. Registration is
// idempotent: if the digest already exists, the existing row is returned
// and created=false - this is what lets a no-op rewrite resolve to the same
// stable reference without a second row.
func RegisterHash(ctx context.Context, tx *sql.Tx, entityID, txID int64, digest string, createdAt time.Time) (VersionHash, bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO version_hashes (entity_id, transaction_id, content_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`, entityID, txID, digest, createdAt.UTC().Format(timeLayout))
	if err != nil {
		return VersionHash{}, false, fmt.Errorf("register hash: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return VersionHash{}, false, fmt.Errorf("register hash: rows affected: %w", err)
	}

	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return VersionHash{}, false, fmt.Errorf("register hash: last insert id: %w", err)
		}
		return VersionHash{
			ID:            id,
			EntityID:      entityID,
			TransactionID: txID,
			ContentHash:   digest,
			CreatedAt:     createdAt.UTC(),
		}, true, nil
	}

	// Conflict - digest already registered, fetch the existing row.
	row := tx.QueryRowContext(ctx, `
		SELECT id, entity_id, transaction_id, content_hash, created_at
		FROM version_hashes
		WHERE content_hash = ?
	`, digest)
	vh, err := scanVersionHash(row)
	if err != nil {
		return VersionHash{}, false, fmt.Errorf("register hash: select existing: %w", err)
	}
	return vh, false, nil
}

// GetHashByDigest resolves a content digest to its registry row.
// Returns sql.ErrNoRows for an unknown digest.
func (s *Store) GetHashByDigest(ctx context.Context, digest string) (VersionHash, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, transaction_id, content_hash, created_at
		FROM version_hashes
		WHERE content_hash = ?
	`, digest)
	return scanVersionHash(row)
}

// GetHashByDigestTx is GetHashByDigest inside a write transaction.
func GetHashByDigestTx(ctx context.Context, tx *sql.Tx, digest string) (VersionHash, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, entity_id, transaction_id, content_hash, created_at
		FROM version_hashes
		WHERE content_hash = ?
	`, digest)
	return scanVersionHash(row)
}

// GetHashByID retrieves a version hash row by primary key.
func (s *Store) GetHashByID(ctx context.Context, id int64) (VersionHash, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, transaction_id, content_hash, created_at
		FROM version_hashes
		WHERE id = ?
	`, id)
	return scanVersionHash(row)
}

// HashesForEntity returns the registered hashes of an entity ordered by
// transaction id. Used by registry verification.
func (s *Store) HashesForEntity(ctx context.Context, entityID int64) ([]VersionHash, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, transaction_id, content_hash, created_at
		FROM version_hashes
		WHERE entity_id = ?
		ORDER BY transaction_id ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("hashes for entity: %w", err)
	}
	defer rows.Close()

	var hashes []VersionHash
	for rows.Next() {
		vh, err := scanVersionHash(rows)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, vh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hashes: %w", err)
	}

	if hashes == nil {
		hashes = []VersionHash{}
	}
	return hashes, nil
}

// InsertTag binds a name to a version hash inside tx. A duplicate name
// surfaces as a unique-constraint violation (see IsUniqueViolation); moving
// an existing name requires Retag.
func InsertTag(ctx context.Context, tx *sql.Tx, versionHashID int64, name string, txID int64, createdAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO version_tags (version_hash_id, tag_name, transaction_id, created_at)
		VALUES (?, ?, ?, ?)
	`, versionHashID, name, txID, createdAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert tag: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert tag: last insert id: %w", err)
	}
	return id, nil
}

// RetagTx moves an existing tag name to a different version hash inside tx,
// restamping its transaction so the move is auditable.
// Returns sql.ErrNoRows when the tag name does not exist.
func RetagTx(ctx context.Context, tx *sql.Tx, name string, newVersionHashID, txID int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE version_tags
		SET version_hash_id = ?, transaction_id = ?
		WHERE tag_name = ?
	`, newVersionHashID, txID, name)
	if err != nil {
		return fmt.Errorf("retag: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retag: rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetTagByName resolves a tag name. Returns sql.ErrNoRows when unknown.
func (s *Store) GetTagByName(ctx context.Context, name string) (VersionTag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version_hash_id, tag_name, transaction_id, created_at
		FROM version_tags
		WHERE tag_name = ?
	`, name)
	return scanVersionTag(row)
}

// TagsForHash returns every tag bound to a version hash, ordered by name.
func (s *Store) TagsForHash(ctx context.Context, versionHashID int64) ([]VersionTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version_hash_id, tag_name, transaction_id, created_at
		FROM version_tags
		WHERE version_hash_id = ?
		ORDER BY tag_name ASC
	`, versionHashID)
	if err != nil {
		return nil, fmt.Errorf("tags for hash: %w", err)
	}
	defer rows.Close()

	var tags []VersionTag
	for rows.Next() {
		t, err := scanVersionTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	if tags == nil {
		tags = []VersionTag{}
	}
	return tags, nil
}

func scanVersionHash(row rowScanner) (VersionHash, error) {
	var (
		vh        VersionHash
		createdAt string
	)
	if err := row.Scan(&vh.ID, &vh.EntityID, &vh.TransactionID, &vh.ContentHash, &createdAt); err != nil {
		return VersionHash{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return VersionHash{}, fmt.Errorf("version hash %d: parse created_at: %w", vh.ID, err)
	}
	vh.CreatedAt = t
	return vh, nil
}

func scanVersionTag(row rowScanner) (VersionTag, error) {
	var (
		vt        VersionTag
		createdAt string
	)
	if err := row.Scan(&vt.ID, &vt.VersionHashID, &vt.TagName, &vt.TransactionID, &createdAt); err != nil {
		return VersionTag{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return VersionTag{}, fmt.Errorf("version tag %d: parse created_at: %w", vt.ID, err)
	}
	vt.CreatedAt = t
	return vt, nil
}
