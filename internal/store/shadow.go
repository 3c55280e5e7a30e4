package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/schema"
)

// Operation is the kind of mutation a shadow record captures.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ShadowRecord is one historical row state of an entity. The half-open range
// [TransactionID, EndTransactionID) is the validity window; EndTransactionID
// nil marks the currently open version (or, for a delete record, the
// terminal state).
type ShadowRecord struct {
	EntityID         int64
	TransactionID    int64
	EndTransactionID *int64
	Operation        Operation
	Snapshot         attr.Snapshot
}

// ensureShadowTable creates the shadow table for an entity type if missing
// and adds columns for attributes declared after the table was created.
// Added columns backfill existing rows with NULL - an explicit "unknown"
// that decodes as an absent snapshot key, never an error.
func (s *Store) ensureShadowTable(t schema.EntityType) error {
	var ddl strings.Builder
	fmt.Fprintf(&ddl, "CREATE TABLE IF NOT EXISTS %q (\n", t.Table())
	ddl.WriteString("\tentity_id INTEGER NOT NULL,\n")
	ddl.WriteString("\ttransaction_id INTEGER NOT NULL REFERENCES transactions (id),\n")
	ddl.WriteString("\tend_transaction_id INTEGER REFERENCES transactions (id),\n")
	ddl.WriteString("\toperation_kind TEXT NOT NULL,\n")
	for _, a := range t.Attributes {
		fmt.Fprintf(&ddl, "\t%q %s,\n", a.Name, sqlType(a.Kind))
	}
	ddl.WriteString("\tPRIMARY KEY (entity_id, transaction_id)\n)")

	if _, err := s.db.Exec(ddl.String()); err != nil {
		return fmt.Errorf("create %s: %w", t.Table(), err)
	}

	cols, err := tableColumns(s.db, t.Table())
	if err != nil {
		return err
	}
	for _, a := range t.Attributes {
		if cols[a.Name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %q ADD COLUMN %q %s", t.Table(), a.Name, sqlType(a.Kind))
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", t.Table(), a.Name, err)
		}
		s.log.WithFields(logrus.Fields{
			"table":     t.Table(),
			"attribute": a.Name,
			"kind":      a.Kind,
		}).Info("shadow table gained attribute column")
	}

	return nil
}

func sqlType(k schema.Kind) string {
	switch k {
	case schema.KindInt, schema.KindBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// AppendShadow appends a shadow record inside tx. The entity's currently
// open record (end_transaction_id IS NULL) is closed at rec.TransactionID
// first, so the per-entity ranges tile with no gaps and no overlaps.
// Delete records are inserted open: the reader treats them as NotFound.
func AppendShadow(ctx context.Context, tx *sql.Tx, t schema.EntityType, rec ShadowRecord) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %q SET end_transaction_id = ?
		WHERE entity_id = ? AND end_transaction_id IS NULL
	`, t.Table()), rec.TransactionID, rec.EntityID)
	if err != nil {
		return fmt.Errorf("close open shadow record: %w", err)
	}

	cols := []string{"entity_id", "transaction_id", "end_transaction_id", "operation_kind"}
	args := []any{rec.EntityID, rec.TransactionID, nil, string(rec.Operation)}

	for _, a := range t.Attributes {
		v, ok := rec.Snapshot[a.Name]
		if !ok {
			continue
		}
		enc, err := encodeColumn(a, v)
		if err != nil {
			return err
		}
		cols = append(cols, a.Name)
		args = append(args, enc)
	}

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = "?"
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)",
		t.Table(), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("append shadow record: %w", err)
	}

	return nil
}

// encodeColumn converts an attribute value to its SQL representation.
// Objects and arrays are stored as canonical JSON text so that a stored
// snapshot re-hashes to the digest it was registered under.
func encodeColumn(a schema.Attribute, v attr.Value) (any, error) {
	if _, isNull := v.(attr.Null); isNull {
		return nil, nil
	}
	switch a.Kind {
	case schema.KindString:
		s, ok := v.(attr.String)
		if !ok {
			return nil, fmt.Errorf("attribute %q: expected string", a.Name)
		}
		return string(s), nil
	case schema.KindInt:
		n, ok := v.(attr.Int)
		if !ok {
			return nil, fmt.Errorf("attribute %q: expected int", a.Name)
		}
		return int64(n), nil
	case schema.KindBool:
		b, ok := v.(attr.Bool)
		if !ok {
			return nil, fmt.Errorf("attribute %q: expected bool", a.Name)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case schema.KindObject, schema.KindArray:
		data, err := attr.MarshalCanonical(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("attribute %q: unknown kind %q", a.Name, a.Kind)
}

// OpenShadowTx returns the currently open shadow record for an entity inside
// a write transaction, or found=false when the entity has no open version.
func OpenShadowTx(ctx context.Context, tx *sql.Tx, t schema.EntityType, entityID int64) (ShadowRecord, bool, error) {
	query := openShadowQuery(t)
	row := tx.QueryRowContext(ctx, query, entityID)
	rec, err := scanShadow(row, t)
	if err == sql.ErrNoRows {
		return ShadowRecord{}, false, nil
	}
	if err != nil {
		return ShadowRecord{}, false, err
	}
	return rec, true, nil
}

// OpenShadow is OpenShadowTx outside a write transaction.
func (s *Store) OpenShadow(ctx context.Context, t schema.EntityType, entityID int64) (ShadowRecord, bool, error) {
	query := openShadowQuery(t)
	row := s.db.QueryRowContext(ctx, query, entityID)
	rec, err := scanShadow(row, t)
	if err == sql.ErrNoRows {
		return ShadowRecord{}, false, nil
	}
	if err != nil {
		return ShadowRecord{}, false, err
	}
	return rec, true, nil
}

func openShadowQuery(t schema.EntityType) string {
	return fmt.Sprintf(`
		SELECT entity_id, transaction_id, end_transaction_id, operation_kind%s
		FROM %q
		WHERE entity_id = ? AND end_transaction_id IS NULL
	`, attrSelectList(t), t.Table())
}

// ShadowAt returns the shadow record whose validity range contains txID.
// found=false means the entity did not exist at that transaction.
func (s *Store) ShadowAt(ctx context.Context, t schema.EntityType, entityID, txID int64) (ShadowRecord, bool, error) {
	query := fmt.Sprintf(`
		SELECT entity_id, transaction_id, end_transaction_id, operation_kind%s
		FROM %q
		WHERE entity_id = ?
		  AND transaction_id <= ?
		  AND (end_transaction_id IS NULL OR end_transaction_id > ?)
	`, attrSelectList(t), t.Table())

	row := s.db.QueryRowContext(ctx, query, entityID, txID, txID)
	rec, err := scanShadow(row, t)
	if err == sql.ErrNoRows {
		return ShadowRecord{}, false, nil
	}
	if err != nil {
		return ShadowRecord{}, false, err
	}
	return rec, true, nil
}

// ShadowHistory returns every shadow record for an entity ordered by
// transaction id ascending.
func (s *Store) ShadowHistory(ctx context.Context, t schema.EntityType, entityID int64) ([]ShadowRecord, error) {
	query := fmt.Sprintf(`
		SELECT entity_id, transaction_id, end_transaction_id, operation_kind%s
		FROM %q
		WHERE entity_id = ?
		ORDER BY transaction_id ASC
	`, attrSelectList(t), t.Table())

	rows, err := s.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("query shadow history: %w", err)
	}
	defer rows.Close()

	var records []ShadowRecord
	for rows.Next() {
		rec, err := scanShadow(rows, t)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shadow history: %w", err)
	}

	if records == nil {
		records = []ShadowRecord{}
	}
	return records, nil
}

// attrSelectList renders ", \"a\", \"b\"" for the declared attributes.
func attrSelectList(t schema.EntityType) string {
	var b strings.Builder
	for _, a := range t.Attributes {
		fmt.Fprintf(&b, ", %q", a.Name)
	}
	return b.String()
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanShadow decodes a shadow row. NULL attribute columns decode as absent
// snapshot keys; a stored value that cannot be decoded under the declared
// kind is a schema inconsistency, reported as an error rather than a crash
// or a silently dropped field.
func scanShadow(row rowScanner, t schema.EntityType) (ShadowRecord, error) {
	var (
		rec   ShadowRecord
		endTx sql.NullInt64
		op    string
	)

	dest := []any{&rec.EntityID, &rec.TransactionID, &endTx, &op}
	holders := make([]interface{}, len(t.Attributes))
	for i, a := range t.Attributes {
		switch a.Kind {
		case schema.KindInt, schema.KindBool:
			holders[i] = &sql.NullInt64{}
		default:
			holders[i] = &sql.NullString{}
		}
		dest = append(dest, holders[i])
	}

	if err := row.Scan(dest...); err != nil {
		return ShadowRecord{}, err
	}

	if endTx.Valid {
		end := endTx.Int64
		rec.EndTransactionID = &end
	}
	rec.Operation = Operation(op)
	rec.Snapshot = make(attr.Snapshot, len(t.Attributes))

	for i, a := range t.Attributes {
		v, err := decodeColumn(a, holders[i])
		if err != nil {
			return ShadowRecord{}, err
		}
		if v != nil {
			rec.Snapshot[a.Name] = v
		}
	}

	return rec, nil
}

func decodeColumn(a schema.Attribute, holder any) (attr.Value, error) {
	switch a.Kind {
	case schema.KindInt:
		h := holder.(*sql.NullInt64)
		if !h.Valid {
			return nil, nil
		}
		return attr.Int(h.Int64), nil
	case schema.KindBool:
		h := holder.(*sql.NullInt64)
		if !h.Valid {
			return nil, nil
		}
		return attr.Bool(h.Int64 != 0), nil
	case schema.KindString:
		h := holder.(*sql.NullString)
		if !h.Valid {
			return nil, nil
		}
		return attr.String(h.String), nil
	case schema.KindObject:
		h := holder.(*sql.NullString)
		if !h.Valid {
			return nil, nil
		}
		var obj attr.Object
		if err := json.Unmarshal([]byte(h.String), &obj); err != nil {
			return nil, fmt.Errorf("attribute %q: stored value is not a valid object: %w", a.Name, err)
		}
		return obj, nil
	case schema.KindArray:
		h := holder.(*sql.NullString)
		if !h.Valid {
			return nil, nil
		}
		var arr attr.Array
		if err := json.Unmarshal([]byte(h.String), &arr); err != nil {
			return nil, fmt.Errorf("attribute %q: stored value is not a valid array: %w", a.Name, err)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("attribute %q: unknown kind %q", a.Name, a.Kind)
}
