package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entity is the live catalog row. Exactly one per entity id; removed on
// delete. The versioned payload lives in shadow history - this row carries
// only identity and the cached current version pointer.
type Entity struct {
	ID                 int64
	Name               string
	Type               string
	CreatedAt          time.Time
	IsPrivate          bool
	CurrentVersionHash *string
}

// InsertEntity creates the live row for a new entity inside tx.
func InsertEntity(ctx context.Context, tx *sql.Tx, name, entityType string, createdAt time.Time, isPrivate bool) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, created_at, is_private)
		VALUES (?, ?, ?, ?)
	`, name, entityType, createdAt.UTC().Format(timeLayout), boolToInt(isPrivate))
	if err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert entity: last insert id: %w", err)
	}
	return id, nil
}

// GetEntity retrieves the live entity row by id.
// Returns sql.ErrNoRows if the entity does not exist (or was deleted).
func (s *Store) GetEntity(ctx context.Context, id int64) (Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, created_at, is_private, current_version_hash
		FROM entities
		WHERE id = ?
	`, id)
	return scanEntity(row)
}

// GetEntityTx is GetEntity inside a write transaction.
func GetEntityTx(ctx context.Context, tx *sql.Tx, id int64) (Entity, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, name, entity_type, created_at, is_private, current_version_hash
		FROM entities
		WHERE id = ?
	`, id)
	return scanEntity(row)
}

// GetEntityByName retrieves the live entity row by (name, type).
// Returns sql.ErrNoRows if absent.
func (s *Store) GetEntityByName(ctx context.Context, name, entityType string) (Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, created_at, is_private, current_version_hash
		FROM entities
		WHERE name = ? AND entity_type = ?
	`, name, entityType)
	return scanEntity(row)
}

// GetEntityByNameTx is GetEntityByName inside a write transaction.
func GetEntityByNameTx(ctx context.Context, tx *sql.Tx, name, entityType string) (Entity, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, name, entity_type, created_at, is_private, current_version_hash
		FROM entities
		WHERE name = ? AND entity_type = ?
	`, name, entityType)
	return scanEntity(row)
}

// UpdateEntityMeta refreshes the mirrored columns of the live row inside tx.
// current_version_hash is a cache derived from shadow history plus the
// hasher; it is rewritten on every committed write and never read as the
// source of truth.
func UpdateEntityMeta(ctx context.Context, tx *sql.Tx, id int64, isPrivate bool, currentHash string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET is_private = ?, current_version_hash = ?
		WHERE id = ?
	`, boolToInt(isPrivate), currentHash, id)
	if err != nil {
		return fmt.Errorf("update entity meta: %w", err)
	}
	return nil
}

// DeleteEntity removes the live row inside tx. Version hashes cascade, and
// tags cascade with their hashes; shadow history has no foreign key to
// entities and survives.
func DeleteEntity(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entity: rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListEntities returns all live entities of one type (or all types when
// entityType is empty), ordered by id.
func (s *Store) ListEntities(ctx context.Context, entityType string) ([]Entity, error) {
	query := `
		SELECT id, name, entity_type, created_at, is_private, current_version_hash
		FROM entities
	`
	var args []any
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	if entities == nil {
		entities = []Entity{}
	}
	return entities, nil
}

func scanEntity(row rowScanner) (Entity, error) {
	var (
		e         Entity
		createdAt string
		isPrivate int64
		current   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &createdAt, &isPrivate, &current); err != nil {
		return Entity{}, err
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entity{}, fmt.Errorf("entity %d: parse created_at: %w", e.ID, err)
	}
	e.CreatedAt = t
	e.IsPrivate = isPrivate != 0
	if current.Valid {
		e.CurrentVersionHash = &current.String
	}
	return e, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
