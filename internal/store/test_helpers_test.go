package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/vcatdb/vcat/internal/schema"
)

// testEntityType returns a small descriptor used across store tests.
func testEntityType() schema.EntityType {
	return schema.EntityType{
		Name: "dataset",
		Attributes: []schema.Attribute{
			{Name: "name", Kind: schema.KindString},
			{Name: "row_count", Kind: schema.KindInt},
			{Name: "is_private", Kind: schema.KindBool},
			{Name: "metadata", Kind: schema.KindObject},
			{Name: "labels", Kind: schema.KindArray},
		},
	}
}

// createTestStore creates a store backed by a temp file database.
func createTestStore(t *testing.T, types ...schema.EntityType) *Store {
	t.Helper()
	if types == nil {
		types = []schema.EntityType{testEntityType()}
	}
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, types, nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTx starts a write transaction that is rolled back at cleanup unless
// committed by the test.
func beginTx(t *testing.T, s *Store) *sql.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

// insertTestTransaction allocates a transaction id for use in test writes.
func insertTestTransaction(t *testing.T, tx *sql.Tx, actor string) int64 {
	t.Helper()
	id, err := InsertTransaction(context.Background(), tx, Transaction{
		IssuedAt:  time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		ActorID:   actor,
		RequestID: "req-" + actor,
	})
	if err != nil {
		t.Fatalf("InsertTransaction() failed: %v", err)
	}
	return id
}
