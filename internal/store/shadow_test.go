package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/schema"
)

func TestAppendShadow_OpenRecord(t *testing.T) {
	s := createTestStore(t)
	et := testEntityType()
	ctx := context.Background()

	tx := beginTx(t, s)
	txID := insertTestTransaction(t, tx, "alice")

	err := AppendShadow(ctx, tx, et, ShadowRecord{
		EntityID:      1,
		TransactionID: txID,
		Operation:     OpInsert,
		Snapshot: attr.Snapshot{
			"name":      attr.String("demo"),
			"row_count": attr.Int(10),
		},
	})
	if err != nil {
		t.Fatalf("AppendShadow() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	rec, found, err := s.OpenShadow(ctx, et, 1)
	if err != nil {
		t.Fatalf("OpenShadow() failed: %v", err)
	}
	if !found {
		t.Fatal("open record not found")
	}
	if rec.TransactionID != txID {
		t.Errorf("TransactionID = %d, want %d", rec.TransactionID, txID)
	}
	if rec.EndTransactionID != nil {
		t.Errorf("EndTransactionID = %v, want nil", *rec.EndTransactionID)
	}
	if rec.Operation != OpInsert {
		t.Errorf("Operation = %q, want %q", rec.Operation, OpInsert)
	}
	if rec.Snapshot["name"] != attr.String("demo") {
		t.Errorf("name = %v, want demo", rec.Snapshot["name"])
	}
	if rec.Snapshot["row_count"] != attr.Int(10) {
		t.Errorf("row_count = %v, want 10", rec.Snapshot["row_count"])
	}
}

func TestAppendShadow_ClosesPreviousRecord(t *testing.T) {
	s := createTestStore(t)
	et := testEntityType()
	ctx := context.Background()

	var txIDs []int64
	for i, name := range []string{"v1", "v2", "v3"} {
		tx := beginTx(t, s)
		txID := insertTestTransaction(t, tx, name)
		op := OpUpdate
		if i == 0 {
			op = OpInsert
		}
		err := AppendShadow(ctx, tx, et, ShadowRecord{
			EntityID:      1,
			TransactionID: txID,
			Operation:     op,
			Snapshot:      attr.Snapshot{"name": attr.String(name)},
		})
		if err != nil {
			t.Fatalf("AppendShadow(%s) failed: %v", name, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit(%s) failed: %v", name, err)
		}
		txIDs = append(txIDs, txID)
	}

	history, err := s.ShadowHistory(ctx, et, 1)
	if err != nil {
		t.Fatalf("ShadowHistory() failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}

	// Ranges must tile: each record closed exactly where the next opens,
	// final record open.
	for i, rec := range history {
		if rec.TransactionID != txIDs[i] {
			t.Errorf("record %d: TransactionID = %d, want %d", i, rec.TransactionID, txIDs[i])
		}
		if i < len(history)-1 {
			if rec.EndTransactionID == nil {
				t.Errorf("record %d: expected closed range", i)
			} else if *rec.EndTransactionID != txIDs[i+1] {
				t.Errorf("record %d: EndTransactionID = %d, want %d", i, *rec.EndTransactionID, txIDs[i+1])
			}
		} else if rec.EndTransactionID != nil {
			t.Errorf("final record: EndTransactionID = %d, want nil", *rec.EndTransactionID)
		}
	}
}

func TestShadowAt(t *testing.T) {
	s := createTestStore(t)
	et := testEntityType()
	ctx := context.Background()

	var txIDs []int64
	for _, name := range []string{"v1", "v2"} {
		tx := beginTx(t, s)
		txID := insertTestTransaction(t, tx, name)
		err := AppendShadow(ctx, tx, et, ShadowRecord{
			EntityID:      1,
			TransactionID: txID,
			Operation:     OpUpdate,
			Snapshot:      attr.Snapshot{"name": attr.String(name)},
		})
		if err != nil {
			t.Fatalf("AppendShadow(%s) failed: %v", name, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit(%s) failed: %v", name, err)
		}
		txIDs = append(txIDs, txID)
	}

	rec, found, err := s.ShadowAt(ctx, et, 1, txIDs[0])
	if err != nil || !found {
		t.Fatalf("ShadowAt(tx1) = found %v, err %v", found, err)
	}
	if rec.Snapshot["name"] != attr.String("v1") {
		t.Errorf("at tx1: name = %v, want v1", rec.Snapshot["name"])
	}

	rec, found, err = s.ShadowAt(ctx, et, 1, txIDs[1])
	if err != nil || !found {
		t.Fatalf("ShadowAt(tx2) = found %v, err %v", found, err)
	}
	if rec.Snapshot["name"] != attr.String("v2") {
		t.Errorf("at tx2: name = %v, want v2", rec.Snapshot["name"])
	}

	// Before the first write the entity did not exist.
	_, found, err = s.ShadowAt(ctx, et, 1, txIDs[0]-1)
	if err != nil {
		t.Fatalf("ShadowAt(before) failed: %v", err)
	}
	if found {
		t.Error("expected not found before first transaction")
	}
}

func TestAppendShadow_ComplexValues(t *testing.T) {
	s := createTestStore(t)
	et := testEntityType()
	ctx := context.Background()

	snap := attr.Snapshot{
		"name":       attr.String("demo"),
		"is_private": attr.Bool(true),
		"metadata":   attr.Object{"source": attr.String("s3"), "rows": attr.Int(42)},
		"labels":     attr.Array{attr.String("vision"), attr.String("public")},
	}

	tx := beginTx(t, s)
	txID := insertTestTransaction(t, tx, "alice")
	err := AppendShadow(ctx, tx, et, ShadowRecord{
		EntityID:      1,
		TransactionID: txID,
		Operation:     OpInsert,
		Snapshot:      snap,
	})
	if err != nil {
		t.Fatalf("AppendShadow() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	rec, found, err := s.OpenShadow(ctx, et, 1)
	if err != nil || !found {
		t.Fatalf("OpenShadow() = found %v, err %v", found, err)
	}

	// The stored snapshot must re-hash to the digest the original hashed to.
	want := attr.MustSnapshotDigest(et.Name, snap)
	got := attr.MustSnapshotDigest(et.Name, rec.Snapshot)
	if got != want {
		t.Errorf("round-tripped snapshot digest = %s, want %s", got, want)
	}

	if rec.Snapshot["is_private"] != attr.Bool(true) {
		t.Errorf("is_private = %v, want true", rec.Snapshot["is_private"])
	}
	meta, ok := rec.Snapshot["metadata"].(attr.Object)
	if !ok {
		t.Fatalf("metadata = %T, want Object", rec.Snapshot["metadata"])
	}
	if meta["rows"] != attr.Int(42) {
		t.Errorf("metadata.rows = %v, want 42", meta["rows"])
	}
}

func TestEnsureShadowTable_AddsColumnForNewAttribute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	old := testEntityType()

	s, err := Open(path, []schema.EntityType{old}, nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	ctx := context.Background()

	tx := beginTx(t, s)
	txID := insertTestTransaction(t, tx, "alice")
	err = AppendShadow(ctx, tx, old, ShadowRecord{
		EntityID:      1,
		TransactionID: txID,
		Operation:     OpInsert,
		Snapshot:      attr.Snapshot{"name": attr.String("demo")},
	})
	if err != nil {
		t.Fatalf("AppendShadow() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	s.Close()

	// Reopen with an evolved descriptor that declares a new attribute.
	evolved := old
	evolved.Attributes = append(evolved.Attributes, schema.Attribute{
		Name: "license", Kind: schema.KindString,
	})

	s2, err := Open(path, []schema.EntityType{evolved}, nil)
	if err != nil {
		t.Fatalf("reopen with evolved descriptor failed: %v", err)
	}
	defer s2.Close()

	cols, err := tableColumns(s2.db, evolved.Table())
	if err != nil {
		t.Fatalf("tableColumns() failed: %v", err)
	}
	if !cols["license"] {
		t.Error("license column missing after descriptor evolution")
	}

	// Historical rows backfill with NULL, which reads as an absent key.
	rec, found, err := s2.OpenShadow(ctx, evolved, 1)
	if err != nil || !found {
		t.Fatalf("OpenShadow() = found %v, err %v", found, err)
	}
	if _, has := rec.Snapshot["license"]; has {
		t.Errorf("license = %v, want absent on pre-evolution row", rec.Snapshot["license"])
	}
	if rec.Snapshot["name"] != attr.String("demo") {
		t.Errorf("name = %v, want demo", rec.Snapshot["name"])
	}
}

func TestShadowHistory_EmptyForUnknownEntity(t *testing.T) {
	s := createTestStore(t)

	history, err := s.ShadowHistory(context.Background(), testEntityType(), 999)
	if err != nil {
		t.Fatalf("ShadowHistory() failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0", len(history))
	}
}
