package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/store"
)

// VerifyReport summarizes a reconciliation pass of the derived hash index
// against the authoritative shadow history.
type VerifyReport struct {
	EntitiesChecked   int
	StatesChecked     int
	LatestTransaction int64 // highest committed transaction id, the upper bound of checked history
	MissingHashes     int   // digests derivable from history but absent from the registry
	RepairedHashes    int   // missing digests re-registered (rebuild mode only)
	DriftedPointers   int   // current_version_hash values that do not match the derived latest digest
	RepairedPointers  int   // drifted pointers rewritten (rebuild mode only)
}

// Verify replays one entity's shadow history through the hasher and checks
// that every reachable state digest is registered and that the cached
// current pointer matches the latest state. Nothing is modified.
func (c *Core) Verify(ctx context.Context, entityID int64) (VerifyReport, error) {
	rep, err := c.reconcileEntity(ctx, entityID, false)
	if err != nil {
		return rep, err
	}
	rep.LatestTransaction, err = c.store.MaxTransactionID(ctx)
	return rep, err
}

// Rebuild reconciles the registry for every live entity, re-registering
// digests that are derivable from shadow history but missing from the
// index, and repairing drifted current pointers. Hashes of deleted entities
// are not resurrected - they were removed by the delete cascade on purpose.
func (c *Core) Rebuild(ctx context.Context) (VerifyReport, error) {
	entities, err := c.store.ListEntities(ctx, "")
	if err != nil {
		return VerifyReport{}, err
	}

	var total VerifyReport
	for _, ent := range entities {
		rep, err := c.reconcileEntity(ctx, ent.ID, true)
		if err != nil {
			return total, fmt.Errorf("entity %d: %w", ent.ID, err)
		}
		total.EntitiesChecked += rep.EntitiesChecked
		total.StatesChecked += rep.StatesChecked
		total.MissingHashes += rep.MissingHashes
		total.RepairedHashes += rep.RepairedHashes
		total.DriftedPointers += rep.DriftedPointers
		total.RepairedPointers += rep.RepairedPointers
	}

	total.LatestTransaction, err = c.store.MaxTransactionID(ctx)
	if err != nil {
		return total, err
	}

	c.log.WithFields(logrus.Fields{
		"entities":          total.EntitiesChecked,
		"states":            total.StatesChecked,
		"latest_tx":         total.LatestTransaction,
		"repaired_hashes":   total.RepairedHashes,
		"repaired_pointers": total.RepairedPointers,
	}).Info("registry rebuild complete")

	return total, nil
}

func (c *Core) reconcileEntity(ctx context.Context, entityID int64, repair bool) (VerifyReport, error) {
	rep := VerifyReport{EntitiesChecked: 1}

	t, err := c.entityType(ctx, entityID)
	if err != nil {
		return rep, err
	}

	records, err := c.store.ShadowHistory(ctx, t, entityID)
	if err != nil {
		return rep, err
	}

	var lastDigest string
	for _, rec := range records {
		if rec.Operation == store.OpDelete {
			continue
		}
		rep.StatesChecked++

		digest, err := attr.SnapshotDigest(t.Name, t.HashedSnapshot(rec.Snapshot))
		if err != nil {
			return rep, schemaInconsistency("digest at tx %d: %v", rec.TransactionID, err)
		}
		lastDigest = digest

		_, err = c.store.GetHashByDigest(ctx, digest)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return rep, err
		}

		rep.MissingHashes++
		if !repair {
			continue
		}

		if err := c.registerMissing(ctx, entityID, rec.TransactionID, digest); err != nil {
			return rep, err
		}
		rep.RepairedHashes++
	}

	// Reconcile the cached pointer against the derived latest digest.
	ent, err := c.store.GetEntity(ctx, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return rep, nil // deleted entity: no pointer to reconcile
	}
	if err != nil {
		return rep, err
	}

	current := ""
	if ent.CurrentVersionHash != nil {
		current = *ent.CurrentVersionHash
	}
	if lastDigest != "" && current != lastDigest {
		rep.DriftedPointers++
		if repair {
			if err := c.repairPointer(ctx, ent, lastDigest); err != nil {
				return rep, err
			}
			rep.RepairedPointers++
		}
	}

	return rep, nil
}

func (c *Core) registerMissing(ctx context.Context, entityID, txID int64, digest string) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin repair: %w", err)
	}
	defer tx.Rollback()

	if _, _, err := store.RegisterHash(ctx, tx, entityID, txID, digest, c.clock.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Core) repairPointer(ctx context.Context, ent store.Entity, digest string) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin pointer repair: %w", err)
	}
	defer tx.Rollback()

	if err := store.UpdateEntityMeta(ctx, tx, ent.ID, ent.IsPrivate, digest); err != nil {
		return err
	}
	return tx.Commit()
}
