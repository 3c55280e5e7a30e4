package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/schema"
	"github.com/vcatdb/vcat/internal/store"
)

// State is a reconstructed entity state: the snapshot that was (or is) live
// at one transaction, plus the digest it resolves to.
type State struct {
	EntityID      int64
	EntityType    string
	TransactionID int64
	VersionHash   string
	Attributes    attr.Snapshot
}

// VersionInfo is one entry of an entity's version history.
type VersionInfo struct {
	Index            int
	TransactionID    int64
	EndTransactionID *int64
	Operation        store.Operation
	VersionHash      string // empty for delete records
	Tags             []string
	IssuedAt         time.Time
	ActorID          string
}

// Read returns the live state of an entity, or NotFound if it does not
// exist or has been deleted.
func (c *Core) Read(ctx context.Context, entityID int64) (State, error) {
	ent, err := c.store.GetEntity(ctx, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, &Error{Code: ErrCodeNotFound, Message: "entity does not exist", EntityID: entityID}
	}
	if err != nil {
		return State{}, fmt.Errorf("lookup entity: %w", err)
	}

	t, ok := c.types.Get(ent.Type)
	if !ok {
		return State{}, notFound("unknown entity type %q", ent.Type)
	}

	rec, found, err := c.store.OpenShadow(ctx, t, entityID)
	if err != nil {
		return State{}, fmt.Errorf("open shadow record: %w", err)
	}
	if !found || rec.Operation == store.OpDelete {
		return State{}, &Error{Code: ErrCodeNotFound, Message: "entity has no live version", EntityID: entityID}
	}

	return c.stateFromRecord(t, rec)
}

// ReadAt reconstructs the state of an entity as of an arbitrary transaction
// id. Works for deleted entities too - history outlives the live row.
// Returns NotFound if the entity did not exist yet, or was already deleted,
// at that transaction.
func (c *Core) ReadAt(ctx context.Context, entityID, txID int64) (State, error) {
	t, rec, found, err := c.shadowAt(ctx, entityID, txID)
	if err != nil {
		return State{}, err
	}
	if !found {
		return State{}, &Error{
			Code:     ErrCodeNotFound,
			Message:  "entity has no state at transaction",
			EntityID: entityID,
			Ref:      fmt.Sprintf("tx:%d", txID),
		}
	}
	return c.stateFromRecord(t, rec)
}

// ReadByHash resolves a content digest to the snapshot it pins.
func (c *Core) ReadByHash(ctx context.Context, digest string) (State, error) {
	vh, err := c.store.GetHashByDigest(ctx, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, &Error{Code: ErrCodeNotFound, Message: "unknown version hash", Ref: digest}
	}
	if err != nil {
		return State{}, fmt.Errorf("resolve digest: %w", err)
	}
	return c.ReadAt(ctx, vh.EntityID, vh.TransactionID)
}

// ReadByTag resolves a tag name to the snapshot its hash pins.
func (c *Core) ReadByTag(ctx context.Context, name string) (State, error) {
	digest, _, err := c.ResolveTag(ctx, name)
	if err != nil {
		return State{}, err
	}
	return c.ReadByHash(ctx, digest)
}

// History lists every recorded version of an entity in transaction order,
// with the digest each state resolves to and any tags bound to it.
func (c *Core) History(ctx context.Context, entityID int64) ([]VersionInfo, error) {
	t, err := c.entityType(ctx, entityID)
	if err != nil {
		return nil, err
	}

	records, err := c.store.ShadowHistory(ctx, t, entityID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &Error{Code: ErrCodeNotFound, Message: "entity has no history", EntityID: entityID}
	}

	history := make([]VersionInfo, 0, len(records))
	for i, rec := range records {
		info := VersionInfo{
			Index:            i,
			TransactionID:    rec.TransactionID,
			EndTransactionID: rec.EndTransactionID,
			Operation:        rec.Operation,
			Tags:             []string{},
		}

		txRec, err := c.store.GetTransaction(ctx, rec.TransactionID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %d: %w", rec.TransactionID, err)
		}
		if err == nil {
			info.IssuedAt = txRec.IssuedAt
			info.ActorID = txRec.ActorID
		}

		if rec.Operation != store.OpDelete {
			digest, err := attr.SnapshotDigest(t.Name, t.HashedSnapshot(rec.Snapshot))
			if err != nil {
				return nil, schemaInconsistency("history digest at tx %d: %v", rec.TransactionID, err)
			}
			info.VersionHash = digest

			if vh, err := c.store.GetHashByDigest(ctx, digest); err == nil {
				tags, err := c.store.TagsForHash(ctx, vh.ID)
				if err != nil {
					return nil, err
				}
				for _, tag := range tags {
					info.Tags = append(info.Tags, tag.TagName)
				}
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}

		history = append(history, info)
	}

	return history, nil
}

// ResolveRef resolves a version reference for an entity. A reference is a
// 64-hex content digest, a tag name, or an index of the form ~N (negative N
// counts back from the latest state, so ~-1 is the most recent).
func (c *Core) ResolveRef(ctx context.Context, entityID int64, ref string) (State, error) {
	if strings.HasPrefix(ref, "~") {
		return c.resolveIndexRef(ctx, entityID, ref)
	}

	if attr.IsDigest(ref) {
		st, err := c.ReadByHash(ctx, ref)
		if err != nil {
			return State{}, err
		}
		if st.EntityID != entityID {
			return State{}, &Error{Code: ErrCodeNotFound, Message: "version hash belongs to a different entity", EntityID: entityID, Ref: ref}
		}
		return st, nil
	}

	digest, owner, err := c.ResolveTag(ctx, ref)
	if err != nil {
		return State{}, err
	}
	if owner != entityID {
		return State{}, &Error{Code: ErrCodeNotFound, Message: "tag belongs to a different entity", EntityID: entityID, Ref: ref}
	}
	return c.ReadByHash(ctx, digest)
}

func (c *Core) resolveIndexRef(ctx context.Context, entityID int64, ref string) (State, error) {
	idx, err := strconv.Atoi(ref[1:])
	if err != nil {
		return State{}, notFound("invalid version index %q", ref)
	}

	t, err := c.entityType(ctx, entityID)
	if err != nil {
		return State{}, err
	}

	records, err := c.store.ShadowHistory(ctx, t, entityID)
	if err != nil {
		return State{}, err
	}

	// Index over states only; the terminal delete record is not a state.
	states := records[:0:0]
	for _, rec := range records {
		if rec.Operation != store.OpDelete {
			states = append(states, rec)
		}
	}

	if idx < 0 {
		idx = len(states) + idx
	}
	if idx < 0 || idx >= len(states) {
		return State{}, &Error{Code: ErrCodeNotFound, Message: "version index out of range", EntityID: entityID, Ref: ref}
	}

	return c.stateFromRecord(t, states[idx])
}

// entityType finds the type descriptor for an entity, falling back to a
// shadow-table scan when the live row is gone (deleted entities keep their
// history readable).
func (c *Core) entityType(ctx context.Context, entityID int64) (schema.EntityType, error) {
	ent, err := c.store.GetEntity(ctx, entityID)
	if err == nil {
		t, ok := c.types.Get(ent.Type)
		if !ok {
			return schema.EntityType{}, notFound("unknown entity type %q", ent.Type)
		}
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return schema.EntityType{}, fmt.Errorf("lookup entity: %w", err)
	}

	// Entity ids come from one sequence, so at most one shadow table holds
	// records for this id.
	for _, t := range c.types.All() {
		records, err := c.store.ShadowHistory(ctx, t, entityID)
		if err != nil {
			return schema.EntityType{}, err
		}
		if len(records) > 0 {
			return t, nil
		}
	}

	return schema.EntityType{}, &Error{Code: ErrCodeNotFound, Message: "entity does not exist", EntityID: entityID}
}

// shadowAt locates the shadow record containing txID across live and
// deleted entities. A delete record at txID resolves to not-found.
func (c *Core) shadowAt(ctx context.Context, entityID, txID int64) (schema.EntityType, store.ShadowRecord, bool, error) {
	t, err := c.entityType(ctx, entityID)
	if err != nil {
		return schema.EntityType{}, store.ShadowRecord{}, false, err
	}

	rec, found, err := c.store.ShadowAt(ctx, t, entityID, txID)
	if err != nil {
		return schema.EntityType{}, store.ShadowRecord{}, false, err
	}
	if !found || rec.Operation == store.OpDelete {
		return t, store.ShadowRecord{}, false, nil
	}
	return t, rec, true, nil
}

func (c *Core) stateFromRecord(t schema.EntityType, rec store.ShadowRecord) (State, error) {
	digest, err := attr.SnapshotDigest(t.Name, t.HashedSnapshot(rec.Snapshot))
	if err != nil {
		return State{}, schemaInconsistency("content digest at tx %d: %v", rec.TransactionID, err)
	}
	return State{
		EntityID:      rec.EntityID,
		EntityType:    t.Name,
		TransactionID: rec.TransactionID,
		VersionHash:   digest,
		Attributes:    rec.Snapshot,
	}, nil
}
