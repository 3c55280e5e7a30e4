// Package version implements the entity versioning core: a
// transaction-ordered audit history layered with a content-addressable
// hash-and-tag registry. The audit log is the source of truth for WHEN;
// the hash registry is a derived, deduplicated index for WHAT, rebuildable
// by replaying shadow history through the hasher.
package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/schema"
	"github.com/vcatdb/vcat/internal/store"
)

// Clock supplies issued_at timestamps. Injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DefaultMaxWriteRetries bounds transparent retries of conflicted writes.
const DefaultMaxWriteRetries = 3

// Core is the only mutation entry point over the versioned catalog.
// CRUD layers call Write/Delete/Tag/Retag and read through Read*/History;
// they never touch shadow rows directly.
type Core struct {
	store      *store.Store
	types      *schema.Registry
	clock      Clock
	log        *logrus.Logger
	maxRetries int
}

// Options configures a Core.
type Options struct {
	Clock           Clock
	Logger          *logrus.Logger
	MaxWriteRetries int
}

// New creates a Core over an open store and a type registry.
func New(st *store.Store, types *schema.Registry, opts Options) *Core {
	c := &Core{
		store:      st,
		types:      types,
		clock:      opts.Clock,
		log:        opts.Logger,
		maxRetries: opts.MaxWriteRetries,
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.log == nil {
		c.log = logrus.New()
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxWriteRetries
	}
	return c
}

// Actor identifies who performed a mutation and from where. Supplied by the
// auth layer; the core only stamps it onto transactions.
type Actor struct {
	ID     string
	Origin string
}

// WriteRequest is the input of the single mutation entry point.
// EntityID zero means create: EntityName and EntityType are then required.
// Nonzero EntityID updates an existing entity; its name and type are fixed.
type WriteRequest struct {
	EntityID   int64
	EntityName string
	EntityType string
	Actor      Actor
	Attributes attr.Snapshot
}

// WriteResult reports the committed transaction and the version hash the
// new state resolves to.
type WriteResult struct {
	EntityID      int64
	TransactionID int64
	VersionHash   string
	Created       bool

	// HashReused is true when the content digest already existed
	// (a no-op rewrite resolving to the same stable reference).
	HashReused bool
}

// withWriteRetry runs one mutation attempt up to the configured bound,
// retrying only on writer conflicts. Every mutation entry point (Write,
// Delete, Tag, Retag) goes through it so conflict handling is uniform.
func (c *Core) withWriteRetry(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		err = fn()
		if err == nil || !store.IsBusy(err) {
			return err
		}
		c.log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
		}).Warn("write conflicted, retrying")
	}
	return conflict("%s lost %d races: %v", op, c.maxRetries, err)
}

// Write applies one mutation: open transaction, close the previous shadow
// version and open the new one, register the content digest, refresh the
// cached current pointer - all inside a single store transaction, retried
// transparently on writer conflicts up to the configured bound.
func (c *Core) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	var res WriteResult
	err := c.withWriteRetry("write", func() error {
		var err error
		res, err = c.writeOnce(ctx, req)
		return err
	})
	if err != nil {
		return WriteResult{}, err
	}
	return res, nil
}

func (c *Core) writeOnce(ctx context.Context, req WriteRequest) (WriteResult, error) {
	creating := req.EntityID == 0
	if creating && (req.EntityName == "" || req.EntityType == "") {
		return WriteResult{}, notFound("create requires an entity name and type")
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return WriteResult{}, fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		ent store.Entity
		op  = store.OpUpdate
	)
	now := c.clock.Now()

	if creating {
		_, err := store.GetEntityByNameTx(ctx, tx, req.EntityName, req.EntityType)
		if err == nil {
			return WriteResult{}, alreadyExists("entity %q of type %q already exists", req.EntityName, req.EntityType)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return WriteResult{}, fmt.Errorf("lookup entity by name: %w", err)
		}
	} else {
		ent, err = store.GetEntityTx(ctx, tx, req.EntityID)
		if errors.Is(err, sql.ErrNoRows) {
			return WriteResult{}, &Error{Code: ErrCodeNotFound, Message: "entity does not exist", EntityID: req.EntityID}
		}
		if err != nil {
			return WriteResult{}, fmt.Errorf("lookup entity: %w", err)
		}
	}

	entityType := req.EntityType
	if !creating {
		entityType = ent.Type
	}
	t, ok := c.types.Get(entityType)
	if !ok {
		return WriteResult{}, notFound("unknown entity type %q", entityType)
	}

	snap := req.Attributes.Normalize()
	if creating {
		snap["name"] = attr.String(req.EntityName)
	} else {
		// The name is identity, not payload; it cannot drift via attributes.
		snap["name"] = attr.String(ent.Name)
	}
	if err := t.CheckSnapshot(snap); err != nil {
		return WriteResult{}, schemaInconsistency("%v", err)
	}

	isPrivate := false
	if p, ok := snap["is_private"].(attr.Bool); ok {
		isPrivate = bool(p)
	}

	if creating {
		id, err := store.InsertEntity(ctx, tx, req.EntityName, entityType, now, isPrivate)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return WriteResult{}, alreadyExists("entity %q of type %q already exists", req.EntityName, req.EntityType)
			}
			return WriteResult{}, err
		}
		ent = store.Entity{ID: id, Name: req.EntityName, Type: entityType}
		op = store.OpInsert
	}

	txID, err := store.InsertTransaction(ctx, tx, store.Transaction{
		IssuedAt:      now,
		ActorID:       req.Actor.ID,
		OriginAddress: req.Actor.Origin,
		RequestID:     uuid.NewString(),
	})
	if err != nil {
		return WriteResult{}, err
	}

	if err := store.AppendShadow(ctx, tx, t, store.ShadowRecord{
		EntityID:      ent.ID,
		TransactionID: txID,
		Operation:     op,
		Snapshot:      snap,
	}); err != nil {
		return WriteResult{}, err
	}

	digest, err := attr.SnapshotDigest(t.Name, t.HashedSnapshot(snap))
	if err != nil {
		return WriteResult{}, schemaInconsistency("content digest: %v", err)
	}

	vh, created, err := store.RegisterHash(ctx, tx, ent.ID, txID, digest, now)
	if err != nil {
		return WriteResult{}, err
	}

	if err := store.UpdateEntityMeta(ctx, tx, ent.ID, isPrivate, digest); err != nil {
		return WriteResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return WriteResult{}, fmt.Errorf("commit write: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"entity_id":      ent.ID,
		"entity_type":    entityType,
		"transaction_id": txID,
		"version_hash":   digest,
		"operation":      string(op),
		"hash_reused":    !created,
	}).Debug("write committed")

	return WriteResult{
		EntityID:      ent.ID,
		TransactionID: txID,
		VersionHash:   vh.ContentHash,
		Created:       creating,
		HashReused:    !created,
	}, nil
}

// Delete terminates an entity. The live row, its version hashes, and their
// tags are removed (cascade policy); shadow history keeps every state plus a
// terminal delete record. Deletion is final - recreating requires a new
// entity id.
func (c *Core) Delete(ctx context.Context, entityID int64, actor Actor) (int64, error) {
	var txID int64
	err := c.withWriteRetry("delete", func() error {
		var err error
		txID, err = c.deleteOnce(ctx, entityID, actor)
		return err
	})
	if err != nil {
		return 0, err
	}
	return txID, nil
}

func (c *Core) deleteOnce(ctx context.Context, entityID int64, actor Actor) (int64, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	ent, err := store.GetEntityTx(ctx, tx, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &Error{Code: ErrCodeNotFound, Message: "entity does not exist", EntityID: entityID}
	}
	if err != nil {
		return 0, fmt.Errorf("lookup entity: %w", err)
	}

	t, ok := c.types.Get(ent.Type)
	if !ok {
		return 0, notFound("unknown entity type %q", ent.Type)
	}

	open, found, err := store.OpenShadowTx(ctx, tx, t, entityID)
	if err != nil {
		return 0, fmt.Errorf("open shadow record: %w", err)
	}
	if !found {
		return 0, schemaInconsistency("entity %d has no open shadow record", entityID)
	}

	txID, err := store.InsertTransaction(ctx, tx, store.Transaction{
		IssuedAt:      c.clock.Now(),
		ActorID:       actor.ID,
		OriginAddress: actor.Origin,
		RequestID:     uuid.NewString(),
	})
	if err != nil {
		return 0, err
	}

	// The delete record carries the final snapshot; the reader maps it to
	// NotFound. No new version hash is registered for a delete.
	if err := store.AppendShadow(ctx, tx, t, store.ShadowRecord{
		EntityID:      entityID,
		TransactionID: txID,
		Operation:     store.OpDelete,
		Snapshot:      open.Snapshot,
	}); err != nil {
		return 0, err
	}

	if err := store.DeleteEntity(ctx, tx, entityID); err != nil {
		return 0, fmt.Errorf("delete live row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"entity_id":      entityID,
		"transaction_id": txID,
	}).Debug("entity deleted")

	return txID, nil
}
