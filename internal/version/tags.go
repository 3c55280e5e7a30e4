package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/store"
)

// validateTagName rejects names that would be ambiguous as version
// references: empty, digest-shaped, or index-shaped. Names are
// case-sensitive and globally scoped.
func validateTagName(name string) error {
	if name == "" {
		return schemaInconsistency("tag name must be non-empty")
	}
	if attr.IsDigest(name) {
		return schemaInconsistency("tag name %q is indistinguishable from a content digest", name)
	}
	if strings.HasPrefix(name, "~") {
		return schemaInconsistency("tag name %q: the ~ prefix is reserved for index references", name)
	}
	return nil
}

// Tag binds a name to the version identified by digest. Fails with
// AlreadyExists when the name is already bound - to any hash; moving a name
// is an explicit Retag, never a duplicate insert.
func (c *Core) Tag(ctx context.Context, digest, name string, actor Actor) error {
	if err := validateTagName(name); err != nil {
		return err
	}
	return c.withWriteRetry("tag", func() error {
		return c.tagOnce(ctx, digest, name, actor)
	})
}

func (c *Core) tagOnce(ctx context.Context, digest, name string, actor Actor) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tag: %w", err)
	}
	defer tx.Rollback()

	vh, err := store.GetHashByDigestTx(ctx, tx, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Code: ErrCodeNotFound, Message: "unknown version hash", Ref: digest}
	}
	if err != nil {
		return fmt.Errorf("resolve digest: %w", err)
	}

	txID, err := store.InsertTransaction(ctx, tx, store.Transaction{
		IssuedAt:      c.clock.Now(),
		ActorID:       actor.ID,
		OriginAddress: actor.Origin,
		RequestID:     uuid.NewString(),
	})
	if err != nil {
		return err
	}

	if _, err := store.InsertTag(ctx, tx, vh.ID, name, txID, c.clock.Now()); err != nil {
		if store.IsUniqueViolation(err) {
			return &Error{Code: ErrCodeAlreadyExists, Message: "tag name already bound", Ref: name}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tag: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"tag":            name,
		"version_hash":   digest,
		"transaction_id": txID,
	}).Debug("tag created")

	return nil
}

// Retag moves an existing tag name to the version identified by digest.
// The move is stamped with a fresh transaction so it shows up in the audit
// stream like any other mutation.
func (c *Core) Retag(ctx context.Context, name, digest string, actor Actor) error {
	if err := validateTagName(name); err != nil {
		return err
	}
	return c.withWriteRetry("retag", func() error {
		return c.retagOnce(ctx, name, digest, actor)
	})
}

func (c *Core) retagOnce(ctx context.Context, name, digest string, actor Actor) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin retag: %w", err)
	}
	defer tx.Rollback()

	vh, err := store.GetHashByDigestTx(ctx, tx, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Code: ErrCodeNotFound, Message: "unknown version hash", Ref: digest}
	}
	if err != nil {
		return fmt.Errorf("resolve digest: %w", err)
	}

	txID, err := store.InsertTransaction(ctx, tx, store.Transaction{
		IssuedAt:      c.clock.Now(),
		ActorID:       actor.ID,
		OriginAddress: actor.Origin,
		RequestID:     uuid.NewString(),
	})
	if err != nil {
		return err
	}

	if err := store.RetagTx(ctx, tx, name, vh.ID, txID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Error{Code: ErrCodeNotFound, Message: "unknown tag name", Ref: name}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit retag: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"tag":            name,
		"version_hash":   digest,
		"transaction_id": txID,
	}).Debug("tag moved")

	return nil
}

// TagsFor returns the tag names bound to a version digest, sorted.
func (c *Core) TagsFor(ctx context.Context, digest string) ([]string, error) {
	vh, err := c.store.GetHashByDigest(ctx, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Code: ErrCodeNotFound, Message: "unknown version hash", Ref: digest}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve digest: %w", err)
	}

	tags, err := c.store.TagsForHash(ctx, vh.ID)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.TagName
	}
	return names, nil
}

// ResolveTag resolves a tag name to its version digest and owning entity.
func (c *Core) ResolveTag(ctx context.Context, name string) (digest string, entityID int64, err error) {
	tag, err := c.store.GetTagByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, &Error{Code: ErrCodeNotFound, Message: "unknown tag name", Ref: name}
	}
	if err != nil {
		return "", 0, fmt.Errorf("resolve tag: %w", err)
	}

	vh, err := c.store.GetHashByID(ctx, tag.VersionHashID)
	if err != nil {
		return "", 0, fmt.Errorf("resolve tag hash: %w", err)
	}
	return vh.ContentHash, vh.EntityID, nil
}
