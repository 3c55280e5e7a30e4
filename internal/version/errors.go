package version

import (
	"errors"
	"fmt"
)

// Error is a typed failure of a versioning operation. All domain failures
// are returned as values of this type; nothing in the core aborts the
// process.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EntityID identifies the affected entity, when known.
	EntityID int64

	// Ref is the digest, tag, or transaction reference involved, if any.
	Ref string
}

// ErrorCode categorizes versioning errors.
type ErrorCode string

const (
	// ErrCodeConflict indicates two writers raced on the same entity.
	// Retry is safe and recommended; the core already retries a bounded
	// number of times before surfacing this.
	ErrCodeConflict ErrorCode = "CONCURRENCY_CONFLICT"

	// ErrCodeNotFound indicates an unknown entity id, digest, tag, or an
	// out-of-range transaction id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAlreadyExists indicates a duplicate tag name or a create
	// racing an existing entity.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// ErrCodeSchemaInconsistency indicates a snapshot that does not match
	// the entity type's declared attributes, or a stored row that cannot
	// be decoded under the declared kinds.
	ErrCodeSchemaInconsistency ErrorCode = "SCHEMA_INCONSISTENCY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.EntityID != 0 && e.Ref != "":
		return fmt.Sprintf("%s: %s (entity=%d, ref=%s)", e.Code, e.Message, e.EntityID, e.Ref)
	case e.EntityID != 0:
		return fmt.Sprintf("%s: %s (entity=%d)", e.Code, e.Message, e.EntityID)
	case e.Ref != "":
		return fmt.Sprintf("%s: %s (ref=%s)", e.Code, e.Message, e.Ref)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsNotFound reports whether err is a NOT_FOUND versioning error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsConflict reports whether err is a CONCURRENCY_CONFLICT versioning error.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsAlreadyExists reports whether err is an ALREADY_EXISTS versioning error.
func IsAlreadyExists(err error) bool {
	return hasCode(err, ErrCodeAlreadyExists)
}

// IsSchemaInconsistency reports whether err is a SCHEMA_INCONSISTENCY
// versioning error.
func IsSchemaInconsistency(err error) bool {
	return hasCode(err, ErrCodeSchemaInconsistency)
}

func hasCode(err error, code ErrorCode) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

func notFound(format string, args ...any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func alreadyExists(format string, args ...any) *Error {
	return &Error{Code: ErrCodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *Error {
	return &Error{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

func schemaInconsistency(format string, args ...any) *Error {
	return &Error{Code: ErrCodeSchemaInconsistency, Message: fmt.Sprintf(format, args...)}
}
