package attr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// DomainSnapshot is the domain prefix for snapshot content digests.
// The version suffix enables future algorithm migration.
const DomainSnapshot = "vcat/snapshot/v1"

// digestHexLen is the length of a hex-encoded SHA-256 digest.
const digestHexLen = 64

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest computes the content digest of an entity snapshot.
// The entity type participates in the digest so that two entities of
// different types never alias even when their attribute sets coincide.
//
// The snapshot must already be filtered to the hashed attribute allowlist
// and normalized (no nulls); the digest of a snapshot never depends on key
// order, write timing, or how many times the content was written.
func SnapshotDigest(entityType string, snap Snapshot) (string, error) {
	obj := Object{
		"entity_type": String(entityType),
		"attributes":  snap,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("snapshot digest: %w", err)
	}

	return hashWithDomain(DomainSnapshot, canonical), nil
}

// IsDigest reports whether s is syntactically a snapshot digest
// (64 lowercase hex characters). Used to disambiguate version references:
// anything else is treated as a tag name or index.
func IsDigest(s string) bool {
	return len(s) == digestHexLen && digestPattern.MatchString(s)
}

// MustSnapshotDigest is like SnapshotDigest but panics on error.
// Use only in tests with inputs known to be valid.
func MustSnapshotDigest(entityType string, snap Snapshot) string {
	d, err := SnapshotDigest(entityType, snap)
	if err != nil {
		panic(err)
	}
	return d
}
