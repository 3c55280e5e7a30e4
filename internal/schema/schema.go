// Package schema defines entity type descriptors: the explicit allowlist of
// versioned attributes per entity type, their kinds, and which of them are
// volatile (stored but excluded from the content digest).
//
// Descriptors are declared in CUE. Built-in types for the catalog
// (dataset, trained_model, task) are embedded; additional types can be
// loaded from a descriptor directory.
package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/vcatdb/vcat/internal/attr"
)

// Kind is the declared value kind of a versioned attribute.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// ValidKinds defines the allowed attribute kinds.
var ValidKinds = map[Kind]bool{
	KindString: true,
	KindInt:    true,
	KindBool:   true,
	KindObject: true,
	KindArray:  true,
}

// Attribute declares one versioned attribute of an entity type.
type Attribute struct {
	Name string
	Kind Kind

	// Volatile attributes (cached display-only fields such as previews)
	// are recorded in shadow history but excluded from the content digest.
	Volatile bool
}

// EntityType describes a versioned entity type: its name and the fixed,
// explicit set of attributes that participate in versioning. The set is an
// allowlist - undeclared attributes are rejected at write time, never
// silently hashed.
type EntityType struct {
	Name       string
	Attributes []Attribute
}

// identPattern constrains type and attribute names. Names become SQL
// identifiers in shadow tables, so anything outside this set is rejected
// at descriptor load time rather than quoted away.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedColumns are shadow table bookkeeping columns that attribute names
// must not collide with.
var reservedColumns = map[string]bool{
	"entity_id":          true,
	"transaction_id":     true,
	"end_transaction_id": true,
	"operation_kind":     true,
}

// Validate checks the descriptor for structural problems.
func (t EntityType) Validate() error {
	if !identPattern.MatchString(t.Name) {
		return fmt.Errorf("entity type %q: name must match %s", t.Name, identPattern)
	}
	if len(t.Attributes) == 0 {
		return fmt.Errorf("entity type %q: at least one attribute is required", t.Name)
	}

	seen := make(map[string]bool, len(t.Attributes))
	for _, a := range t.Attributes {
		if !identPattern.MatchString(a.Name) {
			return fmt.Errorf("entity type %q: attribute %q: name must match %s", t.Name, a.Name, identPattern)
		}
		if reservedColumns[a.Name] {
			return fmt.Errorf("entity type %q: attribute %q: name is reserved", t.Name, a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("entity type %q: attribute %q declared twice", t.Name, a.Name)
		}
		seen[a.Name] = true
		if !ValidKinds[a.Kind] {
			return fmt.Errorf("entity type %q: attribute %q: unknown kind %q", t.Name, a.Name, a.Kind)
		}
	}
	return nil
}

// Table returns the shadow table name for this entity type.
func (t EntityType) Table() string {
	return "shadow_" + t.Name + "s"
}

// Attribute returns the declared attribute with the given name.
func (t EntityType) Attribute(name string) (Attribute, bool) {
	for _, a := range t.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// CheckSnapshot verifies that every key of the snapshot is a declared
// attribute with a value of the declared kind. Null values are allowed for
// any attribute (explicit unknown).
func (t EntityType) CheckSnapshot(snap attr.Snapshot) error {
	for _, name := range snap.SortedKeys() {
		a, ok := t.Attribute(name)
		if !ok {
			return fmt.Errorf("entity type %q: attribute %q is not declared", t.Name, name)
		}
		if err := checkKind(a, snap[name]); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(a Attribute, v attr.Value) error {
	if _, isNull := v.(attr.Null); isNull {
		return nil
	}

	ok := false
	switch a.Kind {
	case KindString:
		_, ok = v.(attr.String)
	case KindInt:
		_, ok = v.(attr.Int)
	case KindBool:
		_, ok = v.(attr.Bool)
	case KindObject:
		_, ok = v.(attr.Object)
	case KindArray:
		_, ok = v.(attr.Array)
	}
	if !ok {
		return fmt.Errorf("attribute %q: value is not a %s", a.Name, a.Kind)
	}
	return nil
}

// HashedSnapshot filters the snapshot down to the non-volatile allowlist and
// normalizes it. The result is the exact input to the content hasher.
func (t EntityType) HashedSnapshot(snap attr.Snapshot) attr.Snapshot {
	out := make(attr.Snapshot, len(snap))
	for k, v := range snap {
		a, ok := t.Attribute(k)
		if !ok || a.Volatile {
			continue
		}
		out[k] = v
	}
	return out.Normalize()
}

// Registry holds the known entity types.
type Registry struct {
	types map[string]EntityType
}

// NewRegistry builds a registry from descriptors, validating each.
func NewRegistry(types []EntityType) (*Registry, error) {
	r := &Registry{types: make(map[string]EntityType, len(types))}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.types[t.Name]; dup {
			return nil, fmt.Errorf("entity type %q declared twice", t.Name)
		}
		r.types[t.Name] = t
	}
	return r, nil
}

// Get returns the descriptor for an entity type name.
func (r *Registry) Get(name string) (EntityType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// All returns every registered descriptor sorted by name.
func (r *Registry) All() []EntityType {
	out := make([]EntityType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
