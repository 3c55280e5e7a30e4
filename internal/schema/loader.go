package schema

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed builtin.cue
var builtinCUE []byte

// Builtin returns the embedded catalog entity types
// (dataset, trained_model, task).
func Builtin() ([]EntityType, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(builtinCUE)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile builtin descriptors: %w", err)
	}
	return parseTypes(value)
}

// LoadDir loads entity type descriptors from every CUE file in a directory.
// Descriptors use the same shape as the built-ins:
//
//	entity: <type_name>: attributes: <attr_name>: {kind: "...", volatile: bool}
func LoadDir(dir string) ([]EntityType, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("descriptor directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("descriptor path %s is not a directory", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}

	return parseTypes(value)
}

// parseTypes extracts EntityType descriptors from a built CUE value.
func parseTypes(value cue.Value) ([]EntityType, error) {
	entityVal := value.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, fmt.Errorf("no entity declarations found")
	}

	iter, err := entityVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating entity types: %w", err)
	}

	var types []EntityType
	for iter.Next() {
		t, err := parseType(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no entity types declared")
	}
	return types, nil
}

func parseType(name string, v cue.Value) (EntityType, error) {
	t := EntityType{Name: name}

	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return t, fmt.Errorf("entity type %q: attributes are required", name)
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return t, fmt.Errorf("entity type %q: iterating attributes: %w", name, err)
	}

	for iter.Next() {
		a, err := parseAttribute(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return t, fmt.Errorf("entity type %q: %w", name, err)
		}
		t.Attributes = append(t.Attributes, a)
	}

	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func parseAttribute(name string, v cue.Value) (Attribute, error) {
	a := Attribute{Name: name}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return a, fmt.Errorf("attribute %q: kind is required", name)
	}
	kind, err := kindVal.String()
	if err != nil {
		return a, fmt.Errorf("attribute %q: kind: %w", name, err)
	}
	a.Kind = Kind(kind)

	volVal := v.LookupPath(cue.ParsePath("volatile"))
	if volVal.Exists() {
		vol, err := volVal.Bool()
		if err != nil {
			return a, fmt.Errorf("attribute %q: volatile: %w", name, err)
		}
		a.Volatile = vol
	}

	return a, nil
}
