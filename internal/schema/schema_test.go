package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcatdb/vcat/internal/attr"
)

func testType() EntityType {
	return EntityType{
		Name: "dataset",
		Attributes: []Attribute{
			{Name: "name", Kind: KindString},
			{Name: "format", Kind: KindString},
			{Name: "row_count", Kind: KindInt},
			{Name: "is_private", Kind: KindBool},
			{Name: "metadata", Kind: KindObject},
			{Name: "preview_url", Kind: KindString, Volatile: true},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, testType().Validate())
}

func TestValidate_BadTypeName(t *testing.T) {
	et := testType()
	et.Name = "Data-Set"
	assert.Error(t, et.Validate())
}

func TestValidate_ReservedAttributeName(t *testing.T) {
	et := testType()
	et.Attributes = append(et.Attributes, Attribute{Name: "transaction_id", Kind: KindInt})
	assert.Error(t, et.Validate())
}

func TestValidate_DuplicateAttribute(t *testing.T) {
	et := testType()
	et.Attributes = append(et.Attributes, Attribute{Name: "name", Kind: KindString})
	assert.Error(t, et.Validate())
}

func TestValidate_UnknownKind(t *testing.T) {
	et := testType()
	et.Attributes[0].Kind = Kind("float")
	assert.Error(t, et.Validate())
}

func TestTable(t *testing.T) {
	assert.Equal(t, "shadow_datasets", testType().Table())
}

func TestCheckSnapshot(t *testing.T) {
	et := testType()

	snap := attr.Snapshot{
		"name":       attr.String("demo"),
		"row_count":  attr.Int(100),
		"is_private": attr.Bool(false),
		"metadata":   attr.Object{"source": attr.String("s3")},
	}
	require.NoError(t, et.CheckSnapshot(snap))
}

func TestCheckSnapshot_UndeclaredAttribute(t *testing.T) {
	et := testType()

	err := et.CheckSnapshot(attr.Snapshot{"undeclared": attr.Int(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared")
}

func TestCheckSnapshot_WrongKind(t *testing.T) {
	et := testType()

	err := et.CheckSnapshot(attr.Snapshot{"row_count": attr.String("many")})
	assert.Error(t, err)
}

func TestCheckSnapshot_NullAllowedForAnyKind(t *testing.T) {
	et := testType()

	snap := attr.Snapshot{
		"name":      attr.Null{},
		"row_count": attr.Null{},
		"metadata":  attr.Null{},
	}
	assert.NoError(t, et.CheckSnapshot(snap))
}

func TestHashedSnapshot_DropsVolatileAndUndeclared(t *testing.T) {
	et := testType()

	snap := attr.Snapshot{
		"name":        attr.String("demo"),
		"preview_url": attr.String("https://cache.example/p.png"),
		"stray":       attr.Int(1),
		"format":      attr.Null{},
	}

	hashed := et.HashedSnapshot(snap)

	assert.Equal(t, attr.Snapshot{"name": attr.String("demo")}, hashed)
}

func TestHashedSnapshot_VolatileChangeKeepsDigest(t *testing.T) {
	et := testType()

	base := attr.Snapshot{"name": attr.String("demo"), "row_count": attr.Int(5)}
	withPreview := base.Clone()
	withPreview["preview_url"] = attr.String("https://cache.example/v2.png")

	d1 := attr.MustSnapshotDigest(et.Name, et.HashedSnapshot(base))
	d2 := attr.MustSnapshotDigest(et.Name, et.HashedSnapshot(withPreview))

	assert.Equal(t, d1, d2)
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry([]EntityType{testType()})
	require.NoError(t, err)

	et, ok := reg.Get("dataset")
	require.True(t, ok)
	assert.Equal(t, "dataset", et.Name)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_DuplicateType(t *testing.T) {
	_, err := NewRegistry([]EntityType{testType(), testType()})
	assert.Error(t, err)
}

func TestRegistry_AllSorted(t *testing.T) {
	a := testType()
	b := testType()
	b.Name = "task"
	c := testType()
	c.Name = "trained_model"

	reg, err := NewRegistry([]EntityType{c, a, b})
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "dataset", all[0].Name)
	assert.Equal(t, "task", all[1].Name)
	assert.Equal(t, "trained_model", all[2].Name)
}
