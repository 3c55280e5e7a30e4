package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/version"
)

func TestPrintWriteResult_Text(t *testing.T) {
	var buf bytes.Buffer
	err := printWriteResult(&buf, "text", version.WriteResult{
		EntityID:      3,
		TransactionID: 12,
		VersionHash:   "abc",
		Created:       true,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "created entity 3 at transaction 12")
	assert.Contains(t, buf.String(), "version abc")
	assert.NotContains(t, buf.String(), "content unchanged")
}

func TestPrintWriteResult_TextReused(t *testing.T) {
	var buf bytes.Buffer
	err := printWriteResult(&buf, "text", version.WriteResult{
		EntityID:      3,
		TransactionID: 13,
		VersionHash:   "abc",
		HashReused:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "updated entity 3")
	assert.Contains(t, buf.String(), "content unchanged")
}

func TestPrintWriteResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := printWriteResult(&buf, "json", version.WriteResult{
		EntityID:      3,
		TransactionID: 12,
		VersionHash:   "abc",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(3), decoded["entity_id"])
	assert.Equal(t, "abc", decoded["version_hash"])
	assert.Equal(t, false, decoded["created"])
}

func TestPrintState_Text(t *testing.T) {
	var buf bytes.Buffer
	err := printState(&buf, "text", version.State{
		EntityID:      1,
		EntityType:    "dataset",
		TransactionID: 4,
		VersionHash:   "abc",
		Attributes:    attr.Snapshot{"name": attr.String("demo")},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "entity 1 (dataset) at transaction 4")
	assert.Contains(t, buf.String(), `"name": "demo"`)
}

func TestPrintHistory_Text(t *testing.T) {
	end := int64(5)
	var buf bytes.Buffer
	err := printHistory(&buf, "text", []version.VersionInfo{
		{Index: 0, TransactionID: 2, EndTransactionID: &end, Operation: "insert", VersionHash: "abc", Tags: []string{"baseline"}},
		{Index: 1, TransactionID: 5, Operation: "update", VersionHash: "def", Tags: []string{}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "~0  tx 2..5")
	assert.Contains(t, buf.String(), "[baseline]")
	assert.Contains(t, buf.String(), "~1  tx 5..open")
}

func TestPrintTags(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTags(&buf, "text", []string{"baseline", "v1"}))
	assert.Equal(t, "baseline\nv1\n", buf.String())
}
