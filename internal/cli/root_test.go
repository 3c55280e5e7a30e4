package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "vcat", cmd.Use)
	assert.Contains(t, cmd.Long, "provenance")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"write", "show", "history", "tag", "retag", "tags", "delete", "verify"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("actor"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"history", "--id", "1", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestWriteCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	writeCmd, _, err := cmd.Find([]string{"write"})
	require.NoError(t, err)

	for _, name := range []string{"id", "name", "type", "attrs", "file", "tag"} {
		assert.NotNil(t, writeCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestShowCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	showCmd, _, err := cmd.Find([]string{"show"})
	require.NoError(t, err)

	for _, name := range []string{"id", "at", "ref", "hash", "tag"} {
		assert.NotNil(t, showCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

// run executes the CLI against a shared database and returns its output.
func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestEndToEnd(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")

	out, err := run(t, db, "write",
		"--name", "mnist", "--type", "dataset",
		"--attrs", `{"format": "idx", "is_private": false}`,
		"--tag", "baseline")
	require.NoError(t, err, out)
	assert.Contains(t, out, "created entity 1")

	out, err = run(t, db, "show", "--id", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "mnist")
	assert.Contains(t, out, "idx")

	out, err = run(t, db, "write", "--id", "1",
		"--attrs", `{"format": "parquet"}`)
	require.NoError(t, err, out)
	assert.Contains(t, out, "updated entity 1")

	// The tag still pins the original content.
	out, err = run(t, db, "show", "--tag", "baseline")
	require.NoError(t, err, out)
	assert.Contains(t, out, "idx")

	out, err = run(t, db, "history", "--id", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "insert")
	assert.Contains(t, out, "update")
	assert.Contains(t, out, "baseline")

	out, err = run(t, db, "show", "--id", "1", "--ref", "~0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "idx")

	out, err = run(t, db, "verify", "--id", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "missing hashes:   0")
	assert.Contains(t, out, "drifted pointers: 0")
	assert.Contains(t, out, "latest tx:        3")

	out, err = run(t, db, "delete", "--id", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "deleted entity 1")

	_, err = run(t, db, "show", "--id", "1")
	require.Error(t, err)
}

func TestEndToEnd_JSONFormat(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")

	out, err := run(t, db, "write",
		"--name", "mnist", "--type", "dataset",
		"--attrs", `{"format": "idx"}`,
		"--format", "json")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"entity_id": 1`)
	assert.Contains(t, out, `"version_hash"`)
}
