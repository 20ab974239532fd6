package concept

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAliasFile(t *testing.T, path string, aliases map[string]string) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"aliases": aliases})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestAliasTable_LookupNormalizesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	writeAliasFile(t, path, map[string]string{
		"MFCC特征提取": "MFCC",
		"反向传播算法":    "Backpropagation",
	})

	table := NewAliasTable(path)

	canonical, ok := table.Lookup("mfcc特征提取")
	assert.True(t, ok)
	assert.Equal(t, "mfcc", canonical)

	_, ok = table.Lookup("nonexistent")
	assert.False(t, ok)

	assert.Equal(t, []string{"backpropagation", "mfcc"}, table.Canonicals())
}

func TestAliasTable_MissingFileYieldsEmptyTable(t *testing.T) {
	table := NewAliasTable(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Canonicals())
}

func TestAliasTable_MalformedFileYieldsEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	table := NewAliasTable(path)
	assert.Equal(t, 0, table.Len())
}

func TestAliasTable_AppendPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	table := NewAliasTable(path)

	err := table.Append([]AliasPair{
		{Alias: "GD", Canonical: "Gradient Descent"},
		{Alias: "", Canonical: "dropped"},
		{Alias: "same", Canonical: "same"},
	})
	require.NoError(t, err)

	canonical, ok := table.Lookup("gd")
	assert.True(t, ok)
	assert.Equal(t, "gradient descent", canonical)
	assert.Equal(t, 1, table.Len())

	// A fresh table sees the persisted state
	fresh := NewAliasTable(path)
	canonical, ok = fresh.Lookup("gd")
	assert.True(t, ok)
	assert.Equal(t, "gradient descent", canonical)
}

func TestAliasTable_AppendOverwritesExistingAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	writeAliasFile(t, path, map[string]string{"bp": "backprop"})

	table := NewAliasTable(path)
	require.NoError(t, table.Append([]AliasPair{{Alias: "bp", Canonical: "backpropagation"}}))

	// Last write wins
	canonical, ok := table.Lookup("bp")
	assert.True(t, ok)
	assert.Equal(t, "backpropagation", canonical)
}

func TestAliasTable_AppendFailureLeavesMemoryUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.json")
	writeAliasFile(t, path, map[string]string{"gd": "gradient descent"})

	table := NewAliasTable(path)

	// Make the directory read-only so the temp-file write fails
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err := table.Append([]AliasPair{{Alias: "sgd", Canonical: "stochastic gradient descent"}})
	assert.Error(t, err)

	_, ok := table.Lookup("sgd")
	assert.False(t, ok)
	canonical, ok := table.Lookup("gd")
	assert.True(t, ok)
	assert.Equal(t, "gradient descent", canonical)
}

func TestAliasTable_ReloadPicksUpExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.json")
	writeAliasFile(t, path, map[string]string{"gd": "gradient descent"})

	table := NewAliasTable(path)
	assert.Equal(t, 1, table.Len())

	writeAliasFile(t, path, map[string]string{
		"gd":  "gradient descent",
		"sgd": "stochastic gradient descent",
	})
	table.Reload()

	canonical, ok := table.Lookup("sgd")
	assert.True(t, ok)
	assert.Equal(t, "stochastic gradient descent", canonical)
}
