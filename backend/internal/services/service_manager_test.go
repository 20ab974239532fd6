package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mindcoach/backend/internal/concept"
	"mindcoach/backend/pkg/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()

	aliasPath := filepath.Join(dir, "aliases.json")
	raw, err := json.Marshal(map[string]map[string]string{
		"aliases": {"梯度下降": "gradient descent"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(aliasPath, raw, 0o644))

	cfg := &config.Config{
		Env:               "development",
		DBPath:            ":memory:",
		AliasPath:         aliasPath,
		ProfileConfigPath: filepath.Join(dir, "missing_config.yaml"),
		// No embedding model: the engine runs degraded, lexical + alias only
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_ApplyAndListProfiles(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	vec, err := m.ApplyLearningEvent(ctx, []string{"梯度下降", "Recursion"}, "explain", "u1", "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.08, vec.U, 1e-9)

	profiles, err := m.GetAllProfiles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	keys := []string{profiles[0].ConceptKey, profiles[1].ConceptKey}
	assert.Contains(t, keys, "gradient descent")
	assert.Contains(t, keys, "recursion")

	lineage, err := m.LineageConcepts(ctx, []string{"c1"}, "u1")
	require.NoError(t, err)
	assert.Len(t, lineage, 2)
}

func TestManager_WeakProfilesAndDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyLearningEvent(ctx, []string{"sorting"}, "practice", "u1", "")
	require.NoError(t, err)
	_, err = m.ApplyLearningEvent(ctx, []string{"recursion"}, "explain", "u1", "")
	require.NoError(t, err)
	_, err = m.ApplyLearningEvent(ctx, []string{"recursion"}, "explain", "u1", "")
	require.NoError(t, err)

	weak, err := m.GetWeakProfiles(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, weak, 1)
	assert.Equal(t, "sorting", weak[0].ConceptKey)

	require.NoError(t, m.DeleteProfile(ctx, "sorting", "u1"))
	profiles, err := m.GetAllProfiles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "recursion", profiles[0].ConceptKey)
}

func TestManager_PlanRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AddToPlan(ctx, "recursion", "u1"))
	require.NoError(t, m.AddToPlan(ctx, "sorting", "u1"))

	plan, err := m.GetPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"recursion", "sorting"}, plan)

	require.NoError(t, m.RemoveFromPlan(ctx, "recursion", "u1"))
	plan, err = m.GetPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sorting"}, plan)
}

func TestManager_AppendAliasesFeedsNormalization(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.AppendAliases([]concept.AliasPair{{Alias: "OLS", Canonical: "linear regression"}})

	_, err := m.ApplyLearningEvent(ctx, []string{"OLS"}, "derive", "u1", "")
	require.NoError(t, err)

	profiles, err := m.GetAllProfiles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "linear regression", profiles[0].ConceptKey)
}

func TestManager_RetryEmbeddingStaysUnavailable(t *testing.T) {
	m := newTestManager(t)

	// Embeddings were never configured; retry re-resolves and fails again
	assert.False(t, m.RetryEmbedding())
}
