package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileConfig_Defaults(t *testing.T) {
	cfg := DefaultProfileConfig()

	assert.Equal(t, ActivityVector{U: 0.08, R: 0.04, A: 0.02}, cfg.ActivityVectorFor("explain"))
	assert.Equal(t, ActivityVector{U: 0.04, R: 0.09, A: 0.03}, cfg.ActivityVectorFor("derive"))
	assert.Equal(t, ActivityVector{U: 0.04, R: 0.05, A: 0.08}, cfg.ActivityVectorFor("practice"))
	assert.Equal(t, ActivityVector{U: 0.05, R: 0.02, A: 0.0}, cfg.ActivityVectorFor("recall"))
	assert.InDelta(t, 0.88, cfg.SimilarityThreshold, 1e-9)
	assert.Zero(t, cfg.DecayHalfLifeDays)
}

func TestProfileConfig_UnknownActivityFallsBackToExplain(t *testing.T) {
	cfg := DefaultProfileConfig()
	assert.Equal(t, cfg.ActivityVectorFor("explain"), cfg.ActivityVectorFor("debate"))
}

func TestProfileConfig_LookupIsCaseInsensitive(t *testing.T) {
	cfg := DefaultProfileConfig()
	assert.Equal(t, cfg.ActivityVectorFor("practice"), cfg.ActivityVectorFor(" Practice "))
}

func TestProfileConfig_BuiltinDefaultWhenExplainRemoved(t *testing.T) {
	cfg := &ProfileConfig{ActivityWeights: map[string]ActivityVector{}}
	assert.Equal(t, ActivityVector{U: 0.05, R: 0.03, A: 0.02}, cfg.ActivityVectorFor("anything"))
}

func TestLoadProfileConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadProfileConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, DefaultProfileConfig().ActivityWeights, cfg.ActivityWeights)
}

func TestLoadProfileConfig_OverlaysAndSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	doc := `
activity_weights:
  quiz: [0.1, 0.2, 0.3]
  Explain: [0.2, 0.1, 0.05]
  short: [0.1, 0.2]
  wordy: [a, b, c]
similarity_threshold: 0.9
decay_half_life_days: 14
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg := LoadProfileConfig(path)

	assert.Equal(t, ActivityVector{U: 0.1, R: 0.2, A: 0.3}, cfg.ActivityVectorFor("quiz"))
	assert.Equal(t, ActivityVector{U: 0.2, R: 0.1, A: 0.05}, cfg.ActivityVectorFor("explain"))
	// Malformed entries are skipped, so these fall back to explain
	assert.Equal(t, cfg.ActivityVectorFor("explain"), cfg.ActivityVectorFor("short"))
	assert.Equal(t, cfg.ActivityVectorFor("explain"), cfg.ActivityVectorFor("wordy"))
	// Defaults not named in the file survive
	assert.Equal(t, ActivityVector{U: 0.04, R: 0.05, A: 0.08}, cfg.ActivityVectorFor("practice"))
	assert.InDelta(t, 0.9, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, 14, cfg.DecayHalfLifeDays)
}

func TestLoadProfileConfig_InvalidThresholdKeepsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("similarity_threshold: 2.5\n"), 0o644))

	cfg := LoadProfileConfig(path)
	assert.InDelta(t, 0.88, cfg.SimilarityThreshold, 1e-9)
}

func TestLoadProfileConfig_MalformedDocumentUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - not yaml"), 0o644))

	cfg := LoadProfileConfig(path)
	assert.Equal(t, DefaultProfileConfig().ActivityWeights, cfg.ActivityWeights)
}
