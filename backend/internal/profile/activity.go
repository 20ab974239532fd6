package profile

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"mindcoach/backend/pkg/logger"
)

// ActivityVector is the per-event mastery increment for one learning
// activity type, across understanding / reasoning / application.
type ActivityVector struct {
	U float64 `json:"u"`
	R float64 `json:"r"`
	A float64 `json:"a"`
}

// ZeroVector is returned for events that touch no concepts
var ZeroVector = ActivityVector{}

// fallbackActivity is consulted for unknown activity labels
const fallbackActivity = "explain"

// builtinDefaultVector is the final fallback when even the explain weight is
// absent from configuration.
var builtinDefaultVector = ActivityVector{U: 0.05, R: 0.03, A: 0.02}

// ProfileConfig holds the declarative engine configuration: the activity
// weight table, the similarity threshold, and the reserved decay parameter.
type ProfileConfig struct {
	ActivityWeights     map[string]ActivityVector
	SimilarityThreshold float64

	// DecayHalfLifeDays is reserved for time-based mastery decay.
	// 0 disables it; nothing consumes it yet.
	DecayHalfLifeDays int
}

// DefaultProfileConfig returns the built-in configuration, matching the
// weights the engine ships with before any file overrides.
func DefaultProfileConfig() *ProfileConfig {
	return &ProfileConfig{
		ActivityWeights: map[string]ActivityVector{
			"explain":  {U: 0.08, R: 0.04, A: 0.02},
			"derive":   {U: 0.04, R: 0.09, A: 0.03},
			"practice": {U: 0.04, R: 0.05, A: 0.08},
			"recall":   {U: 0.05, R: 0.02, A: 0.0},
		},
		SimilarityThreshold: 0.88,
		DecayHalfLifeDays:   0,
	}
}

// rawProfileConfig is the YAML file shape. Weights are parsed loosely so one
// malformed entry can be skipped without rejecting the whole table.
type rawProfileConfig struct {
	ActivityWeights     map[string][]any `yaml:"activity_weights"`
	SimilarityThreshold *float64         `yaml:"similarity_threshold"`
	DecayHalfLifeDays   *int             `yaml:"decay_half_life_days"`
}

// LoadProfileConfig reads the YAML config at path, overlaying it on the
// defaults. Configuration problems are never fatal: a missing file, a
// malformed document, or a bad entry each log a warning and keep defaults.
func LoadProfileConfig(path string) *ProfileConfig {
	log := logger.Named("profile")
	cfg := DefaultProfileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("Profile config not found, using defaults", zap.String("path", path))
		} else {
			log.Warn("Failed to read profile config, using defaults",
				zap.String("path", path), zap.Error(err))
		}
		return cfg
	}

	var raw rawProfileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		log.Warn("Failed to parse profile config, using defaults",
			zap.String("path", path), zap.Error(err))
		return cfg
	}

	for name, values := range raw.ActivityWeights {
		vec, ok := parseActivityVector(values)
		if !ok {
			log.Warn("Skipping malformed activity weight entry",
				zap.String("activity", name))
			continue
		}
		cfg.ActivityWeights[strings.ToLower(strings.TrimSpace(name))] = vec
	}

	if raw.SimilarityThreshold != nil {
		if t := *raw.SimilarityThreshold; t > 0 && t <= 1 {
			cfg.SimilarityThreshold = t
		} else {
			log.Warn("Invalid similarity_threshold, using default",
				zap.Float64("value", *raw.SimilarityThreshold))
		}
	}

	if raw.DecayHalfLifeDays != nil && *raw.DecayHalfLifeDays >= 0 {
		cfg.DecayHalfLifeDays = *raw.DecayHalfLifeDays
	}

	return cfg
}

// ActivityVectorFor returns the configured vector for an activity label,
// case-insensitively. Unknown labels fall back to the explain vector, and a
// hard-coded default covers configurations with explain removed.
func (c *ProfileConfig) ActivityVectorFor(activity string) ActivityVector {
	key := strings.ToLower(strings.TrimSpace(activity))
	if vec, ok := c.ActivityWeights[key]; ok {
		return vec
	}
	if vec, ok := c.ActivityWeights[fallbackActivity]; ok {
		return vec
	}
	return builtinDefaultVector
}

// parseActivityVector validates one weight entry: exactly three numbers
func parseActivityVector(values []any) (ActivityVector, bool) {
	if len(values) != 3 {
		return ActivityVector{}, false
	}
	nums := make([]float64, 3)
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return ActivityVector{}, false
		}
		nums[i] = f
	}
	return ActivityVector{U: nums[0], R: nums[1], A: nums[2]}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
