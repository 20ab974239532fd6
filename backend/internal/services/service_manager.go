// Package services wires the canonicalization and mastery engine together
// and exposes the operations the orchestration layer consumes. Everything is
// constructed once here and passed down explicitly; the engine has no hidden
// globals beyond the process logger.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"mindcoach/backend/internal/adapter"
	"mindcoach/backend/internal/concept"
	"mindcoach/backend/internal/profile"
	"mindcoach/backend/pkg/config"
	apperrors "mindcoach/backend/pkg/errors"
	"mindcoach/backend/pkg/logger"
)

// Manager owns the engine's components and their lifecycle
type Manager struct {
	cfg        *config.Config
	logger     *zap.Logger
	profileCfg *profile.ProfileConfig
	store      *profile.Store
	aliases    *concept.AliasTable
	source     *adapter.EmbedderSource
	normalizer *concept.Normalizer
	applier    *profile.Applier
}

// NewManager constructs the whole engine from configuration: profile config,
// SQLite store, alias table, embedder source, similarity resolver, concept
// normalizer, and the learning-event applier.
func NewManager(cfg *config.Config) (*Manager, error) {
	log := logger.Get()

	profileCfg := profile.LoadProfileConfig(cfg.ProfileConfigPath)

	store, err := profile.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening profile store: %w", err)
	}

	aliases := concept.NewAliasTable(cfg.AliasPath)

	source := adapter.NewEmbedderSource(func() (adapter.Embedder, error) {
		if !cfg.EmbeddingConfigured() {
			return nil, apperrors.ErrEmbeddingUnavailable
		}
		return adapter.NewEmbeddingAdapter(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel), nil
	})
	resolver := concept.NewSimilarityResolver(source, profileCfg.SimilarityThreshold)
	normalizer := concept.NewNormalizer(aliases, resolver)

	applier := profile.NewApplier(normalizer, profileCfg, store)

	log.Info("Mastery engine initialized",
		zap.String("db_path", cfg.DBPath),
		zap.String("alias_path", cfg.AliasPath),
		zap.Int("aliases", aliases.Len()),
		zap.Bool("embedding_configured", cfg.EmbeddingConfigured()))

	return &Manager{
		cfg:        cfg,
		logger:     log,
		profileCfg: profileCfg,
		store:      store,
		aliases:    aliases,
		source:     source,
		normalizer: normalizer,
		applier:    applier,
	}, nil
}

// Close tears the engine down
func (m *Manager) Close() error {
	return m.store.Close()
}

// ApplyLearningEvent normalizes the event's concept mentions, applies the
// activity's mastery increment to each resulting profile, and records
// conversation lineage. Returns the activity's delta vector.
func (m *Manager) ApplyLearningEvent(ctx context.Context, rawConcepts []string, activity, userID, conversationID string) (profile.ActivityVector, error) {
	return m.applier.Apply(ctx, rawConcepts, activity, userID, conversationID)
}

// GetAllProfiles returns every profile for a user, best-mastered first
func (m *Manager) GetAllProfiles(ctx context.Context, userID string) ([]profile.ConceptProfile, error) {
	return m.store.ListAll(ctx, userID)
}

// GetWeakProfiles returns up to limit profiles with the lowest understanding
func (m *Manager) GetWeakProfiles(ctx context.Context, userID string, limit int) ([]profile.ConceptProfile, error) {
	return m.store.ListWeakest(ctx, userID, limit)
}

// DeleteProfile removes one profile row; lineage records are preserved
func (m *Manager) DeleteProfile(ctx context.Context, conceptKey, userID string) error {
	return m.store.Delete(ctx, conceptKey, userID)
}

// AddToPlan adds a concept to the user's learning plan
func (m *Manager) AddToPlan(ctx context.Context, conceptKey, userID string) error {
	return m.store.AddToPlan(ctx, conceptKey, userID)
}

// RemoveFromPlan removes a concept from the user's learning plan
func (m *Manager) RemoveFromPlan(ctx context.Context, conceptKey, userID string) error {
	return m.store.RemoveFromPlan(ctx, conceptKey, userID)
}

// GetPlan returns the user's learning plan in insertion order
func (m *Manager) GetPlan(ctx context.Context, userID string) ([]string, error) {
	return m.store.Plan(ctx, userID)
}

// AppendAliases merges suggested alias pairs into the persisted table and
// reloads the normalization pipeline. Persistence failures are logged and
// swallowed: the live table stays consistent and a later append retries the
// write. Mastery bookkeeping is a best-effort side channel and must never
// fail the caller.
func (m *Manager) AppendAliases(pairs []concept.AliasPair) {
	if err := m.normalizer.AppendAliases(pairs); err != nil {
		m.logger.Warn("Failed to append aliases", zap.Error(err))
	}
}

// LineageConcepts returns the distinct concepts recorded under the given
// conversation ids, the ancestor context for follow-up questions.
func (m *Manager) LineageConcepts(ctx context.Context, conversationIDs []string, userID string) ([]string, error) {
	return m.store.LineageConcepts(ctx, conversationIDs, userID)
}

// RetryEmbedding forces re-resolution of the embedding capability after an
// earlier failure, e.g. once a proxy is back up.
func (m *Manager) RetryEmbedding() bool {
	_, ok := m.source.Retry()
	return ok
}
