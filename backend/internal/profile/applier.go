package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"mindcoach/backend/pkg/logger"
)

// ConceptNormalizer is the slice of the concept pipeline the applier needs
type ConceptNormalizer interface {
	Normalize(ctx context.Context, raw string) string
}

// EventStore is the slice of the profile store the applier writes through
type EventStore interface {
	Upsert(ctx context.Context, conceptKey string, delta ActivityVector, userID string) error
	RecordLineage(ctx context.Context, conversationID string, conceptKeys []string, userID string) error
}

// Applier is the batch entry point for learning events: it canonicalizes the
// event's raw concept mentions, resolves the activity's increment vector,
// and folds that increment into every resulting profile row.
type Applier struct {
	normalizer ConceptNormalizer
	config     *ProfileConfig
	store      EventStore
	logger     *zap.Logger
}

// NewApplier creates an applier over the given pipeline, config, and store
func NewApplier(normalizer ConceptNormalizer, config *ProfileConfig, store EventStore) *Applier {
	return &Applier{
		normalizer: normalizer,
		config:     config,
		store:      store,
		logger:     logger.Named("profile"),
	}
}

// Apply records one learning event against a set of raw concept mentions.
//
// Mentions are normalized independently and NOT deduplicated: two mentions
// resolving to the same canonical key receive the delta twice within this
// event. Lineage, when a conversation id is present, is recorded once per
// distinct key.
//
// An upsert failure partway through leaves earlier upserts in place; there is
// no transactional envelope across the batch, so a retried event is
// at-least-once from the mastery-accounting perspective. The activity's delta
// vector is returned either way, as a coarse per-event score for the caller.
func (a *Applier) Apply(ctx context.Context, rawConcepts []string, activity, userID, conversationID string) (ActivityVector, error) {
	if len(rawConcepts) == 0 {
		return ZeroVector, nil
	}

	effective := strings.ToLower(strings.TrimSpace(activity))
	if effective == "" {
		effective = fallbackActivity
	}
	vec := a.config.ActivityVectorFor(effective)

	keys := make([]string, 0, len(rawConcepts))
	for _, raw := range rawConcepts {
		if key := a.normalizer.Normalize(ctx, raw); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ZeroVector, nil
	}

	eventID := uuid.NewString()

	for i, key := range keys {
		if err := a.store.Upsert(ctx, key, vec, userID); err != nil {
			a.logger.Warn("Learning event partially applied",
				zap.String("event_id", eventID),
				zap.Int("applied", i),
				zap.Int("total", len(keys)),
				zap.Error(err))
			return vec, fmt.Errorf("applying event %s: %w", eventID, err)
		}
	}

	if conversationID != "" {
		if err := a.store.RecordLineage(ctx, conversationID, distinct(keys), userID); err != nil {
			return vec, fmt.Errorf("recording lineage for event %s: %w", eventID, err)
		}
	}

	a.logger.Info("Learning event applied",
		zap.String("event_id", eventID),
		zap.String("activity", effective),
		zap.Int("concepts", len(keys)),
		zap.String("user_id", normalizeUser(userID)))

	return vec, nil
}

// distinct keeps the first occurrence of each key, preserving order
func distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
