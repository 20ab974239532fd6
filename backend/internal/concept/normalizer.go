// Package concept resolves free-form concept mentions to stable canonical
// keys. Resolution is a three-stage pipeline: deterministic lexical
// normalization, an explicit alias dictionary, and an optional
// embedding-similarity merge into an existing canonical name.
package concept

import (
	"context"

	"go.uber.org/zap"
	"mindcoach/backend/pkg/logger"
)

// Normalizer composes the lexical normalizer, the alias table, and the
// similarity resolver into a single normalize(raw) -> canonical pipeline.
//
// Repeated application is idempotent in practice but not guaranteed across
// alias-table reloads: similarity resolution can merge two independently
// introduced canonical forms once the candidate set changes. That is an
// accepted approximation.
type Normalizer struct {
	aliases  *AliasTable
	resolver *SimilarityResolver // nil disables similarity resolution
	logger   *zap.Logger
}

// NewNormalizer creates the pipeline. resolver may be nil, in which case the
// pipeline runs lexical + alias resolution only.
func NewNormalizer(aliases *AliasTable, resolver *SimilarityResolver) *Normalizer {
	return &Normalizer{
		aliases:  aliases,
		resolver: resolver,
		logger:   logger.Named("concept"),
	}
}

// Normalize resolves a raw mention to its canonical key, short-circuiting on
// the first stage that produces an answer. Returns "" only when lexical
// normalization of raw is empty. A mention no stage can place becomes its own
// canonical name going forward.
func (n *Normalizer) Normalize(ctx context.Context, raw string) string {
	norm := NormalizeLexical(raw)
	if norm == "" {
		return ""
	}

	if canonical, ok := n.aliases.Lookup(norm); ok {
		return canonical
	}

	if n.resolver != nil {
		if canonical, score, ok := n.resolver.Resolve(ctx, norm, n.aliases.Canonicals()); ok {
			n.logger.Debug("Merged mention into canonical concept by similarity",
				zap.String("mention", norm),
				zap.String("canonical", canonical),
				zap.Float64("score", score))
			return canonical
		}
	}

	return norm
}

// Reload re-reads the alias table and drops the similarity resolver's
// derived embedding cache, so later lookups see the latest aliases.
func (n *Normalizer) Reload() {
	n.aliases.Reload()
	if n.resolver != nil {
		n.resolver.Invalidate()
	}
}

// AppendAliases merges new alias pairs into the persisted table and reloads
// the pipeline's caches. A persistence failure leaves the live table
// unchanged and is returned for the caller to log.
func (n *Normalizer) AppendAliases(pairs []AliasPair) error {
	if err := n.aliases.Append(pairs); err != nil {
		return err
	}
	if n.resolver != nil {
		n.resolver.Invalidate()
	}
	return nil
}
