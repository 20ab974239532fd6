package concept

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"mindcoach/backend/internal/adapter"
	"mindcoach/backend/pkg/logger"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for merging a
// novel mention into an existing canonical name.
const DefaultSimilarityThreshold = 0.88

// warmBatchSize is how many canonical names go into one embeddings request.
const warmBatchSize = 32

// warmConcurrency bounds parallel embeddings requests during cache warm-up.
const warmConcurrency = 4

// SimilarityResolver merges a novel mention into an existing canonical name
// when embedding similarity crosses the threshold. It degrades to a no-op
// whenever the embedding capability is unavailable, and any per-query
// embedding error is treated as "no match".
type SimilarityResolver struct {
	source    *adapter.EmbedderSource
	threshold float64
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string][]float32 // canonical name -> embedding
}

// NewSimilarityResolver creates a resolver around the given embedder source.
// A threshold outside (0, 1] falls back to the default.
func NewSimilarityResolver(source *adapter.EmbedderSource, threshold float64) *SimilarityResolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &SimilarityResolver{
		source:    source,
		threshold: threshold,
		logger:    logger.Named("similarity"),
		cache:     make(map[string][]float32),
	}
}

// Invalidate drops every cached canonical embedding. Called whenever the
// alias table reloads, since the canonical name set may have changed.
func (r *SimilarityResolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string][]float32)
	r.mu.Unlock()
}

// Resolve returns the best-matching canonical name for a lexically-normalized
// query, along with its similarity score. The boolean is false when no
// canonical scores at or above the threshold, or when embeddings are
// unavailable. Exact score ties go to the first name in canonicals.
func (r *SimilarityResolver) Resolve(ctx context.Context, query string, canonicals []string) (string, float64, bool) {
	if query == "" || len(canonicals) == 0 {
		return "", 0, false
	}

	embedder, ok := r.source.Get()
	if !ok {
		return "", 0, false
	}

	r.Warm(ctx, canonicals)

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("Failed to embed query, skipping similarity resolution",
			zap.String("query", query), zap.Error(err))
		return "", 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bestName := ""
	bestScore := 0.0
	for _, name := range canonicals {
		vec, cached := r.cache[name]
		if !cached {
			continue
		}
		// Strict > keeps the first-seen name on exact ties.
		if sim := cosineSimilarity(queryVec, vec); sim > bestScore {
			bestScore = sim
			bestName = name
		}
	}

	if bestName == "" || bestScore < r.threshold {
		return "", 0, false
	}
	return bestName, bestScore, true
}

// Warm computes and caches embeddings for any canonical names not yet cached,
// batching requests and bounding concurrency. Failed batches are logged and
// skipped; their names simply stay uncached.
func (r *SimilarityResolver) Warm(ctx context.Context, canonicals []string) {
	embedder, ok := r.source.Get()
	if !ok {
		return
	}

	r.mu.Lock()
	missing := make([]string, 0)
	for _, name := range canonicals {
		if _, cached := r.cache[name]; !cached {
			missing = append(missing, name)
		}
	}
	r.mu.Unlock()

	if len(missing) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for start := 0; start < len(missing); start += warmBatchSize {
		end := start + warmBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		g.Go(func() error {
			vectors, err := embedder.EmbedBatch(gctx, batch)
			if err != nil {
				r.logger.Warn("Failed to embed canonical names",
					zap.Int("count", len(batch)), zap.Error(err))
				return nil // degrade, don't cancel sibling batches
			}

			r.mu.Lock()
			for i, name := range batch {
				if i < len(vectors) && len(vectors[i]) > 0 {
					r.cache[name] = vectors[i]
				}
			}
			r.mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either is empty, zero-length, or dimensions mismatch.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
