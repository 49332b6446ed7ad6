package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/retry"
)

const (
	// DefaultBatchSize is the number of texts sent per remote request.
	DefaultBatchSize = 64
	// LocalBatchSize is the reduced batch for the CPU-bound local tier.
	LocalBatchSize = 16

	maxAttempts   = 5
	baseTimeout   = 120 * time.Second
	timeoutGrowth = 30 * time.Second
)

// Tier is one rung of the fallback chain.
type Tier struct {
	Provider  Provider
	BatchSize int
	breaker   *gobreaker.CircuitBreaker
}

// Service generates embeddings through the tier chain, consulting the
// permanent cache first. A batch lost by every tier fails the whole call;
// the caller decides whether to abort or skip the document.
type Service struct {
	tiers  []*Tier
	cache  *VectorCache
	logger observability.Logger
	wait   func(ctx context.Context, d time.Duration) error
}

// NewService builds the service over the given tiers, in fallback order.
// cache may be nil.
func NewService(tiers []*Tier, cache *VectorCache, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	for _, t := range tiers {
		if t.BatchSize <= 0 {
			t.BatchSize = DefaultBatchSize
		}
		t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedding-" + t.Provider.Name(),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return &Service{tiers: tiers, cache: cache, logger: logger.WithPrefix("embedding"), wait: waitFor}
}

func waitFor(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result carries the vectors of one Generate call and the model that
// produced the fresh ones.
type Result struct {
	Vectors   [][]float32
	ModelName string
}

// Generate embeds the given texts, in order. Cached texts are served from
// the embedding cache; only misses reach a provider.
func (s *Service) Generate(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return &Result{}, nil
	}
	if len(s.tiers) == 0 {
		return nil, fmt.Errorf("no embedding providers configured")
	}

	vectors := make([][]float32, len(texts))
	modelName := ""

	missIdx := s.fillFromCache(ctx, texts, vectors)

	if len(missIdx) > 0 {
		missTexts := make([]string, len(missIdx))
		for i, idx := range missIdx {
			missTexts[i] = texts[idx]
		}

		batchSize := s.tiers[0].BatchSize
		for start := 0; start < len(missTexts); start += batchSize {
			end := start + batchSize
			if end > len(missTexts) {
				end = len(missTexts)
			}
			batch := missTexts[start:end]

			batchVectors, tier, err := s.generateBatch(ctx, batch)
			if err != nil {
				return nil, fmt.Errorf("embedding batch %d-%d failed on all tiers: %w", start, end, err)
			}
			modelName = tier.Provider.ModelName()

			for i, v := range batchVectors {
				vectors[missIdx[start+i]] = v
			}

			if s.cache != nil {
				if err := s.cache.BatchPut(ctx, batch, batchVectors, modelName); err != nil {
					s.logger.Warn("embedding cache write failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}
	}

	return &Result{Vectors: vectors, ModelName: modelName}, nil
}

// GenerateOne is sugar over Generate for a single text.
func (s *Service) GenerateOne(ctx context.Context, text string) ([]float32, error) {
	result, err := s.Generate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return result.Vectors[0], nil
}

// fillFromCache fills vectors from the cache and returns the indices of the
// misses. Cache failures degrade to a full miss.
func (s *Service) fillFromCache(ctx context.Context, texts []string, vectors [][]float32) []int {
	missIdx := make([]int, 0, len(texts))
	if s.cache == nil {
		for i := range texts {
			missIdx = append(missIdx, i)
		}
		return missIdx
	}

	hashes := make([]string, len(texts))
	for i, t := range texts {
		hashes[i] = HashText(t)
	}

	hits, err := s.cache.BatchGet(ctx, hashes)
	if err != nil {
		s.logger.Warn("embedding cache lookup failed", map[string]interface{}{"error": err.Error()})
		hits = map[string]CachedVector{}
	}

	for i := range texts {
		if hit, ok := hits[hashes[i]]; ok {
			vectors[i] = hit.Embedding
		} else {
			missIdx = append(missIdx, i)
		}
	}
	return missIdx
}

// generateBatch walks the tier chain for one batch.
func (s *Service) generateBatch(ctx context.Context, batch []string) ([][]float32, *Tier, error) {
	var lastErr error

	for _, tier := range s.tiers {
		vectors, err := s.tryTier(ctx, tier, batch)
		if err == nil {
			return vectors, tier, nil
		}
		lastErr = err
		s.logger.Warn("embedding tier failed, falling through", map[string]interface{}{
			"tier": tier.Provider.Name(), "error": err.Error(),
		})
	}
	return nil, nil, lastErr
}

// tryTier runs one tier with its retry policy: timeouts start at 120 s and
// grow 30 s per attempt, up to five attempts; 429 backs off 2^(n+2) s, 5xx
// backs off 2^n s; any other 4xx abandons the tier immediately.
func (s *Service) tryTier(ctx context.Context, tier *Tier, batch []string) ([][]float32, error) {
	// The local tier runs smaller sub-batches to fit memory.
	if tier.BatchSize < len(batch) {
		out := make([][]float32, 0, len(batch))
		for start := 0; start < len(batch); start += tier.BatchSize {
			end := start + tier.BatchSize
			if end > len(batch) {
				end = len(batch)
			}
			vectors, err := s.tryTier(ctx, tier, batch[start:end])
			if err != nil {
				return nil, err
			}
			out = append(out, vectors...)
		}
		return out, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, baseTimeout+time.Duration(attempt)*timeoutGrowth)
		result, err := tier.breaker.Execute(func() (interface{}, error) {
			return tier.Provider.Generate(attemptCtx, batch)
		})
		cancel()

		if err == nil {
			vectors := result.([][]float32)
			if len(vectors) != len(batch) {
				return nil, fmt.Errorf("tier %s returned %d vectors for %d texts",
					tier.Provider.Name(), len(vectors), len(batch))
			}
			return vectors, nil
		}
		lastErr = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, err
		}

		status := retry.StatusCode(err)
		if status >= 400 && status < 500 && status != 429 {
			// Permanent client error: abandon this tier.
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// No point backing off after the last attempt; fall through to the
		// next tier immediately.
		if attempt == maxAttempts-1 {
			break
		}
		if err := s.wait(ctx, retry.StatusBackoff(status, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
