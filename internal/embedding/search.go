package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TanWaiKen/invoice-ai-excel/internal/matcher"
	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Cache persists vectors between runs. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, model, text string) ([]float64, bool, error)
	Put(ctx context.Context, model, text string, vector []float64) error
}

type entry struct {
	customer models.Customer
	vector   []float64
}

// Search is the embedding-similarity strategy. It implements
// matcher.Searcher, matcher.Capability and the catalog index contract.
type Search struct {
	embedder Embedder
	cache    Cache
	model    string
	log      logger.Logger

	probeInterval time.Duration
	now           func() time.Time

	mu        sync.RWMutex
	entries   []entry
	ready     bool
	probedAt  time.Time
	reachable bool
}

// NewSearch creates an empty embedding index. model is the cache namespace.
func NewSearch(embedder Embedder, cache Cache, model string, log logger.Logger) *Search {
	return &Search{
		embedder: embedder,
		cache:    cache,
		model:    model,
		log:      logger.OrGlobal(log, "embedding-search"),

		probeInterval: DefaultProbeInterval,
		now:           time.Now,
	}
}

// SetProbeInterval sets how long an availability probe result is trusted.
// Non-positive values keep the current interval.
func (s *Search) SetProbeInterval(d time.Duration) {
	if d > 0 {
		s.mu.Lock()
		s.probeInterval = d
		s.mu.Unlock()
	}
}

// Document renders the text embedded for one customer
func Document(c models.Customer) string {
	parts := []string{
		"Customer: " + c.Name,
		"Price per ton: RM" + c.PricePerUnit.StringFixed(2),
		"Formula: " + c.Formula.Display(),
	}
	if c.CompanyAmount.Valid {
		parts = append(parts, "Company: RM"+c.CompanyAmount.Decimal.StringFixed(2))
	}
	if c.WorkerAmount.Valid {
		parts = append(parts, "Worker: RM"+c.WorkerAmount.Decimal.StringFixed(2))
	}
	return strings.Join(parts, " | ")
}

// Name identifies the index to the catalog
func (s *Search) Name() string { return "embedding" }

// Available reports whether the strategy can serve queries. The embedding
// service is probed again once the last result is older than the probe
// interval, so a service started or stopped later is noticed.
func (s *Search) Available(ctx context.Context) bool {
	s.mu.RLock()
	stale := s.probedAt.IsZero() || s.now().Sub(s.probedAt) >= s.probeInterval
	ok := s.reachable && s.ready
	s.mu.RUnlock()
	if !stale {
		return ok
	}

	_, err := s.embedder.Embed(ctx, "test")

	s.mu.Lock()
	first, was := s.probedAt.IsZero(), s.reachable
	s.reachable, s.probedAt = err == nil, s.now()
	ok = s.reachable && s.ready
	s.mu.Unlock()

	switch {
	case err != nil && (first || was):
		s.log.WithError(err).Warn("Embedding service unavailable, using fuzzy search only")
	case err != nil:
		s.log.WithError(err).Debug("Embedding service still unavailable")
	case !was:
		s.log.Info("Embedding service reachable")
	}
	return ok
}

// Rebuild embeds every customer document. On failure the index is left
// empty and marked not ready.
func (s *Search) Rebuild(ctx context.Context, customers []models.Customer) error {
	entries := make([]entry, 0, len(customers))
	hits := 0
	for _, c := range customers {
		vec, cached, err := s.vector(ctx, Document(c))
		if err != nil {
			s.mu.Lock()
			s.entries, s.ready = nil, false
			s.mu.Unlock()
			return fmt.Errorf("embedding %q: %w", c.Name, err)
		}
		if cached {
			hits++
		}
		entries = append(entries, entry{customer: c, vector: vec})
	}

	s.mu.Lock()
	s.entries, s.ready = entries, true
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{
		"customers":  len(entries),
		"cache_hits": hits,
	}).Info("Embedding index rebuilt")
	return nil
}

// TopK implements matcher.Searcher
func (s *Search) TopK(ctx context.Context, query string, k int) ([]matcher.ScoredCustomer, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	qv, _, err := s.vector(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]matcher.ScoredCustomer, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, matcher.ScoredCustomer{Customer: e.customer, Score: Cosine(qv, e.vector)})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *Search) vector(ctx context.Context, text string) ([]float64, bool, error) {
	if s.cache != nil {
		vec, ok, err := s.cache.Get(ctx, s.model, text)
		if err != nil {
			s.log.WithError(err).Debug("Embedding cache read failed")
		} else if ok {
			return vec, true, nil
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, s.model, text, vec); err != nil {
			s.log.WithError(err).Debug("Embedding cache write failed")
		}
	}
	return vec, false, nil
}

// Cosine returns the cosine similarity of a and b clamped to [0,1]. Vectors
// of different length or zero norm score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
