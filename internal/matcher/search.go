package matcher

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/agext/levenshtein"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/internal/normalize"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// ScoredCustomer is one search hit
type ScoredCustomer struct {
	Customer models.Customer
	Score    float64
}

// Searcher ranks catalog customers by closeness to a query. Results are
// sorted descending by Score, each Score is in [0,1] and the result holds at
// most k entries.
type Searcher interface {
	TopK(ctx context.Context, query string, k int) ([]ScoredCustomer, error)
}

// Capability is implemented by strategies that may be absent at runtime
type Capability interface {
	Available(ctx context.Context) bool
}

// ratioParams make the edit distance count a substitution as a deletion
// plus an insertion, so Similarity is (len(a)+len(b)-dist)/(len(a)+len(b)).
var ratioParams = levenshtein.NewParams().SubCost(2)

// Ratio scores two already-normalized names in [0,1]
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, ratioParams)
}

type fuzzyEntry struct {
	customer models.Customer
	key      string
}

// FuzzySearch scores every customer by edit-distance ratio over normalized
// names. It is always available and is the baseline strategy.
type FuzzySearch struct {
	mu      sync.RWMutex
	entries []fuzzyEntry
	log     logger.Logger
}

// NewFuzzySearch creates an empty fuzzy index
func NewFuzzySearch(log logger.Logger) *FuzzySearch {
	return &FuzzySearch{log: logger.OrGlobal(log, "fuzzy-search")}
}

// Name identifies the index to the catalog
func (s *FuzzySearch) Name() string { return "fuzzy" }

// Rebuild replaces the index with the given customers
func (s *FuzzySearch) Rebuild(_ context.Context, customers []models.Customer) error {
	entries := make([]fuzzyEntry, 0, len(customers))
	for _, c := range customers {
		entries = append(entries, fuzzyEntry{customer: c, key: normalize.Name(c.Name)})
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.log.WithField("customers", len(entries)).Debug("Fuzzy index rebuilt")
	return nil
}

// TopK implements Searcher
func (s *FuzzySearch) TopK(_ context.Context, query string, k int) ([]ScoredCustomer, error) {
	q := normalize.Name(query)
	if q == "" || k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	results := make([]ScoredCustomer, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, ScoredCustomer{Customer: e.customer, Score: Ratio(q, e.key)})
	}
	s.mu.RUnlock()

	return rank(results, k), nil
}

// Scorer scores a single customer against a query on the same scale as the
// strategy's TopK
type Scorer interface {
	Score(query string, c models.Customer) float64
}

// Score implements Scorer with the normalized-name ratio
func (s *FuzzySearch) Score(query string, c models.Customer) float64 {
	return Ratio(normalize.Name(query), normalize.Name(c.Name))
}

// CompositeSearch merges a baseline strategy with optional ones. Scores
// always come from the baseline: optional strategies only contribute extra
// customers, which the baseline then scores when it implements Scorer, and
// break ties between equal baseline scores. Optional strategies that are
// unavailable or fail are skipped.
type CompositeSearch struct {
	primary  Searcher
	optional []Searcher
	log      logger.Logger
}

// NewCompositeSearch combines primary with the optional strategies
func NewCompositeSearch(log logger.Logger, primary Searcher, optional ...Searcher) *CompositeSearch {
	return &CompositeSearch{
		primary:  primary,
		optional: optional,
		log:      logger.OrGlobal(log, "composite-search"),
	}
}

type compositeHit struct {
	ScoredCustomer
	support float64
}

// TopK implements Searcher
func (s *CompositeSearch) TopK(ctx context.Context, query string, k int) ([]ScoredCustomer, error) {
	hits, err := s.primary.TopK(ctx, query, k)
	if err != nil {
		return nil, err
	}

	merged := make([]compositeHit, 0, len(hits))
	pos := make(map[string]int, len(hits))
	for _, hit := range hits {
		pos[customerKey(hit.Customer)] = len(merged)
		merged = append(merged, compositeHit{ScoredCustomer: hit})
	}

	scorer, canScore := s.primary.(Scorer)
	for _, strategy := range s.optional {
		if c, ok := strategy.(Capability); ok && !c.Available(ctx) {
			continue
		}
		extra, err := strategy.TopK(ctx, query, k)
		if err != nil {
			s.log.WithError(err).WithField("query", query).Warn("Optional search strategy failed, continuing without it")
			continue
		}
		for _, hit := range extra {
			key := customerKey(hit.Customer)
			if i, ok := pos[key]; ok {
				if hit.Score > merged[i].support {
					merged[i].support = hit.Score
				}
				continue
			}
			if !canScore {
				continue
			}
			pos[key] = len(merged)
			merged = append(merged, compositeHit{
				ScoredCustomer: ScoredCustomer{Customer: hit.Customer, Score: scorer.Score(query, hit.Customer)},
				support:        hit.Score,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if clamp01(merged[i].Score) != clamp01(merged[j].Score) {
			return clamp01(merged[i].Score) > clamp01(merged[j].Score)
		}
		return merged[i].support > merged[j].support
	})
	results := make([]ScoredCustomer, len(merged))
	for i, m := range merged {
		results[i] = m.ScoredCustomer
	}
	return rank(results, k), nil
}

func customerKey(c models.Customer) string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// rank clamps scores to [0,1], sorts descending keeping input order on ties
// and truncates to k.
func rank(results []ScoredCustomer, k int) []ScoredCustomer {
	for i := range results {
		results[i].Score = clamp01(results[i].Score)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
