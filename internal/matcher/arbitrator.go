package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/internal/normalize"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// NoneChoice is the arbiter answer meaning none of the candidates fits
const NoneChoice = "NONE"

// Arbiter makes the final choice among the top ranked candidates. It returns
// the chosen candidate's CustomerName or NoneChoice. Any error, or a name that
// is not one of the candidates, makes the arbitrator fall back to its
// deterministic choice.
type Arbiter interface {
	Choose(ctx context.Context, query string, price decimal.NullDecimal, candidates []models.MatchCandidate) (string, error)
}

// FallbackArbiter prefers the highest ranked exact-price candidate, else the
// top candidate.
type FallbackArbiter struct{}

// Choose implements Arbiter
func (FallbackArbiter) Choose(_ context.Context, _ string, _ decimal.NullDecimal, candidates []models.MatchCandidate) (string, error) {
	c, ok := fallbackChoice(candidates)
	if !ok {
		return NoneChoice, nil
	}
	return c.CustomerName, nil
}

func fallbackChoice(candidates []models.MatchCandidate) (models.MatchCandidate, bool) {
	if len(candidates) == 0 {
		return models.MatchCandidate{}, false
	}
	for _, c := range candidates {
		if c.ExactPriceMatch {
			return c, true
		}
	}
	return candidates[0], true
}

// Arbitrator turns a search over the catalog into a MatchDecision
type Arbitrator struct {
	search  Searcher
	arbiter Arbiter
	config  *ArbitrationConfig
	log     logger.Logger
}

// NewArbitrator creates an arbitrator. A nil arbiter means the deterministic
// fallback is used directly; a nil config means DefaultArbitrationConfig.
func NewArbitrator(search Searcher, arbiter Arbiter, config *ArbitrationConfig, log logger.Logger) *Arbitrator {
	if config == nil {
		config = DefaultArbitrationConfig()
	}
	if arbiter == nil {
		arbiter = FallbackArbiter{}
	}
	return &Arbitrator{
		search:  search,
		arbiter: arbiter,
		config:  config,
		log:     logger.OrGlobal(log, "arbitrator"),
	}
}

// Config returns the arbitration thresholds in use
func (a *Arbitrator) Config() *ArbitrationConfig {
	return a.config
}

// Resolve decides which catalog customer, if any, the extracted name and
// price refer to. It never fails: search or arbiter problems degrade to the
// deterministic path or to a new customer.
func (a *Arbitrator) Resolve(ctx context.Context, name string, price decimal.NullDecimal) models.MatchDecision {
	if normalize.Name(name) == "" {
		return models.NoNameDecision()
	}

	ranked, err := a.Candidates(ctx, name, price)
	if err != nil {
		a.log.WithError(err).WithField("customer_name", name).Warn("Similarity search failed, treating as new customer")
		return models.NewCustomerDecision(price)
	}
	if len(ranked) == 0 {
		a.log.WithField("customer_name", name).Debug("No candidate above threshold")
		return models.NewCustomerDecision(price)
	}

	shortlist := ranked
	if len(shortlist) > a.config.ArbiterCandidates {
		shortlist = shortlist[:a.config.ArbiterCandidates]
	}

	chosen, ok := a.arbitrate(ctx, name, price, shortlist)
	if !ok {
		return models.NewCustomerDecision(price)
	}

	if chosen.CombinedConfidence < a.config.AcceptanceFloor {
		a.log.WithFields(logger.Fields{
			"customer_name": name,
			"candidate":     chosen.CustomerName,
			"confidence":    chosen.CombinedConfidence,
		}).Debug("Chosen candidate below acceptance floor")
		return models.NewCustomerDecision(price)
	}

	a.log.WithFields(logger.Fields{
		"customer_name": name,
		"matched":       chosen.CustomerName,
		"confidence":    chosen.CombinedConfidence,
		"price_match":   chosen.ExactPriceMatch,
	}).Debug("Customer resolved")

	return models.MatchedDecision(chosen)
}

// Candidates returns the ranked candidate list: exact-price candidates by
// descending confidence, then name-only candidates above NameOnlyFloor by
// descending confidence.
func (a *Arbitrator) Candidates(ctx context.Context, name string, price decimal.NullDecimal) ([]models.MatchCandidate, error) {
	hits, err := a.search.TopK(ctx, name, a.config.TopK)
	if err != nil {
		return nil, errors.MatchingError(errors.CodeSearchUnavailable, "similarity search", err)
	}
	return RankCandidates(hits, price, a.config), nil
}

// RankCandidates scores search hits against the extracted price and orders
// them for arbitration.
func RankCandidates(hits []ScoredCustomer, price decimal.NullDecimal, config *ArbitrationConfig) []models.MatchCandidate {
	tolerance := config.Tolerance()

	var exact, nameOnly []models.MatchCandidate
	for _, hit := range hits {
		c := models.MatchCandidate{
			CustomerName:    hit.Customer.Name,
			SimilarityScore: hit.Score,
			CustomerPrice:   hit.Customer.PricePerUnit,
			ExtractedPrice:  price,
			ExactPriceMatch: models.PricesMatch(price, hit.Customer.PricePerUnit, tolerance),
		}
		if c.ExactPriceMatch {
			c.CombinedConfidence = hit.Score * config.ExactPriceWeight
			exact = append(exact, c)
			continue
		}
		c.CombinedConfidence = hit.Score * config.NameOnlyWeight
		if c.CombinedConfidence > config.NameOnlyFloor {
			nameOnly = append(nameOnly, c)
		}
	}

	byConfidence := func(list []models.MatchCandidate) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CombinedConfidence > list[j].CombinedConfidence
		})
	}
	byConfidence(exact)
	byConfidence(nameOnly)

	return append(exact, nameOnly...)
}

// arbitrate asks the arbiter and falls back deterministically when its answer
// is unusable. The bool is false when the arbiter chose none.
func (a *Arbitrator) arbitrate(ctx context.Context, name string, price decimal.NullDecimal, shortlist []models.MatchCandidate) (models.MatchCandidate, bool) {
	answer, err := a.arbiter.Choose(ctx, name, price, shortlist)
	if err == nil {
		if strings.EqualFold(strings.TrimSpace(answer), NoneChoice) {
			a.log.WithField("customer_name", name).Debug("Arbiter chose none")
			return models.MatchCandidate{}, false
		}
		if c, ok := lookupCandidate(shortlist, answer); ok {
			return c, true
		}
		err = fmt.Errorf("answer %q names no candidate", answer)
	}

	a.log.WithError(errors.MatchingError(errors.CodeArbiterUnavailable, "arbiter", err)).
		WithField("customer_name", name).
		Warn("Arbiter unavailable, using deterministic fallback")
	return fallbackChoice(shortlist)
}

func lookupCandidate(candidates []models.MatchCandidate, answer string) (models.MatchCandidate, bool) {
	want := strings.TrimSpace(answer)
	for _, c := range candidates {
		if strings.EqualFold(c.CustomerName, want) {
			return c, true
		}
	}
	return models.MatchCandidate{}, false
}
