// Package matcher resolves a noisy extracted customer name and price to a
// canonical catalog customer.
//
// Resolution runs in stages:
//  1. Candidate generation through a Searcher (fuzzy ratio, optionally merged
//     with embedding similarity)
//  2. Price corroboration: candidates whose catalog price equals the
//     extracted price get the higher confidence weight
//  3. Ranking: every exact-price candidate outranks every name-only candidate
//  4. Arbitration among the top few candidates by a pluggable Arbiter, with a
//     deterministic fallback
//  5. An acceptance floor on the chosen candidate's combined confidence
//
// Example usage:
//
//	search := matcher.NewFuzzySearch(log)
//	cat.Register(ctx, search)
//
//	arb := matcher.NewArbitrator(search, nil, matcher.DefaultArbitrationConfig(), log)
//	decision := arb.Resolve(ctx, "ahmad", models.NullAmount(decimal.NewFromInt(100)))
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ArbitrationConfig holds the thresholds and weights of the resolution
// algorithm. Use DefaultArbitrationConfig for the production values.
type ArbitrationConfig struct {
	// TopK is the number of search candidates considered per query
	TopK int `json:"top_k" mapstructure:"top_k"`

	// ArbiterCandidates is the number of ranked candidates handed to the arbiter
	ArbiterCandidates int `json:"arbiter_candidates" mapstructure:"arbiter_candidates"`

	// PriceTolerance is the exclusive absolute difference under which two
	// prices are considered equal
	PriceTolerance float64 `json:"price_tolerance" mapstructure:"price_tolerance"`

	// ExactPriceWeight scales the similarity of candidates whose price matches
	ExactPriceWeight float64 `json:"exact_price_weight" mapstructure:"exact_price_weight"`

	// NameOnlyWeight scales the similarity of candidates matched on name alone
	NameOnlyWeight float64 `json:"name_only_weight" mapstructure:"name_only_weight"`

	// NameOnlyFloor is the exclusive lower bound a name-only candidate's
	// combined confidence must exceed to be ranked at all
	NameOnlyFloor float64 `json:"name_only_floor" mapstructure:"name_only_floor"`

	// AcceptanceFloor is the inclusive minimum combined confidence of the
	// chosen candidate
	AcceptanceFloor float64 `json:"acceptance_floor" mapstructure:"acceptance_floor"`
}

// DefaultArbitrationConfig returns the production thresholds
func DefaultArbitrationConfig() *ArbitrationConfig {
	return &ArbitrationConfig{
		TopK:              10,
		ArbiterCandidates: 3,
		PriceTolerance:    0.01,
		ExactPriceWeight:  0.95,
		NameOnlyWeight:    0.7,
		NameOnlyFloor:     0.6,
		AcceptanceFloor:   0.5,
	}
}

// Validate checks that the configuration is usable
func (c *ArbitrationConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top k must be positive: %d", c.TopK)
	}

	if c.ArbiterCandidates <= 0 || c.ArbiterCandidates > c.TopK {
		return fmt.Errorf("arbiter candidates must be between 1 and top k (%d): %d", c.TopK, c.ArbiterCandidates)
	}

	if c.PriceTolerance <= 0 {
		return fmt.Errorf("price tolerance must be positive: %f", c.PriceTolerance)
	}

	for name, v := range map[string]float64{
		"exact price weight": c.ExactPriceWeight,
		"name only weight":   c.NameOnlyWeight,
		"name only floor":    c.NameOnlyFloor,
		"acceptance floor":   c.AcceptanceFloor,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0: %f", name, v)
		}
	}

	if c.NameOnlyWeight > c.ExactPriceWeight {
		return fmt.Errorf("name only weight (%f) cannot exceed exact price weight (%f)", c.NameOnlyWeight, c.ExactPriceWeight)
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *ArbitrationConfig) Clone() *ArbitrationConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Tolerance returns PriceTolerance as a decimal
func (c *ArbitrationConfig) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.PriceTolerance)
}

// String returns a human-readable description of the configuration
func (c *ArbitrationConfig) String() string {
	return fmt.Sprintf("ArbitrationConfig{TopK: %d, ArbiterCandidates: %d, PriceTolerance: %.2f, Weights: %.2f/%.2f, NameOnlyFloor: %.2f, AcceptanceFloor: %.2f}",
		c.TopK, c.ArbiterCandidates, c.PriceTolerance, c.ExactPriceWeight, c.NameOnlyWeight, c.NameOnlyFloor, c.AcceptanceFloor)
}
