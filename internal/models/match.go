package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchStatus is the outcome of resolving one extracted name
type MatchStatus string

const (
	StatusMatchFound          MatchStatus = "match_found"
	StatusNewCustomerDetected MatchStatus = "new_customer_detected"
	StatusNoNameProvided      MatchStatus = "no_name_provided"
)

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known outcomes
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusMatchFound, StatusNewCustomerDetected, StatusNoNameProvided:
		return true
	}
	return false
}

// MatchCandidate is a catalog customer under consideration for one query
type MatchCandidate struct {
	CustomerName       string              `json:"customer_name"`
	SimilarityScore    float64             `json:"similarity_score"`
	CustomerPrice      decimal.Decimal     `json:"customer_price"`
	ExtractedPrice     decimal.NullDecimal `json:"extracted_price"`
	ExactPriceMatch    bool                `json:"exact_price_match"`
	CombinedConfidence float64             `json:"combined_confidence"`
}

// String returns a string representation of the candidate
func (c MatchCandidate) String() string {
	return fmt.Sprintf("%s (similarity %.2f, price %s, exact %v, confidence %.3f)",
		c.CustomerName, c.SimilarityScore, c.CustomerPrice, c.ExactPriceMatch, c.CombinedConfidence)
}

// MatchDecision is the result of arbitration for one extracted name
type MatchDecision struct {
	Status              MatchStatus         `json:"status"`
	MatchedCustomerName string              `json:"matched_customer_name,omitempty"`
	ConfidenceScore     float64             `json:"confidence_score"`
	PriceMatch          bool                `json:"price_match"`
	ExtractedPrice      decimal.NullDecimal `json:"extracted_price"`
	CustomerPrice       decimal.NullDecimal `json:"customer_price"`
}

// IsMatch returns true if a catalog customer was selected
func (d MatchDecision) IsMatch() bool {
	return d.Status == StatusMatchFound
}

// NoNameDecision is returned for blank input names
func NoNameDecision() MatchDecision {
	return MatchDecision{Status: StatusNoNameProvided}
}

// NewCustomerDecision is returned when no candidate is accepted
func NewCustomerDecision(extracted decimal.NullDecimal) MatchDecision {
	return MatchDecision{Status: StatusNewCustomerDetected, ExtractedPrice: extracted}
}

// MatchedDecision builds a match_found decision from the chosen candidate
func MatchedDecision(c MatchCandidate) MatchDecision {
	return MatchDecision{
		Status:              StatusMatchFound,
		MatchedCustomerName: c.CustomerName,
		ConfidenceScore:     c.CombinedConfidence,
		PriceMatch:          c.ExactPriceMatch,
		ExtractedPrice:      c.ExtractedPrice,
		CustomerPrice:       NullAmount(c.CustomerPrice),
	}
}
