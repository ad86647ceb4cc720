package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// weightServiceKeywords mark service types billed per 1000 kg
var weightServiceKeywords = []string{"memetik", "tandan", "sawit", "pengangkutan", "sewa", "lori"}

// ExtractionRecord is one invoice line read from an image. Numeric fields
// are optional; the reconciler decides how to fill gaps.
type ExtractionRecord struct {
	Date         string              `json:"date"`
	InvoiceNo    string              `json:"invoice_no"`
	CustomerName string              `json:"customer_name"`
	ServiceType  string              `json:"service_type,omitempty"`
	IsCount      bool                `json:"is_count"`
	WeightKG     decimal.NullDecimal `json:"weight_kg"`
	PricePerTon  decimal.NullDecimal `json:"price_per_ton"`
	Total        decimal.NullDecimal `json:"total"`

	// Provenance, set by the batch processor
	SourceFile  string `json:"source_file,omitempty"`
	RecordIndex int    `json:"record_index,omitempty"`
}

// IsCountService reports whether a service type is billed per unit rather
// than per 1000 kg.
func IsCountService(serviceType string) bool {
	lower := strings.ToLower(serviceType)
	for _, keyword := range weightServiceKeywords {
		if strings.Contains(lower, keyword) {
			return false
		}
	}
	return true
}

// IsLainLain reports whether a name or service type denotes the catch-all
// "lain-lain" category. Matching is on word prefixes so "Lain-lain",
// "lain2" and "LAIN LAIN" qualify but "Blaine" does not.
func IsLainLain(s string) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(s), isWordBreak) {
		if strings.HasPrefix(word, "lain") {
			return true
		}
	}
	return false
}

func isWordBreak(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
}
