package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReconciledInvoice is one extraction record after customer resolution and
// numeric fill-in. It is the row handed to the report writer.
type ReconciledInvoice struct {
	Date         string `json:"date"`
	InvoiceNo    string `json:"invoice_no"`
	CustomerName string `json:"customer_name"`
	OriginalName string `json:"original_name"`
	ServiceType  string `json:"service_type,omitempty"`
	IsCount      bool   `json:"is_count"`

	WeightKG      int64               `json:"weight_kg"`
	PricePerUnit  decimal.Decimal     `json:"price_per_unit"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	CompanyAmount decimal.NullDecimal `json:"company_amount"`
	WorkerAmount  decimal.NullDecimal `json:"worker_amount"`

	Status     MatchStatus `json:"status"`
	Confidence float64     `json:"confidence"`
	PriceMatch bool        `json:"price_match"`
	IsFuzzy    bool        `json:"fuzzy_match"`

	SourceFile  string `json:"source_file"`
	RecordIndex int    `json:"record_index"`
}

// IsNewCustomer returns true if the record named a customer absent from the catalog
func (i ReconciledInvoice) IsNewCustomer() bool {
	return i.Status == StatusNewCustomerDetected
}

// String returns a string representation of the invoice
func (i ReconciledInvoice) String() string {
	return fmt.Sprintf("Invoice{No: %s, Customer: %s, Weight: %d, Price: %s, Total: %s}",
		i.InvoiceNo, i.CustomerName, i.WeightKG, i.PricePerUnit, i.TotalAmount)
}

// FuzzyMatch pairs an extracted name with the canonical name it resolved to
type FuzzyMatch struct {
	Original   string  `json:"original"`
	Matched    string  `json:"matched"`
	Confidence float64 `json:"confidence"`
}
