package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/internal/normalize"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

var thousand = decimal.NewFromInt(1000)

// Config holds configuration options for reconciliation
type Config struct {
	// AppendNewCustomers adds customers detected as new, with a positive
	// extracted price, to the in-memory catalog so later records resolve
	// to them
	AppendNewCustomers bool `json:"append_new_customers" mapstructure:"append_new_customers"`

	// ImageExtensions lists the file extensions treated as invoice images
	ImageExtensions []string `json:"image_extensions" mapstructure:"image_extensions"`

	// ProgressReporting enables per-image progress notifications
	ProgressReporting bool `json:"progress_reporting" mapstructure:"progress_reporting"`
}

// DefaultConfig returns a default configuration for reconciliation
func DefaultConfig() *Config {
	return &Config{
		AppendNewCustomers: true,
		ImageExtensions:    []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"},
		ProgressReporting:  false,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.ImageExtensions) == 0 {
		return fmt.Errorf("at least one image extension is required")
	}
	for _, ext := range c.ImageExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("image extension must start with a dot: %q", ext)
		}
	}
	return nil
}

// Resolver decides which catalog customer an extracted name refers to
type Resolver interface {
	Resolve(ctx context.Context, name string, price decimal.NullDecimal) models.MatchDecision
}

// CustomerSource is the catalog as seen by the reconciler
type CustomerSource interface {
	ByExactName(name string) (models.Customer, bool)
	Append(ctx context.Context, customer models.Customer) bool
}

// RecordReconciler turns one extraction record into a ReconciledInvoice
type RecordReconciler struct {
	catalog  CustomerSource
	resolver Resolver
	config   *Config
	log      logger.Logger
}

// NewRecordReconciler creates a reconciler
func NewRecordReconciler(catalog CustomerSource, resolver Resolver, config *Config, log logger.Logger) *RecordReconciler {
	if config == nil {
		config = DefaultConfig()
	}
	return &RecordReconciler{
		catalog:  catalog,
		resolver: resolver,
		config:   config,
		log:      logger.OrGlobal(log, "reconciler"),
	}
}

// Reconcile resolves the record's customer and fills in weight, price and
// total. A record whose name is blank after normalization is skipped with a
// RecordMalformed error.
func (r *RecordReconciler) Reconcile(ctx context.Context, rec models.ExtractionRecord) (models.ReconciledInvoice, error) {
	original := strings.TrimSpace(rec.CustomerName)
	if normalize.Name(original) == "" {
		return models.ReconciledInvoice{}, errors.NewSkipped(errors.CategoryExtraction, errors.CodeRecordMalformed,
			errors.Location{Source: rec.SourceFile, Row: rec.RecordIndex, Column: "customer_name", Value: rec.CustomerName},
			"customer name is blank")
	}

	decision := r.resolver.Resolve(ctx, original, rec.PricePerTon)

	inv := models.ReconciledInvoice{
		Date:         strings.TrimSpace(rec.Date),
		InvoiceNo:    strings.TrimSpace(rec.InvoiceNo),
		CustomerName: original,
		OriginalName: original,
		ServiceType:  rec.ServiceType,
		IsCount:      rec.IsCount,
		Status:       decision.Status,
		Confidence:   decision.ConfidenceScore,
		PriceMatch:   decision.PriceMatch,
		SourceFile:   rec.SourceFile,
		RecordIndex:  rec.RecordIndex,
	}

	var customer models.Customer
	var known bool
	if decision.IsMatch() {
		inv.CustomerName = decision.MatchedCustomerName
		inv.IsFuzzy = decision.MatchedCustomerName != original
		customer, known = r.catalog.ByExactName(decision.MatchedCustomerName)
	}

	inv.PricePerUnit = resolvePrice(rec.PricePerTon, customer, known)
	inv.WeightKG = resolveWeight(rec, inv.PricePerUnit)
	if models.IsLainLain(inv.CustomerName) {
		inv.WeightKG = 1
	}
	inv.TotalAmount = resolveTotal(rec.Total, inv.WeightKG, inv.PricePerUnit, inv.IsCount)

	if known {
		inv.CompanyAmount = customer.CompanyAmount
		inv.WorkerAmount = customer.WorkerAmount
	}

	if inv.IsNewCustomer() {
		r.recordNewCustomer(ctx, inv)
	}

	r.log.WithFields(logger.Fields{
		"source_file":   inv.SourceFile,
		"record_index":  inv.RecordIndex,
		"customer_name": original,
		"resolved":      inv.CustomerName,
		"status":        inv.Status,
		"weight_kg":     inv.WeightKG,
	}).Debug("Record reconciled")

	return inv, nil
}

func (r *RecordReconciler) recordNewCustomer(ctx context.Context, inv models.ReconciledInvoice) {
	if !r.config.AppendNewCustomers || !inv.PricePerUnit.IsPositive() {
		return
	}
	if r.catalog.Append(ctx, models.NewCustomer(inv.CustomerName, inv.PricePerUnit)) {
		r.log.WithFields(logger.Fields{
			"customer_name": inv.CustomerName,
			"price":         inv.PricePerUnit.String(),
		}).Info("New customer added to catalog")
	}
}

// resolvePrice prefers the extracted unit price, then the catalog price
func resolvePrice(extracted decimal.NullDecimal, customer models.Customer, known bool) decimal.Decimal {
	if extracted.Valid && extracted.Decimal.IsPositive() {
		return extracted.Decimal
	}
	if known {
		return customer.PricePerUnit
	}
	return decimal.Zero
}

// resolveWeight uses the extracted weight when present and nonzero, else
// back-computes it from total and price. Fractions are truncated.
func resolveWeight(rec models.ExtractionRecord, price decimal.Decimal) int64 {
	if rec.WeightKG.Valid && !rec.WeightKG.Decimal.IsZero() {
		return rec.WeightKG.Decimal.IntPart()
	}
	if !rec.Total.Valid || !rec.Total.Decimal.IsPositive() || !price.IsPositive() {
		return 0
	}
	if rec.IsCount {
		return rec.Total.Decimal.Div(price).IntPart()
	}
	return rec.Total.Decimal.Mul(thousand).Div(price).IntPart()
}

// resolveTotal keeps a positive extracted total, else applies the formula
func resolveTotal(extracted decimal.NullDecimal, weight int64, price decimal.Decimal, isCount bool) decimal.Decimal {
	if extracted.Valid && extracted.Decimal.IsPositive() {
		return extracted.Decimal
	}
	total := decimal.NewFromInt(weight).Mul(price)
	if !isCount {
		total = total.Div(thousand)
	}
	return models.RoundMoney(total)
}
