// Package reporter renders the results of an invoice batch.
//
// Two outputs are produced from a reconciler.BatchResult:
//   - ExcelWriter: the month workbook with VLOOKUP formulas into a
//     Price & Formula sheet, the deliverable handed to the accountant
//   - SummaryReporter: a run summary for the terminal (console), for
//     programs (JSON) or for spreadsheets (CSV of the reconciled lines)
//
// Example usage:
//
//	summary, err := reporter.NewSummaryReporter(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = summary.GenerateReport(result, excelPath, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reconciler"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
)

// OutputFormat represents the supported summary formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for summary generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// IncludeInvoices lists every reconciled line in console and JSON output
	IncludeInvoices bool `json:"include_invoices" mapstructure:"include_invoices"`

	// MaxListed caps the lines printed per console section
	MaxListed int `json:"max_listed" mapstructure:"max_listed"`

	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		IncludeInvoices: false,
		MaxListed:       10,
		CSVDelimiter:    ',',
		CSVHeaders:      true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListed < 1 {
		return fmt.Errorf("max listed must be at least 1, got %d", c.MaxListed)
	}
	return nil
}

// SummaryReporter renders a BatchResult
type SummaryReporter struct {
	config *ReportConfig
}

// NewSummaryReporter creates a summary reporter with the given configuration
func NewSummaryReporter(config *ReportConfig) (*SummaryReporter, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.MaxListed == 0 {
		config.MaxListed = DefaultReportConfig().MaxListed
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &SummaryReporter{config: config}, nil
}

// Config returns the current configuration
func (sr *SummaryReporter) Config() *ReportConfig {
	return sr.config
}

// GenerateReport writes the summary of result to writer. excelPath, when
// set, is reported as the workbook location.
func (sr *SummaryReporter) GenerateReport(result *reconciler.BatchResult, excelPath string, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	switch sr.config.Format {
	case FormatConsole:
		return sr.generateConsoleReport(result, excelPath, writer)
	case FormatJSON:
		return sr.generateJSONReport(result, excelPath, writer)
	case FormatCSV:
		return sr.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", sr.config.Format)
	}
}

func (sr *SummaryReporter) generateConsoleReport(result *reconciler.BatchResult, excelPath string, w io.Writer) error {
	stats := result.Stats

	fmt.Fprintf(w, "INVOICE BATCH REPORT\n")
	fmt.Fprintf(w, "Run: %s\n", stats.RunID)
	fmt.Fprintf(w, "Processing Duration: %v\n", stats.ProcessingTime)
	if excelPath != "" {
		fmt.Fprintf(w, "Workbook: %s\n", excelPath)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "=== SUMMARY ===\n")
	fmt.Fprintf(w, "Images:\n")
	fmt.Fprintf(w, "  Found:     %d\n", stats.ImagesFound)
	fmt.Fprintf(w, "  Processed: %d\n", stats.ImagesProcessed)
	fmt.Fprintf(w, "  Failed:    %d\n", stats.ImagesFailed)
	fmt.Fprintf(w, "\nRecords:\n")
	fmt.Fprintf(w, "  Extracted:  %d\n", stats.RecordsExtracted)
	fmt.Fprintf(w, "  Reconciled: %d\n", stats.RecordsReconciled)
	fmt.Fprintf(w, "  Skipped:    %d\n", stats.RecordsSkipped)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "=== MATCH BREAKDOWN ===\n")
	fmt.Fprintf(w, "Matched:       %d (%.1f%%)\n", stats.MatchedCount, percentage(stats.MatchedCount, stats.RecordsReconciled))
	fmt.Fprintf(w, "New Customers: %d (%.1f%%)\n", stats.NewCustomerCount, percentage(stats.NewCustomerCount, stats.RecordsReconciled))
	fmt.Fprintf(w, "Fuzzy Matches: %d (%.1f%%)\n", stats.FuzzyMatchCount, percentage(stats.FuzzyMatchCount, stats.RecordsReconciled))
	fmt.Fprintf(w, "\n")

	if len(result.NewCustomers) > 0 {
		fmt.Fprintf(w, "=== NEW CUSTOMERS ===\n")
		for i, name := range result.NewCustomers {
			if sr.truncated(w, i, len(result.NewCustomers)) {
				break
			}
			fmt.Fprintf(w, "  %d. %s\n", i+1, name)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(result.FuzzyMatches) > 0 {
		fmt.Fprintf(w, "=== FUZZY MATCHES ===\n")
		for i, m := range result.FuzzyMatches {
			if sr.truncated(w, i, len(result.FuzzyMatches)) {
				break
			}
			fmt.Fprintf(w, "  %d. %q -> %q (confidence %.2f)\n", i+1, m.Original, m.Matched, m.Confidence)
		}
		fmt.Fprintf(w, "\n")
	}

	if sr.config.IncludeInvoices && len(result.Invoices) > 0 {
		fmt.Fprintf(w, "=== INVOICES ===\n")
		for i, inv := range result.Invoices {
			if sr.truncated(w, i, len(result.Invoices)) {
				break
			}
			fmt.Fprintf(w, "  %d. No: %s, Customer: %s, Weight: %d, Price: %s, Total: %s\n",
				i+1, inv.InvoiceNo, inv.CustomerName, inv.WeightKG,
				inv.PricePerUnit.StringFixed(2), inv.TotalAmount.StringFixed(2))
		}
		fmt.Fprintf(w, "\n")
	}

	if result.Skipped != nil && result.Skipped.Total > 0 {
		fmt.Fprintf(w, "=== SKIPPED ===\n")
		codes := make([]string, 0, len(result.Skipped.ByCode))
		for code := range result.Skipped.ByCode {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %s: %d\n", code, result.Skipped.ByCode[errors.ErrorCode(code)])
		}
	}

	return nil
}

// truncated prints the overflow line once i reaches the configured limit
func (sr *SummaryReporter) truncated(w io.Writer, i, total int) bool {
	if i < sr.config.MaxListed {
		return false
	}
	fmt.Fprintf(w, "  ... and %d more\n", total-sr.config.MaxListed)
	return true
}

func (sr *SummaryReporter) generateJSONReport(result *reconciler.BatchResult, excelPath string, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sr.filterResultForOutput(result, excelPath))
}

func (sr *SummaryReporter) filterResultForOutput(result *reconciler.BatchResult, excelPath string) map[string]interface{} {
	output := map[string]interface{}{
		"stats":         result.Stats,
		"new_customers": result.NewCustomers,
		"fuzzy_matches": result.FuzzyMatches,
	}
	if excelPath != "" {
		output["excel_file_path"] = excelPath
	}
	if sr.config.IncludeInvoices {
		output["invoices"] = result.Invoices
	}
	if result.Skipped != nil {
		output["skipped"] = result.Skipped
	}
	return output
}

var csvHeaders = []string{
	"Source_File", "Record_Index", "Date", "Invoice_No", "Customer_Name", "Original_Name",
	"Status", "Confidence", "Price_Match", "Fuzzy", "Is_Count", "Weight_KG",
	"Price_Per_Unit", "Total_Amount", "Company_Amount", "Worker_Amount",
}

func (sr *SummaryReporter) generateCSVReport(result *reconciler.BatchResult, w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = sr.config.CSVDelimiter
	defer csvWriter.Flush()

	if sr.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, inv := range result.Invoices {
		if err := csvWriter.Write(invoiceRecord(inv)); err != nil {
			return fmt.Errorf("failed to write invoice record: %w", err)
		}
	}
	return nil
}

func invoiceRecord(inv models.ReconciledInvoice) []string {
	optional := func(valid bool, s string) string {
		if !valid {
			return ""
		}
		return s
	}
	return []string{
		inv.SourceFile,
		strconv.Itoa(inv.RecordIndex),
		inv.Date,
		inv.InvoiceNo,
		inv.CustomerName,
		inv.OriginalName,
		inv.Status.String(),
		fmt.Sprintf("%.3f", inv.Confidence),
		strconv.FormatBool(inv.PriceMatch),
		strconv.FormatBool(inv.IsFuzzy),
		strconv.FormatBool(inv.IsCount),
		strconv.FormatInt(inv.WeightKG, 10),
		inv.PricePerUnit.StringFixed(2),
		inv.TotalAmount.StringFixed(2),
		optional(inv.CompanyAmount.Valid, inv.CompanyAmount.Decimal.StringFixed(2)),
		optional(inv.WorkerAmount.Valid, inv.WorkerAmount.Decimal.StringFixed(2)),
	}
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
