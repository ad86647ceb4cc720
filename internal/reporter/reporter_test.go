package reporter

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reconciler"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

var fixedNow = time.Date(2024, time.March, 5, 14, 30, 45, 0, time.UTC)

func sampleInvoices() []models.ReconciledInvoice {
	return []models.ReconciledInvoice{
		{
			Date: "14/12/2023", InvoiceNo: "INV-5354", CustomerName: "En Sebin", OriginalName: "En Sebin",
			WeightKG: 4270, PricePerUnit: decimal.NewFromInt(103), TotalAmount: decimal.RequireFromString("439.81"),
			Status: models.StatusMatchFound, Confidence: 0.95, PriceMatch: true,
		},
		{
			Date: "15/12/2023", InvoiceNo: "5351", CustomerName: "Lain-lain", OriginalName: "lain lain",
			IsCount: true, WeightKG: 10, PricePerUnit: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(10),
			Status: models.StatusMatchFound, Confidence: 0.7, IsFuzzy: true,
		},
		{
			Date: "02/11/2023", InvoiceNo: "no number", CustomerName: "Kebun Baru", OriginalName: "Kebun Baru",
			WeightKG: 1000, PricePerUnit: decimal.NewFromInt(90), TotalAmount: decimal.NewFromInt(90),
			Status: models.StatusNewCustomerDetected,
		},
	}
}

func sampleCustomers() []models.Customer {
	return []models.Customer{
		models.NewCustomer("En Sebin", decimal.NewFromInt(103)).
			WithSplit(models.NullAmount(decimal.NewFromInt(60)), models.NullAmount(decimal.NewFromInt(43))),
		models.NewCustomer("Lain-lain", decimal.NewFromInt(10)),
	}
}

func sampleResult() *reconciler.BatchResult {
	skipped := errors.NewCollector(10)
	skipped.Add(errors.NewSkipped(errors.CategoryExtraction, errors.CodeExtractionEmpty, errors.Location{Source: "b.jpg"}, "no records"))

	return &reconciler.BatchResult{
		Invoices:     sampleInvoices(),
		NewCustomers: []string{"Kebun Baru"},
		FuzzyMatches: []models.FuzzyMatch{{Original: "lain lain", Matched: "Lain-lain", Confidence: 0.7}},
		Stats: reconciler.ProcessingStats{
			RunID: "run-1", ImagesFound: 3, ImagesProcessed: 2, ImagesFailed: 1,
			RecordsExtracted: 3, RecordsReconciled: 3, MatchedCount: 2, NewCustomerCount: 1, FuzzyMatchCount: 1,
		},
		Skipped: skipped.Summary(),
	}
}

func newTestWriter() *ExcelWriter {
	w := NewExcelWriter(logger.NewNopLogger())
	w.now = func() time.Time { return fixedNow }
	return w
}

func TestExcelWriter_Write(t *testing.T) {
	out := filepath.Join(t.TempDir(), "reports", "december.xlsx")

	path, err := newTestWriter().Write(sampleInvoices(), sampleCustomers(), out)
	require.NoError(t, err)
	assert.Equal(t, out, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"December", PriceSheet}, f.GetSheetList())

	rows, err := f.GetRows("December", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 5, "header, three lines, grand total")
	assert.Equal(t, invoiceHeaders, rows[0])

	// sorted by first number: "no number" (0), 5351, INV-5354
	assert.Equal(t, "no number", rows[1][1])
	assert.Equal(t, "5351", rows[2][1])
	assert.Equal(t, "INV-5354", rows[3][1])

	assert.Equal(t, "1", rows[2][3], "lain-lain weight forced to 1")
	assert.Equal(t, "4270", rows[3][3])

	formula, err := f.GetCellFormula("December", "E2")
	require.NoError(t, err)
	assert.Equal(t, "VLOOKUP(C2,'Price & Formula'!A:E,2,FALSE)", formula)

	formula, _ = f.GetCellFormula("December", "G3")
	assert.Equal(t, "VLOOKUP(C3,'Price & Formula'!$A:$E,4,FALSE)", formula)

	formula, _ = f.GetCellFormula("December", "F2")
	assert.Equal(t, "D2*E2/1000", formula, "weight based")

	formula, _ = f.GetCellFormula("December", "J3")
	assert.Equal(t, "D3*I3", formula, "count based")

	label, _ := f.GetCellValue("December", "C5")
	assert.Equal(t, "Grandtotal:", label)
	for _, col := range []string{"F", "H", "J"} {
		formula, _ = f.GetCellFormula("December", col+"5")
		assert.Equal(t, "SUM("+col+"2:"+col+"4)", formula)
	}

	prices, err := f.GetRows(PriceSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.Equal(t, priceHeaders, prices[0])
	assert.Equal(t, []string{"En Sebin", "103", "Weight x Price per ton/1000kg", "60", "43"}, prices[1])
	assert.Equal(t, []string{"Lain-lain", "10", "Weight x Price per ton/1000kg", "0", "0"}, prices[2])

	style, err := f.GetCellStyle("December", "A1")
	require.NoError(t, err)
	header, err := f.GetStyle(style)
	require.NoError(t, err)
	require.NotNil(t, header.Font)
	assert.True(t, header.Font.Bold)
}

func TestExcelWriter_TimestampedPath(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out", "report")

	path, err := newTestWriter().Write(nil, sampleCustomers(), base)
	require.NoError(t, err)
	assert.Equal(t, base+"_March_20240305_143045.xlsx", path)
	assert.FileExists(t, path)
}

func TestDominantMonth(t *testing.T) {
	tests := []struct {
		name     string
		dates    []string
		expected string
	}{
		{"majority", []string{"01/12/2023", "5/1/2024", "31/12/2023"}, "December"},
		{"tie goes to first seen", []string{"01/02/2024", "01/03/2024"}, "February"},
		{"unparseable falls back to now", []string{"yesterday", ""}, "March"},
		{"empty falls back to now", nil, "March"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var invoices []models.ReconciledInvoice
			for _, d := range tt.dates {
				invoices = append(invoices, models.ReconciledInvoice{Date: d})
			}
			assert.Equal(t, tt.expected, DominantMonth(invoices, fixedNow))
		})
	}
}

func TestSortByInvoiceNoIsStable(t *testing.T) {
	in := []models.ReconciledInvoice{
		{InvoiceNo: "B-7", CustomerName: "first"},
		{InvoiceNo: "3"},
		{InvoiceNo: "7", CustomerName: "second"},
	}
	got := SortByInvoiceNo(in)
	assert.Equal(t, "3", got[0].InvoiceNo)
	assert.Equal(t, "first", got[1].CustomerName)
	assert.Equal(t, "second", got[2].CustomerName)
	assert.Equal(t, "B-7", in[0].InvoiceNo, "input untouched")
}

func TestNewSummaryReporter(t *testing.T) {
	_, err := NewSummaryReporter(nil)
	assert.NoError(t, err)

	_, err = NewSummaryReporter(&ReportConfig{Format: "xml"})
	assert.Error(t, err)

	r, err := NewSummaryReporter(&ReportConfig{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, ',', r.Config().CSVDelimiter)
	assert.Equal(t, 10, r.Config().MaxListed)
}

func TestGenerateReport_Console(t *testing.T) {
	r, err := NewSummaryReporter(&ReportConfig{Format: FormatConsole, IncludeInvoices: true, MaxListed: 2})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.GenerateReport(sampleResult(), "out.xlsx", &buf))
	out := buf.String()

	for _, section := range []string{"=== SUMMARY ===", "=== MATCH BREAKDOWN ===", "=== NEW CUSTOMERS ===", "=== FUZZY MATCHES ===", "=== INVOICES ===", "=== SKIPPED ==="} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "Workbook: out.xlsx")
	assert.Contains(t, out, "Matched:       2 (66.7%)")
	assert.Contains(t, out, `"lain lain" -> "Lain-lain"`)
	assert.Contains(t, out, "... and 1 more")
	assert.Contains(t, out, "extraction_empty: 1")
}

func TestGenerateReport_JSON(t *testing.T) {
	r, err := NewSummaryReporter(&ReportConfig{Format: FormatJSON})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.GenerateReport(sampleResult(), "out.xlsx", &buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "out.xlsx", decoded["excel_file_path"])
	assert.Equal(t, []interface{}{"Kebun Baru"}, decoded["new_customers"])
	assert.NotContains(t, decoded, "invoices")

	stats := decoded["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["images_found"])
}

func TestGenerateReport_CSV(t *testing.T) {
	r, err := NewSummaryReporter(&ReportConfig{Format: FormatCSV, CSVHeaders: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.GenerateReport(sampleResult(), "", &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Source_File,Record_Index"))
	assert.Contains(t, lines[1], "En Sebin,En Sebin,match_found,0.950,true,false,false,4270,103.00,439.81")
}

func TestGenerateReport_NilResult(t *testing.T) {
	r, _ := NewSummaryReporter(nil)
	assert.Error(t, r.GenerateReport(nil, "", &bytes.Buffer{}))
}
