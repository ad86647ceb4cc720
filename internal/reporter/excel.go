package reporter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// PriceSheet is the name of the customer lookup sheet
const PriceSheet = "Price & Formula"

const grandTotalLabel = "Grandtotal:"

var (
	invoiceHeaders = []string{
		"Date", "Invoices No", "Customer Name", "Weight (KG)", "Prices Per Ton",
		"Total Bills", "Prices", "Company (RM)", "Prices", "Worker (RM)",
	}
	priceHeaders = []string{"Customer Name", "Prices Per Ton", "Formula", "Company", "Worker"}

	invoiceColumnWidths = []float64{15, 12, 25, 12, 15, 15, 15, 15, 15, 15}
	priceColumnWidths   = []float64{30, 15, 32, 12, 12}

	firstNumber = regexp.MustCompile(`\d+`)
)

const moneyFormat = "#,##0.00"

// ExcelWriter renders reconciled invoices into a workbook with a month
// sheet driven by VLOOKUPs into a Price & Formula sheet.
type ExcelWriter struct {
	log logger.Logger
	now func() time.Time
}

// NewExcelWriter creates an Excel writer
func NewExcelWriter(log logger.Logger) *ExcelWriter {
	return &ExcelWriter{log: logger.OrGlobal(log, "excel-writer"), now: time.Now}
}

// Write builds the workbook and saves it. The returned path is output when
// it ends in .xlsx, else output_<Month>_<YYYYmmdd_HHMMSS>.xlsx.
func (w *ExcelWriter) Write(invoices []models.ReconciledInvoice, customers []models.Customer, output string) (string, error) {
	now := w.now()
	month := DominantMonth(invoices, now)
	path := OutputPath(output, month, now)

	f := excelize.NewFile()
	defer f.Close()

	styles, err := newSheetStyles(f)
	if err != nil {
		return "", errors.InternalError(errors.CodeOutputFailed, "create styles", err)
	}

	if err := f.SetSheetName(f.GetSheetName(0), month); err != nil {
		return "", errors.InternalError(errors.CodeOutputFailed, "name month sheet", err)
	}
	if err := writeInvoiceSheet(f, month, SortByInvoiceNo(invoices), styles); err != nil {
		return "", errors.InternalError(errors.CodeOutputFailed, "write month sheet", err)
	}

	if _, err := f.NewSheet(PriceSheet); err != nil {
		return "", errors.InternalError(errors.CodeOutputFailed, "create price sheet", err)
	}
	if err := writePriceSheet(f, customers, styles); err != nil {
		return "", errors.InternalError(errors.CodeOutputFailed, "write price sheet", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.FileError(errors.CodeOutputFailed, dir, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return "", errors.FileError(errors.CodeOutputFailed, path, err)
	}

	w.log.WithFields(logger.Fields{
		"path":      path,
		"sheet":     month,
		"invoices":  len(invoices),
		"customers": len(customers),
	}).Info("Excel report saved")

	return path, nil
}

type sheetStyles struct {
	header int
	text   int
	weight int
	money  int
	label  int
	total  int
}

func newSheetStyles(f *excelize.File) (*sheetStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	money := moneyFormat
	weight := "0"

	s := &sheetStyles{}
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&s.header, &excelize.Style{
			Border:    border,
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFD966"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&s.text, &excelize.Style{Border: border}},
		{&s.weight, &excelize.Style{Border: border, CustomNumFmt: &weight}},
		{&s.money, &excelize.Style{Border: border, CustomNumFmt: &money}},
		{&s.label, &excelize.Style{
			Border:    border,
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "right"},
		}},
		{&s.total, &excelize.Style{
			Border:       border,
			Font:         &excelize.Font{Bold: true},
			Fill:         excelize.Fill{Type: "pattern", Color: []string{"FFFF00"}, Pattern: 1},
			CustomNumFmt: &money,
		}},
	}

	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return nil, err
		}
		*d.dst = id
	}
	return s, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, widths []float64, style int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeInvoiceSheet(f *excelize.File, sheet string, invoices []models.ReconciledInvoice, s *sheetStyles) error {
	if err := writeHeader(f, sheet, invoiceHeaders, invoiceColumnWidths, s.header); err != nil {
		return err
	}

	for i, inv := range invoices {
		row := i + 2
		r := strconv.Itoa(row)

		weight := inv.WeightKG
		if models.IsLainLain(inv.CustomerName) {
			weight = 1
		}

		values := map[string]interface{}{
			"A": inv.Date,
			"B": inv.InvoiceNo,
			"C": inv.CustomerName,
			"D": weight,
		}
		for col, v := range values {
			if err := f.SetCellValue(sheet, col+r, v); err != nil {
				return err
			}
		}

		formulas := map[string]string{
			"E": lookupFormula(row, "A:E", 2),
			"F": amountFormula(row, "E", inv.IsCount),
			"G": lookupFormula(row, "$A:$E", 4),
			"H": amountFormula(row, "G", inv.IsCount),
			"I": lookupFormula(row, "$A:$E", 5),
			"J": amountFormula(row, "I", inv.IsCount),
		}
		for col, formula := range formulas {
			if err := f.SetCellFormula(sheet, col+r, formula); err != nil {
				return err
			}
		}

		if err := f.SetCellStyle(sheet, "A"+r, "C"+r, s.text); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "D"+r, "D"+r, s.weight); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "E"+r, "J"+r, s.money); err != nil {
			return err
		}
	}

	return writeGrandTotal(f, sheet, len(invoices)+2, s)
}

func writeGrandTotal(f *excelize.File, sheet string, row int, s *sheetStyles) error {
	r := strconv.Itoa(row)
	last := strconv.Itoa(row - 1)

	if err := f.SetCellValue(sheet, "C"+r, grandTotalLabel); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "C"+r, "C"+r, s.label); err != nil {
		return err
	}
	for _, col := range []string{"F", "H", "J"} {
		if err := f.SetCellFormula(sheet, col+r, fmt.Sprintf("SUM(%s2:%s%s)", col, col, last)); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, col+r, col+r, s.total); err != nil {
			return err
		}
	}
	return nil
}

func lookupFormula(row int, span string, column int) string {
	return fmt.Sprintf("VLOOKUP(C%d,'%s'!%s,%d,FALSE)", row, PriceSheet, span, column)
}

// amountFormula multiplies weight by a unit price; weight-based lines are
// priced per 1000 kg.
func amountFormula(row int, priceColumn string, isCount bool) string {
	formula := fmt.Sprintf("D%d*%s%d", row, priceColumn, row)
	if !isCount {
		formula += "/1000"
	}
	return formula
}

func writePriceSheet(f *excelize.File, customers []models.Customer, s *sheetStyles) error {
	if err := writeHeader(f, PriceSheet, priceHeaders, priceColumnWidths, s.header); err != nil {
		return err
	}

	for i, c := range customers {
		r := strconv.Itoa(i + 2)
		values := []interface{}{
			c.Name,
			c.PricePerUnit.InexactFloat64(),
			c.Formula.Display(),
			amountOrZero(c.CompanyAmount),
			amountOrZero(c.WorkerAmount),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(PriceSheet, cell, v); err != nil {
				return err
			}
		}
		if err := f.SetCellStyle(PriceSheet, "A"+r, "E"+r, s.text); err != nil {
			return err
		}
		if err := f.SetCellStyle(PriceSheet, "B"+r, "B"+r, s.money); err != nil {
			return err
		}
		if err := f.SetCellStyle(PriceSheet, "D"+r, "E"+r, s.money); err != nil {
			return err
		}
	}
	return nil
}

func amountOrZero(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}

// SortByInvoiceNo orders invoices by the first integer in the invoice
// number; numbers without digits sort as 0. The sort is stable.
func SortByInvoiceNo(invoices []models.ReconciledInvoice) []models.ReconciledInvoice {
	sorted := append([]models.ReconciledInvoice(nil), invoices...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return invoiceNumber(sorted[i].InvoiceNo) < invoiceNumber(sorted[j].InvoiceNo)
	})
	return sorted
}

func invoiceNumber(s string) int {
	n, err := strconv.Atoi(firstNumber.FindString(s))
	if err != nil {
		return 0
	}
	return n
}

// DominantMonth returns the English name of the most common month among
// dd/mm/yyyy invoice dates. Ties go to the month seen first; no parseable
// date falls back to now's month.
func DominantMonth(invoices []models.ReconciledInvoice, now time.Time) string {
	counts := make(map[time.Month]int)
	var order []time.Month
	for _, inv := range invoices {
		d, err := time.Parse("2/1/2006", strings.TrimSpace(inv.Date))
		if err != nil {
			continue
		}
		if counts[d.Month()] == 0 {
			order = append(order, d.Month())
		}
		counts[d.Month()]++
	}

	if len(order) == 0 {
		return now.Month().String()
	}
	best := order[0]
	for _, m := range order[1:] {
		if counts[m] > counts[best] {
			best = m
		}
	}
	return best.String()
}

// OutputPath keeps an explicit .xlsx path and otherwise appends the month
// and a timestamp.
func OutputPath(output, month string, now time.Time) string {
	if strings.HasSuffix(strings.ToLower(output), ".xlsx") {
		return output
	}
	return fmt.Sprintf("%s_%s_%s.xlsx", output, month, now.Format("20060102_150405"))
}
