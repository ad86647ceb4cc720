package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a logical knowledge-base column
type Field string

const (
	FieldName    Field = "name"
	FieldPrice   Field = "price_per_unit"
	FieldFormula Field = "formula"
	FieldCompany Field = "company_amount"
	FieldWorker  Field = "worker_amount"
)

// ColumnMap maps logical fields to zero-based column indexes
type ColumnMap map[Field]int

// Has reports whether the field was found in the header row
func (m ColumnMap) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// Cell returns the trimmed cell for field f in row, or "" if the column is
// absent or the row is short.
func (m ColumnMap) Cell(row []string, f Field) string {
	idx, ok := m[f]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// String lists the mapping in column order
func (m ColumnMap) String() string {
	parts := make([]string, 0, len(m))
	for f, idx := range m {
		parts = append(parts, fmt.Sprintf("%s=%d", f, idx))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// classifyHeader assigns a header cell to a field by keyword. The checks run
// in order, so "Customer Price" is a name column, "Company Amount (RM/ton)" a
// company column and "Company Worker" a worker column. A header with "price"
// but no "ton" is reported as weak: it only serves as the price column when no
// header names both.
func classifyHeader(header string) (field Field, weak bool, ok bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	switch {
	case h == "":
		return "", false, false
	case strings.Contains(h, "customer") || strings.Contains(h, "name"):
		return FieldName, false, true
	case strings.Contains(h, "company") && !strings.Contains(h, "worker"):
		return FieldCompany, false, true
	case strings.Contains(h, "worker"):
		return FieldWorker, false, true
	case strings.Contains(h, "formula"):
		return FieldFormula, false, true
	case strings.Contains(h, "price") && strings.Contains(h, "ton"):
		return FieldPrice, false, true
	case strings.Contains(h, "price"):
		return FieldPrice, true, true
	}
	return "", false, false
}

// ScanHeader maps the header row to fields. The first column claiming a
// field wins.
func ScanHeader(header []string) ColumnMap {
	columns := make(ColumnMap)
	weakPrice := -1
	for idx, cell := range header {
		field, weak, ok := classifyHeader(cell)
		if !ok || columns.Has(field) {
			continue
		}
		if weak {
			if weakPrice < 0 {
				weakPrice = idx
			}
			continue
		}
		columns[field] = idx
	}
	if !columns.Has(FieldPrice) && weakPrice >= 0 {
		columns[FieldPrice] = weakPrice
	}
	return columns
}
