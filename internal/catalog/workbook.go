package catalog

import (
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
)

// sheetKeywords select the customer sheet in the knowledge-base workbook
var sheetKeywords = []string{"price", "formula"}

// ReadWorkbook opens an .xlsx knowledge base and returns the name and raw
// rows of the first sheet whose name mentions price or formula.
func ReadWorkbook(path string) (string, [][]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsPermission(err) {
			return "", nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return "", nil, errors.FileError(errors.CodeInputNotFound, path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	sheet := findCustomerSheet(f.GetSheetList())
	if sheet == "" {
		return "", nil, errors.CatalogError(errors.CodeWorksheetNotFound, path, nil).
			WithContext("sheets", strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return sheet, nil, errors.FileError(errors.CodeFileCorrupted, path, err).
			WithContext("sheet", sheet)
	}
	return sheet, rows, nil
}

func findCustomerSheet(sheets []string) string {
	for _, name := range sheets {
		lower := strings.ToLower(name)
		for _, kw := range sheetKeywords {
			if strings.Contains(lower, kw) {
				return name
			}
		}
	}
	return ""
}
