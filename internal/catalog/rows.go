package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
)

// parseRow converts one data row. A blank name returns a zero customer and
// no error so empty spacer rows pass silently.
func parseRow(row []string, columns ColumnMap, loc errors.Location) (models.Customer, *errors.Skipped) {
	name := columns.Cell(row, FieldName)
	if name == "" {
		return models.Customer{}, nil
	}

	rawPrice := columns.Cell(row, FieldPrice)
	if rawPrice == "" {
		loc.Column, loc.Value = string(FieldPrice), rawPrice
		return models.Customer{}, errors.NewSkipped(errors.CategoryCatalog, errors.CodeRecordMalformed, loc, "price is missing")
	}
	price, err := models.ParseAmount(rawPrice)
	if err != nil {
		loc.Column, loc.Value = string(FieldPrice), rawPrice
		return models.Customer{}, errors.NewSkipped(errors.CategoryCatalog, errors.CodeRecordMalformed, loc, "price is not a number")
	}
	if !price.IsPositive() {
		loc.Column, loc.Value = string(FieldPrice), rawPrice
		return models.Customer{}, errors.NewSkipped(errors.CategoryCatalog, errors.CodeRecordMalformed, loc, "price must be positive")
	}

	customer := models.NewCustomer(name, price)
	customer.Formula = models.ParseFormulaType(columns.Cell(row, FieldFormula))

	worker := optionalAmount(columns.Cell(row, FieldWorker))
	if worker.Valid {
		worker.Decimal = models.RoundMoney(worker.Decimal)
	}
	return customer.WithSplit(optionalAmount(columns.Cell(row, FieldCompany)), worker), nil
}

// optionalAmount parses a split amount; blank, non-numeric and non-positive
// cells are treated as absent.
func optionalAmount(raw string) decimal.NullDecimal {
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := models.ParseAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return models.PositiveOrNull(d)
}
