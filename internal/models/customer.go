package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Customer is a canonical knowledge-base entry
type Customer struct {
	Name          string              `json:"name"`
	PricePerUnit  decimal.Decimal     `json:"price_per_unit"`
	Formula       FormulaType         `json:"formula"`
	CompanyAmount decimal.NullDecimal `json:"company_amount"`
	WorkerAmount  decimal.NullDecimal `json:"worker_amount"`
}

// NewCustomer creates a customer with the default formula and no split
func NewCustomer(name string, price decimal.Decimal) Customer {
	return Customer{
		Name:         strings.TrimSpace(name),
		PricePerUnit: price,
		Formula:      FormulaWeightPrice,
	}
}

// WithSplit sets the company amount and derives the worker amount when absent
func (c Customer) WithSplit(company, worker decimal.NullDecimal) Customer {
	c.CompanyAmount = company
	c.WorkerAmount = worker
	return c.DeriveWorkerAmount()
}

// DeriveWorkerAmount fills WorkerAmount as price minus company amount,
// rounded to cents, when only the company amount is known.
func (c Customer) DeriveWorkerAmount() Customer {
	if !c.WorkerAmount.Valid && c.CompanyAmount.Valid && c.PricePerUnit.IsPositive() {
		c.WorkerAmount = NullAmount(RoundMoney(c.PricePerUnit.Sub(c.CompanyAmount.Decimal)))
	}
	return c
}

// Validate performs basic validation on the Customer
func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("customer name cannot be empty")
	}
	if !c.PricePerUnit.IsPositive() {
		return fmt.Errorf("price per unit must be positive, got %s", c.PricePerUnit)
	}
	return nil
}

// SplitConsistent reports whether company + worker equals the unit price
// within tolerance. A customer without both amounts is consistent.
func (c Customer) SplitConsistent(tolerance decimal.Decimal) bool {
	if !c.CompanyAmount.Valid || !c.WorkerAmount.Valid {
		return true
	}
	sum := c.CompanyAmount.Decimal.Add(c.WorkerAmount.Decimal)
	return sum.Sub(c.PricePerUnit).Abs().LessThanOrEqual(tolerance)
}

// String returns a string representation of the Customer
func (c Customer) String() string {
	return fmt.Sprintf("Customer{Name: %s, Price: %s, Formula: %s}", c.Name, c.PricePerUnit, c.Formula)
}
