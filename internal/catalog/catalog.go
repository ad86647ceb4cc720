// Package catalog holds the canonical customer price list loaded from the
// knowledge-base workbook. Every search index registered with the catalog is
// rebuilt wholesale, synchronously, whenever the customer set changes.
package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Index is a derived structure kept in step with the catalog
type Index interface {
	Name() string
	Rebuild(ctx context.Context, customers []models.Customer) error
}

// LoadReport summarises one load
type LoadReport struct {
	Source  string
	Sheet   string
	Columns ColumnMap
	Loaded  int
	Skipped *errors.Collector
}

// Catalog is the in-memory customer registry
type Catalog struct {
	mu        sync.RWMutex
	customers []models.Customer
	byKey     map[string]int
	indexes   []Index
	log       logger.Logger
}

// New creates an empty catalog
func New(log logger.Logger) *Catalog {
	return &Catalog{
		byKey: make(map[string]int),
		log:   logger.OrGlobal(log, "catalog"),
	}
}

// Register adds an index and builds it from the current customers
func (c *Catalog) Register(ctx context.Context, idx Index) {
	c.mu.Lock()
	c.indexes = append(c.indexes, idx)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.rebuild(ctx, snapshot, idx)
}

// LoadRows replaces the catalog with the customers parsed from rows, where
// rows[0] is the header row. Malformed rows are skipped and reported; the
// load fails only when no name column exists or no row survives.
func (c *Catalog) LoadRows(ctx context.Context, source string, rows [][]string) (*LoadReport, error) {
	report := &LoadReport{Source: source, Skipped: errors.NewCollector(50)}

	if len(rows) == 0 {
		return report, errors.CatalogError(errors.CodeHeaderNotFound, source, nil)
	}

	report.Columns = ScanHeader(rows[0])
	if !report.Columns.Has(FieldName) {
		return report, errors.CatalogError(errors.CodeHeaderNotFound, source, nil).
			WithContext("header", strings.Join(rows[0], " | "))
	}

	customers := make([]models.Customer, 0, len(rows)-1)
	seen := make(map[string]bool)
	for i, row := range rows[1:] {
		customer, skip := parseRow(row, report.Columns, errors.Location{Source: source, Row: i + 2})
		if skip != nil {
			report.Skipped.Add(skip)
			c.log.WithFields(logger.Fields{"row": i + 2, "reason": skip.Message}).Debug("Skipping knowledge base row")
			continue
		}
		if customer.Name == "" {
			continue
		}
		key := nameKey(customer.Name)
		if seen[key] {
			report.Skipped.Add(errors.NewSkipped(errors.CategoryCatalog, errors.CodeCustomerExists,
				errors.Location{Source: source, Row: i + 2, Column: string(FieldName), Value: customer.Name},
				"duplicate customer name"))
			continue
		}
		seen[key] = true
		customers = append(customers, customer)
	}

	if len(customers) == 0 {
		return report, errors.CatalogError(errors.CodeNoCustomersFound, source, nil).
			WithContext("skipped_rows", report.Skipped.Count())
	}

	c.replace(ctx, customers)
	report.Loaded = len(customers)

	c.log.WithFields(logger.Fields{
		"source":  source,
		"loaded":  report.Loaded,
		"skipped": report.Skipped.Count(),
		"columns": report.Columns.String(),
	}).Info("Knowledge base loaded")

	return report, nil
}

// LoadWorkbook reads the customer sheet of an .xlsx knowledge base and loads it
func (c *Catalog) LoadWorkbook(ctx context.Context, path string) (*LoadReport, error) {
	sheet, rows, err := ReadWorkbook(path)
	if err != nil {
		return &LoadReport{Source: path, Skipped: errors.NewCollector(1)}, err
	}
	report, err := c.LoadRows(ctx, path, rows)
	report.Sheet = sheet
	return report, err
}

// All returns a copy of the customers in load order
func (c *Catalog) All() []models.Customer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Len returns the number of customers
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.customers)
}

// ByExactName looks a customer up by name, ignoring case and surrounding
// whitespace.
func (c *Catalog) ByExactName(name string) (models.Customer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.byKey[nameKey(name)]
	if !ok {
		return models.Customer{}, false
	}
	return c.customers[idx], true
}

// Append adds a newly discovered customer and rebuilds the indexes. It
// returns false if the name already exists or the customer is invalid.
func (c *Catalog) Append(ctx context.Context, customer models.Customer) bool {
	if err := customer.Validate(); err != nil {
		c.log.WithError(err).WithField("customer", customer.Name).Debug("Refusing invalid customer")
		return false
	}

	c.mu.Lock()
	if _, exists := c.byKey[nameKey(customer.Name)]; exists {
		c.mu.Unlock()
		return false
	}
	next := append(c.snapshotLocked(), customer.DeriveWorkerAmount())
	c.mu.Unlock()

	c.replace(ctx, next)
	c.log.WithField("customer", customer.Name).Info("Customer appended to catalog")
	return true
}

func (c *Catalog) replace(ctx context.Context, customers []models.Customer) {
	byKey := make(map[string]int, len(customers))
	for i, cust := range customers {
		byKey[nameKey(cust.Name)] = i
	}

	c.mu.Lock()
	c.customers = customers
	c.byKey = byKey
	indexes := append([]Index(nil), c.indexes...)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	for _, idx := range indexes {
		c.rebuild(ctx, snapshot, idx)
	}
}

func (c *Catalog) rebuild(ctx context.Context, customers []models.Customer, idx Index) {
	if err := idx.Rebuild(ctx, customers); err != nil {
		c.log.WithError(err).WithField("index", idx.Name()).Warn("Index rebuild failed")
	}
}

func (c *Catalog) snapshotLocked() []models.Customer {
	out := make([]models.Customer, len(c.customers))
	copy(out, c.customers)
	return out
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
