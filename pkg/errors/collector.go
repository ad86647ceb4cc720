package errors

import (
	"fmt"
	"strings"
)

// Location pinpoints where in an input a recoverable error happened. For the
// knowledge base it is a sheet row, for OCR output an image and record index.
type Location struct {
	Source string `json:"source"`
	Row    int    `json:"row,omitempty"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

func (l Location) String() string {
	parts := []string{l.Source}
	if l.Row > 0 {
		parts = append(parts, fmt.Sprintf("row %d", l.Row))
	}
	if l.Column != "" {
		parts = append(parts, fmt.Sprintf("column '%s'", l.Column))
	}
	return strings.Join(parts, " ")
}

// Skipped records one input unit that was dropped without failing the run.
type Skipped struct {
	*InvoiceError
	Location Location `json:"location"`
}

// Error implements the error interface with the location appended
func (s *Skipped) Error() string {
	return fmt.Sprintf("%s at %s", s.InvoiceError.Error(), s.Location)
}

// Unwrap exposes the coded error so HasCode and AsInvoiceError see it
func (s *Skipped) Unwrap() error {
	return s.InvoiceError
}

// NewSkipped creates a skipped-unit error for the given location
func NewSkipped(category ErrorCategory, code ErrorCode, loc Location, message string) *Skipped {
	base := New(category, code, message).
		WithContext("source", loc.Source).
		WithContext("row", loc.Row)
	if loc.Column != "" {
		base.WithContext("column", loc.Column).WithContext("value", loc.Value)
	}
	return &Skipped{InvoiceError: base, Location: loc}
}

// Collector gathers skipped units during a load or a batch. Only the first
// limit entries are kept; Count keeps counting past it.
type Collector struct {
	skipped []*Skipped
	limit   int
	count   int
}

// NewCollector creates a collector that retains at most limit entries.
func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = 100
	}
	return &Collector{limit: limit}
}

// Add records a skipped unit
func (c *Collector) Add(s *Skipped) {
	if s == nil {
		return
	}
	c.count++
	if len(c.skipped) < c.limit {
		c.skipped = append(c.skipped, s)
	}
}

// Count returns the number of skipped units, including those past the limit
func (c *Collector) Count() int {
	return c.count
}

// Skipped returns the retained entries
func (c *Collector) Skipped() []*Skipped {
	return c.skipped
}

// Summary converts the retained entries into an ErrorSummary
func (c *Collector) Summary() *ErrorSummary {
	errs := make([]*InvoiceError, len(c.skipped))
	for i, s := range c.skipped {
		errs[i] = s.InvoiceError
	}
	return NewErrorSummary(errs)
}

// Format renders the collected entries for a terminal, detailing the first few.
func (c *Collector) Format(maxDetailed int) string {
	if c.count == 0 {
		return "nothing skipped"
	}

	lines := []string{fmt.Sprintf("%d item(s) skipped:", c.count)}
	for i, s := range c.skipped {
		if i == maxDetailed {
			lines = append(lines, fmt.Sprintf("  ... and %d more", c.count-maxDetailed))
			break
		}
		lines = append(lines, fmt.Sprintf("  • %s: %s", s.Location, s.Message))
	}
	return strings.Join(lines, "\n")
}
