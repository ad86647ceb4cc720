// Package pipeline ties the catalog, the batch processor and the Excel
// writer into one long-lived object. The CLI and the HTTP service build a
// single Pipeline at start-up and hand it to every run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/TanWaiKen/invoice-ai-excel/internal/catalog"
	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reconciler"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// CatalogLoader is the part of the catalog a run needs
type CatalogLoader interface {
	LoadWorkbook(ctx context.Context, path string) (*catalog.LoadReport, error)
	All() []models.Customer
}

// BatchRunner processes an image folder
type BatchRunner interface {
	Run(ctx context.Context, folder string) (*reconciler.BatchResult, error)
}

// ReportWriter saves the reconciled invoices and returns the written path
type ReportWriter interface {
	Write(invoices []models.ReconciledInvoice, customers []models.Customer, output string) (string, error)
}

// Request names the inputs and output of one run
type Request struct {
	ImageFolder string `json:"image_folder" binding:"required"`
	CatalogPath string `json:"excel_template_path" binding:"required"`
	OutputPath  string `json:"output_excel_path" binding:"required"`
}

// Validate checks that the request names every path
func (r Request) Validate() error {
	switch {
	case r.ImageFolder == "":
		return errors.ValidationError(errors.CodeMissingField, "image_folder", r.ImageFolder, nil)
	case r.CatalogPath == "":
		return errors.ValidationError(errors.CodeMissingField, "excel_template_path", r.CatalogPath, nil)
	case r.OutputPath == "":
		return errors.ValidationError(errors.CodeMissingField, "output_excel_path", r.OutputPath, nil)
	}
	return nil
}

// Result is the outcome of one run
type Result struct {
	Batch     *reconciler.BatchResult `json:"batch"`
	Catalog   *catalog.LoadReport     `json:"-"`
	ExcelPath string                  `json:"excel_file_path"`
	Duration  time.Duration           `json:"duration"`
}

// Pipeline runs catalog load, batch processing and report writing. Runs are
// serialised because every run reloads the shared catalog.
type Pipeline struct {
	catalog CatalogLoader
	batch   BatchRunner
	writer  ReportWriter
	log     logger.Logger
	closers []func() error

	mu sync.Mutex
}

// New creates a pipeline. closers run on Close, in order.
func New(cat CatalogLoader, batch BatchRunner, writer ReportWriter, log logger.Logger, closers ...func() error) *Pipeline {
	return &Pipeline{
		catalog: cat,
		batch:   batch,
		writer:  writer,
		log:     logger.OrGlobal(log, "pipeline"),
		closers: closers,
	}
}

// Run loads the knowledge base, processes the image folder and writes the
// workbook. A batch that reconciles nothing is NoInvoicesProcessed and no
// workbook is written.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := requireExists(req.ImageFolder); err != nil {
		return nil, err
	}
	if err := requireExists(req.CatalogPath); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	log := p.log.WithFields(logger.Fields{
		"image_folder": req.ImageFolder,
		"catalog":      req.CatalogPath,
	})

	report, err := p.catalog.LoadWorkbook(ctx, req.CatalogPath)
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{"loaded": report.Loaded, "skipped": report.Skipped.Count()}).Info("Knowledge base loaded")

	batch, err := p.batch.Run(ctx, req.ImageFolder)
	if err != nil {
		return nil, err
	}
	if len(batch.Invoices) == 0 {
		return nil, errors.MatchingError(errors.CodeNoInvoicesProcessed, "process invoices",
			fmt.Errorf("%d image(s) yielded no reconciled invoice", batch.Stats.ImagesFound))
	}

	path, err := p.writer.Write(batch.Invoices, p.catalog.All(), req.OutputPath)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Batch:     batch,
		Catalog:   report,
		ExcelPath: path,
		Duration:  time.Since(start),
	}
	log.WithFields(logger.Fields{
		"invoices":    len(batch.Invoices),
		"excel":       path,
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("Run completed")

	return result, nil
}

// Close releases the resources handed to New
func (p *Pipeline) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func requireExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsPermission(err) {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return errors.FileError(errors.CodeInputNotFound, path, err)
	}
	return nil
}
