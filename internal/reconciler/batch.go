// Package reconciler turns invoice images into reconciled invoice lines.
//
// The BatchProcessor walks an image folder, asks an Extractor for the
// records on each image and hands every record to a RecordReconciler,
// which resolves the customer against the catalog and fills in weight,
// unit price and total. Failures on one image or one record are logged and
// skipped; only a missing folder or an empty one fails the batch.
//
// Example usage:
//
//	rec := reconciler.NewRecordReconciler(cat, arbitrator, nil, log)
//	batch := reconciler.NewBatchProcessor(extractor, rec, nil, log)
//	batch.AddProgressCallback(func(p *reconciler.BatchProgress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentImage)
//	})
//	result, err := batch.Run(ctx, "invoices/")
package reconciler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Extractor reads the invoice records on one image
type Extractor interface {
	ExtractRecords(ctx context.Context, imagePath string) ([]models.ExtractionRecord, error)
}

// ProcessingStats counts what happened during a batch
type ProcessingStats struct {
	RunID             string        `json:"run_id"`
	ImagesFound       int           `json:"images_found"`
	ImagesProcessed   int           `json:"images_processed"`
	ImagesFailed      int           `json:"images_failed"`
	RecordsExtracted  int           `json:"records_extracted"`
	RecordsReconciled int           `json:"records_reconciled"`
	RecordsSkipped    int           `json:"records_skipped"`
	MatchedCount      int           `json:"matched_count"`
	NewCustomerCount  int           `json:"new_customer_count"`
	FuzzyMatchCount   int           `json:"fuzzy_match_count"`
	ProcessingTime    time.Duration `json:"processing_time"`
}

// BatchResult is the outcome of processing one image folder
type BatchResult struct {
	Invoices     []models.ReconciledInvoice `json:"invoices"`
	NewCustomers []string                   `json:"new_customers"`
	FuzzyMatches []models.FuzzyMatch        `json:"fuzzy_matches"`
	Stats        ProcessingStats            `json:"stats"`
	Skipped      *errors.ErrorSummary       `json:"skipped,omitempty"`
}

// BatchProgress tracks the progress of a batch run
type BatchProgress struct {
	TotalImages        int           `json:"total_images"`
	ProcessedImages    int           `json:"processed_images"`
	CurrentImage       string        `json:"current_image"`
	PercentComplete    float64       `json:"percent_complete"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

// ProgressCallback is called after each image
type ProgressCallback func(*BatchProgress)

// BatchProcessor runs extraction and reconciliation over an image folder
type BatchProcessor struct {
	extractor  Extractor
	reconciler *RecordReconciler
	config     *Config
	log        logger.Logger

	progress          logger.Progress
	progressCallbacks []ProgressCallback
	progressMutex     sync.Mutex
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(extractor Extractor, reconciler *RecordReconciler, config *Config, log logger.Logger) *BatchProcessor {
	if config == nil {
		config = DefaultConfig()
	}
	b := &BatchProcessor{
		extractor:  extractor,
		reconciler: reconciler,
		config:     config,
		log:        logger.OrGlobal(log, "batch"),
		progress:   logger.NopProgress{},
	}
	if config.ProgressReporting {
		b.progress = logger.NewProgressTracker(b.log, "image extraction", 10*time.Second)
	}
	return b
}

// SetProgress attaches a progress display such as a terminal bar
func (b *BatchProcessor) SetProgress(p logger.Progress) {
	if p == nil {
		p = logger.NopProgress{}
	}
	b.progress = p
}

// AddProgressCallback adds a progress callback function
func (b *BatchProcessor) AddProgressCallback(callback ProgressCallback) {
	b.progressMutex.Lock()
	defer b.progressMutex.Unlock()
	b.progressCallbacks = append(b.progressCallbacks, callback)
}

// ListImages returns the image files directly inside folder, sorted by
// name. A missing folder is InputNotFound; a folder with no images is
// NoImagesFound.
func ListImages(folder string, extensions []string) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, folder, err)
		}
		return nil, errors.FileError(errors.CodeInputNotFound, folder, err)
	}
	if !info.IsDir() {
		return nil, errors.FileError(errors.CodeInputNotFound, folder, fmt.Errorf("not a directory"))
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, errors.FileError(errors.CodeFilePermission, folder, err)
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() || !allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		images = append(images, filepath.Join(folder, entry.Name()))
	}
	sort.Strings(images)

	if len(images) == 0 {
		return nil, errors.FileError(errors.CodeNoImagesFound, folder, nil)
	}
	return images, nil
}

// Run processes every image in folder. Images are handled one at a time in
// name order so customers appended by earlier records are visible to later
// ones.
func (b *BatchProcessor) Run(ctx context.Context, folder string) (*BatchResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := b.log.WithFields(logger.Fields{"run_id": runID, "folder": folder})

	images, err := ListImages(folder, b.config.ImageExtensions)
	if err != nil {
		return nil, err
	}

	log.WithField("images", len(images)).Info("Starting invoice batch")

	result := &BatchResult{
		Invoices:     []models.ReconciledInvoice{},
		NewCustomers: []string{},
		FuzzyMatches: []models.FuzzyMatch{},
		Stats:        ProcessingStats{RunID: runID, ImagesFound: len(images)},
	}
	skipped := errors.NewCollector(50)
	seenNew := make(map[string]bool)

	b.progress.Start(len(images))
	defer b.progress.Finish()

	for i, image := range images {
		if err := ctx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "process batch", err)
		}

		b.processImage(ctx, image, result, skipped, seenNew)

		b.progress.Step(filepath.Base(image))
		b.reportProgress(i+1, len(images), filepath.Base(image), time.Since(start))
	}

	result.Stats.RecordsSkipped = skipped.Count()
	if skipped.Count() > 0 {
		result.Skipped = skipped.Summary()
	}
	result.Stats.ProcessingTime = time.Since(start)

	log.WithFields(logger.Fields{
		"images_processed": result.Stats.ImagesProcessed,
		"images_failed":    result.Stats.ImagesFailed,
		"invoices":         len(result.Invoices),
		"new_customers":    len(result.NewCustomers),
		"fuzzy_matches":    len(result.FuzzyMatches),
		"duration_ms":      result.Stats.ProcessingTime.Milliseconds(),
	}).Info("Invoice batch completed")

	return result, nil
}

func (b *BatchProcessor) processImage(ctx context.Context, image string, result *BatchResult, skipped *errors.Collector, seenNew map[string]bool) {
	source := filepath.Base(image)
	log := b.log.WithField("source_file", source)

	records, err := b.extractor.ExtractRecords(ctx, image)
	if err != nil {
		result.Stats.ImagesFailed++
		log.WithError(err).Warn("Skipping image")
		skipped.Add(errors.NewSkipped(errors.CategoryExtraction, codeOf(err, errors.CodeInvalidResponse),
			errors.Location{Source: source}, err.Error()))
		return
	}
	result.Stats.ImagesProcessed++
	result.Stats.RecordsExtracted += len(records)

	for i, rec := range records {
		if rec.SourceFile == "" {
			rec.SourceFile = source
		}
		if rec.RecordIndex == 0 {
			rec.RecordIndex = i + 1
		}

		inv, err := b.reconciler.Reconcile(ctx, rec)
		if err != nil {
			log.WithError(err).WithField("record_index", rec.RecordIndex).Warn("Skipping record")
			if s, ok := err.(*errors.Skipped); ok {
				skipped.Add(s)
			} else {
				skipped.Add(errors.NewSkipped(errors.CategoryExtraction, codeOf(err, errors.CodeRecordMalformed),
					errors.Location{Source: source, Row: rec.RecordIndex}, err.Error()))
			}
			continue
		}

		result.Invoices = append(result.Invoices, inv)
		result.Stats.RecordsReconciled++

		switch {
		case inv.Status == models.StatusMatchFound:
			result.Stats.MatchedCount++
		case inv.IsNewCustomer():
			result.Stats.NewCustomerCount++
			if key := strings.ToLower(inv.CustomerName); !seenNew[key] {
				seenNew[key] = true
				result.NewCustomers = append(result.NewCustomers, inv.CustomerName)
			}
		}

		if inv.IsFuzzy {
			result.Stats.FuzzyMatchCount++
			result.FuzzyMatches = append(result.FuzzyMatches, models.FuzzyMatch{
				Original:   inv.OriginalName,
				Matched:    inv.CustomerName,
				Confidence: inv.Confidence,
			})
		}
	}
}

func (b *BatchProcessor) reportProgress(done, total int, current string, elapsed time.Duration) {
	b.progressMutex.Lock()
	defer b.progressMutex.Unlock()

	if len(b.progressCallbacks) == 0 {
		return
	}

	p := &BatchProgress{
		TotalImages:     total,
		ProcessedImages: done,
		CurrentImage:    current,
		PercentComplete: float64(done) / float64(total) * 100,
		ElapsedTime:     elapsed,
	}
	if done < total {
		p.EstimatedRemaining = elapsed / time.Duration(done) * time.Duration(total-done)
	}

	for _, callback := range b.progressCallbacks {
		callback(p)
	}
}

func codeOf(err error, fallback errors.ErrorCode) errors.ErrorCode {
	if invoiceErr, ok := errors.AsInvoiceError(err); ok {
		return invoiceErr.Code
	}
	return fallback
}
