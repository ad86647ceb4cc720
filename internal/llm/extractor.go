package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

var imageMIMETypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// MIMEType returns the image MIME type for path's extension
func MIMEType(path string) (string, bool) {
	t, ok := imageMIMETypes[strings.ToLower(filepath.Ext(path))]
	return t, ok
}

// Extractor reads invoice records from images
type Extractor struct {
	model  Model
	schema *jsonschema.Schema
	log    logger.Logger
}

// NewExtractor creates an extractor over model
func NewExtractor(model Model, log logger.Logger) (*Extractor, error) {
	schema, err := CompileRecordSchema()
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "compile record schema", err)
	}
	return &Extractor{
		model:  model,
		schema: schema,
		log:    logger.OrGlobal(log, "extractor"),
	}, nil
}

// ExtractRecords reads every invoice record in one image. An answer with no
// usable record is an ExtractionEmpty error.
func (e *Extractor) ExtractRecords(ctx context.Context, imagePath string) ([]models.ExtractionRecord, error) {
	source := filepath.Base(imagePath)

	mimeType, ok := MIMEType(imagePath)
	if !ok {
		return nil, errors.FileError(errors.CodeFileCorrupted, imagePath, fmt.Errorf("unsupported image type"))
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, imagePath, err)
		}
		return nil, errors.FileError(errors.CodeInputNotFound, imagePath, err)
	}

	answer, err := e.model.Generate(ctx, Request{
		Prompt:   extractionPrompt,
		Image:    data,
		MIMEType: mimeType,
		JSON:     true,
	})
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryExtraction, errors.CodeInvalidResponse, "OCR request failed")
	}

	records, skipped, err := ParseRecords(answer, source, e.schema)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped.Skipped() {
		e.log.WithError(s).WithField("source_file", source).Warn("Dropping malformed extracted record")
	}

	if len(records) == 0 {
		return nil, errors.ExtractionError(errors.CodeExtractionEmpty, source, nil)
	}

	e.log.WithFields(logger.Fields{
		"source_file": source,
		"records":     len(records),
		"skipped":     skipped.Count(),
	}).Debug("Records extracted")

	return records, nil
}
