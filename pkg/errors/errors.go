package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups error codes by the pipeline stage that produced them
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryCatalog       ErrorCategory = "catalog"
	CategoryExtraction    ErrorCategory = "extraction"
	CategoryMatching      ErrorCategory = "matching"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNetwork       ErrorCategory = "network"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode identifies a specific failure within a category
type ErrorCode string

const (
	// File errors
	CodeInputNotFound   ErrorCode = "input_not_found"
	CodeFilePermission  ErrorCode = "file_permission"
	CodeFileCorrupted   ErrorCode = "file_corrupted"
	CodeNoImagesFound   ErrorCode = "no_images_found"
	CodeOutputFailed    ErrorCode = "output_failed"

	// Catalog errors
	CodeWorksheetNotFound ErrorCode = "worksheet_not_found"
	CodeHeaderNotFound    ErrorCode = "header_not_found"
	CodeNoCustomersFound  ErrorCode = "no_customers_found"
	CodeCustomerExists    ErrorCode = "customer_exists"

	// Extraction errors
	CodeExtractionEmpty  ErrorCode = "extraction_empty"
	CodeRecordMalformed  ErrorCode = "record_malformed"
	CodeInvalidResponse  ErrorCode = "invalid_response"

	// Matching errors
	CodeArbiterUnavailable  ErrorCode = "arbiter_unavailable"
	CodeSearchUnavailable   ErrorCode = "search_unavailable"
	CodeNoInvoicesProcessed ErrorCode = "no_invoices_processed"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Network errors
	CodeConnectionFailed   ErrorCode = "connection_failed"
	CodeTimeout            ErrorCode = "timeout"
	CodeServiceUnavailable ErrorCode = "service_unavailable"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// recoverable lists the codes that are absorbed at record or image scope.
var recoverable = map[ErrorCode]bool{
	CodeExtractionEmpty:    true,
	CodeRecordMalformed:    true,
	CodeInvalidResponse:    true,
	CodeArbiterUnavailable: true,
	CodeSearchUnavailable:  true,
	CodeCustomerExists:     true,
}

// InvoiceError is the base error type for all application errors
type InvoiceError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *InvoiceError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *InvoiceError) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether processing may continue past this error.
func (e *InvoiceError) IsRecoverable() bool {
	return recoverable[e.Code]
}

// GetExitCode returns an appropriate exit code for the error
func (e *InvoiceError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryCatalog, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryExtraction, CategoryMatching, CategoryInternal:
		return 5
	case CategoryNetwork:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *InvoiceError) WithContext(key string, value interface{}) *InvoiceError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *InvoiceError) WithSuggestion(suggestion string) *InvoiceError {
	e.Suggestion = suggestion
	return e
}

// New creates a new InvoiceError
func New(category ErrorCategory, code ErrorCode, message string) *InvoiceError {
	return &InvoiceError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with InvoiceError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *InvoiceError {
	if err == nil {
		return nil
	}

	return &InvoiceError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message, suggestion string, err error) *InvoiceError {
	var result *InvoiceError
	if err != nil {
		result = Wrap(err, category, code, message)
	} else {
		result = New(category, code, message)
	}
	return result.WithSuggestion(suggestion)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *InvoiceError {
	var message, suggestion string

	switch code {
	case CodeInputNotFound:
		message = fmt.Sprintf("input not found: %s", path)
		suggestion = "check that the path is correct and the file or folder exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file could not be opened as a workbook: %s", path)
		suggestion = "make sure the knowledge base is a valid .xlsx file"
	case CodeNoImagesFound:
		message = fmt.Sprintf("no invoice images found in: %s", path)
		suggestion = "supported extensions are .jpg, .jpeg, .png, .bmp and .tiff"
	case CodeOutputFailed:
		message = fmt.Sprintf("could not write output: %s", path)
		suggestion = "check that the output directory is writable"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, suggestion, err).
		WithContext("path", path)
}

// CatalogError creates a knowledge-base related error
func CatalogError(code ErrorCode, source string, err error) *InvoiceError {
	var message, suggestion string

	switch code {
	case CodeWorksheetNotFound:
		message = fmt.Sprintf("no worksheet named like 'price' or 'formula' in %s", source)
		suggestion = "rename the customer sheet, e.g. 'Price & Formula'"
	case CodeHeaderNotFound:
		message = fmt.Sprintf("no customer name column found in the header row of %s", source)
		suggestion = "the first row must contain a 'Customer Name' header"
	case CodeNoCustomersFound:
		message = fmt.Sprintf("no valid customer rows found in %s", source)
		suggestion = "each customer row needs a name and a positive price"
	case CodeCustomerExists:
		message = fmt.Sprintf("customer already exists: %s", source)
		suggestion = "use the existing catalog entry instead"
	default:
		message = fmt.Sprintf("catalog error: %s", source)
		suggestion = "check the knowledge base workbook"
	}

	return build(CategoryCatalog, code, message, suggestion, err).
		WithContext("source", source)
}

// ExtractionError creates an OCR or record-ingestion error
func ExtractionError(code ErrorCode, source string, err error) *InvoiceError {
	var message, suggestion string

	switch code {
	case CodeExtractionEmpty:
		message = fmt.Sprintf("no records extracted from %s", source)
		suggestion = "check the image quality or retake the photo"
	case CodeRecordMalformed:
		message = fmt.Sprintf("malformed record in %s", source)
		suggestion = "the record is skipped; verify the invoice manually"
	case CodeInvalidResponse:
		message = fmt.Sprintf("unreadable model response for %s", source)
		suggestion = "the image is skipped; retry or lower the request rate"
	default:
		message = fmt.Sprintf("extraction error: %s", source)
		suggestion = "check the image and try again"
	}

	return build(CategoryExtraction, code, message, suggestion, err).
		WithContext("source", source)
}

// MatchingError creates a customer-resolution error
func MatchingError(code ErrorCode, operation string, err error) *InvoiceError {
	var message, suggestion string

	switch code {
	case CodeArbiterUnavailable:
		message = fmt.Sprintf("arbiter gave no usable answer during %s", operation)
		suggestion = "the deterministic fallback was used"
	case CodeSearchUnavailable:
		message = fmt.Sprintf("similarity search unavailable during %s", operation)
		suggestion = "check that the embedding service is running"
	case CodeNoInvoicesProcessed:
		message = fmt.Sprintf("no invoices could be processed during %s", operation)
		suggestion = "check the images and the knowledge base"
	default:
		message = fmt.Sprintf("matching error during %s", operation)
		suggestion = "review the data and configuration"
	}

	return build(CategoryMatching, code, message, suggestion, err).
		WithContext("operation", operation)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *InvoiceError {
	var message, suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '103.50')"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(CategoryValidation, code, message, suggestion, err).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *InvoiceError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "set it with a flag, an INVOICER_ environment variable or the config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, suggestion, err).
		WithContext("setting", setting).
		WithContext("value", value)
}

// NetworkError creates a network-related error
func NetworkError(code ErrorCode, endpoint string, err error) *InvoiceError {
	var message, suggestion string

	switch code {
	case CodeConnectionFailed:
		message = fmt.Sprintf("connection failed to %s", endpoint)
		suggestion = "check network connectivity and endpoint availability"
	case CodeTimeout:
		message = fmt.Sprintf("timeout connecting to %s", endpoint)
		suggestion = "increase the timeout setting or check network speed"
	case CodeServiceUnavailable:
		message = fmt.Sprintf("service unavailable: %s", endpoint)
		suggestion = "try again later"
	default:
		message = fmt.Sprintf("network error: %s", endpoint)
		suggestion = "check network connection and try again"
	}

	return build(CategoryNetwork, code, message, suggestion, err).
		WithContext("endpoint", endpoint)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *InvoiceError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	suggestion := "this is likely a bug - please report it with the error details"
	if code != CodeUnexpectedError {
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	return build(CategoryInternal, code, message, suggestion, err).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*InvoiceError       `json:"errors"`
	SampleErrors []*InvoiceError       `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*InvoiceError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*InvoiceError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	const maxSamples = 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// AsInvoiceError extracts an InvoiceError from an error chain
func AsInvoiceError(err error) (*InvoiceError, bool) {
	var invoiceErr *InvoiceError
	if errors.As(err, &invoiceErr) {
		return invoiceErr, true
	}
	return nil, false
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	invoiceErr, ok := AsInvoiceError(err)
	return ok && invoiceErr.Code == code
}

// WrapIfNeeded wraps an error if it's not already an InvoiceError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *InvoiceError {
	if err == nil {
		return nil
	}

	if invoiceErr, ok := AsInvoiceError(err); ok {
		return invoiceErr
	}

	return Wrap(err, category, code, message)
}
