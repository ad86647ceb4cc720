package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer) *CLIErrorHandler {
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if invoiceErr, ok := errors.AsInvoiceError(err); ok {
		return h.handleInvoiceError(invoiceErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleInvoiceError(err *errors.InvoiceError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", categoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// cobra flag and argument errors land here
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'invoicer --help' for usage.\n")
	return 1
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the image folder and workbook paths exist
• Use absolute paths when running from another directory
• Make sure the output directory is writable`

	case errors.CategoryCatalog:
		return `Knowledge base help:
• Open the workbook and check for a sheet named like "Price & Formula"
• The header row needs a customer name column and a price column
• Run 'invoicer catalog --catalog FILE' to see how the workbook is read`

	case errors.CategoryExtraction:
		return `Extraction help:
• Check that the images are readable invoice photos
• Retake blurred or cropped photos
• Run with --verbose to see which images failed`

	case errors.CategoryMatching:
		return `Matching help:
• Check that the images contain invoices for known customers
• Review the skipped records in the summary
• Try --no-llm-arbiter to rule out the language model`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that every required flag has a value
• Use 'invoicer process --help' to see all available options`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Set GEMINI_API_KEY in the environment
• Verify configuration file syntax if using --config
• Try running with default settings first`

	case errors.CategoryNetwork:
		return `Network error help:
• Check the internet connection for Gemini requests
• Check that Ollama is running when --embeddings is used
• Retry later if the service reports rate limiting`

	default:
		return `For more help:
• Use 'invoicer --help' for general help
• Run with --verbose for the underlying error`
	}
}

func isFileNotFoundError(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}
