package cmd

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

func newTestHandler(verbose bool) (*CLIErrorHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	return &CLIErrorHandler{out: &buf, logger: logger.NewNopLogger(), verbose: verbose}, &buf
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		exitCode int
		contains []string
	}{
		{
			name:     "nil",
			err:      nil,
			exitCode: 0,
		},
		{
			name:     "missing input",
			err:      errors.FileError(errors.CodeInputNotFound, "/data/images", os.ErrNotExist),
			exitCode: 2,
			contains: []string{"input not found: /data/images", "path: /data/images", "Suggestion:", "File error help"},
		},
		{
			name:     "catalog",
			err:      fmt.Errorf("load: %w", errors.CatalogError(errors.CodeHeaderNotFound, "kb.xlsx", nil)),
			exitCode: 3,
			contains: []string{"Knowledge base help", "invoicer catalog"},
		},
		{
			name:     "missing api key",
			err:      errors.ConfigurationError(errors.CodeMissingConfig, "GEMINI_API_KEY", nil, nil),
			exitCode: 4,
			contains: []string{"GEMINI_API_KEY"},
		},
		{
			name:     "no invoices",
			err:      errors.MatchingError(errors.CodeNoInvoicesProcessed, "process invoices", nil),
			exitCode: 5,
			contains: []string{"Matching help"},
		},
		{
			name:     "plain not found",
			err:      fmt.Errorf("open kb.xlsx: %w", os.ErrNotExist),
			exitCode: 2,
			contains: []string{"File not found"},
		},
		{
			name:     "not found wrapped twice",
			err:      fmt.Errorf("load catalog: %w", &fs.PathError{Op: "open", Path: "kb.xlsx", Err: fs.ErrNotExist}),
			exitCode: 2,
			contains: []string{"File not found"},
		},
		{
			name:     "wrapped permission",
			err:      fmt.Errorf("write ledger: %w", &fs.PathError{Op: "open", Path: "out.xlsx", Err: fs.ErrPermission}),
			exitCode: 2,
			contains: []string{"Permission denied"},
		},
		{
			name:     "flag error",
			err:      fmt.Errorf(`required flag(s) "images" not set`),
			exitCode: 1,
			contains: []string{`"images" not set`, "invoicer --help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, buf := newTestHandler(false)

			if code := h.HandleError(tt.err); code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestHandleErrorVerboseShowsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := errors.NetworkError(errors.CodeConnectionFailed, "http://localhost:11434", cause)

	h, buf := newTestHandler(true)
	if code := h.HandleError(err); code != 6 {
		t.Errorf("expected network exit code 6, got %d", code)
	}
	if !strings.Contains(buf.String(), "Underlying error: dial tcp: connection refused") {
		t.Errorf("verbose output missing cause:\n%s", buf.String())
	}

	h, buf = newTestHandler(false)
	h.HandleError(err)
	if strings.Contains(buf.String(), "Underlying error") {
		t.Error("cause should only be shown in verbose mode")
	}
}
