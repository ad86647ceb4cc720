package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/TanWaiKen/invoice-ai-excel/internal/embedding"
	"github.com/TanWaiKen/invoice-ai-excel/internal/llm"
	"github.com/TanWaiKen/invoice-ai-excel/internal/matcher"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reconciler"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reporter"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

func readYAML(t *testing.T, content string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	return v
}

func TestCreateArbitrationConfig(t *testing.T) {
	config, err := CreateArbitrationConfig(viper.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *config != *matcher.DefaultArbitrationConfig() {
		t.Errorf("expected defaults without a matcher section, got %s", config)
	}

	v := readYAML(t, "matcher:\n  top_k: 5\n  acceptance_floor: 0.65\n")
	config, err = CreateArbitrationConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.TopK != 5 {
		t.Errorf("expected TopK 5, got %d", config.TopK)
	}
	if config.AcceptanceFloor != 0.65 {
		t.Errorf("expected AcceptanceFloor 0.65, got %f", config.AcceptanceFloor)
	}
	if config.ArbiterCandidates != 3 {
		t.Errorf("expected untouched ArbiterCandidates 3, got %d", config.ArbiterCandidates)
	}
}

func TestCreateLLMConfig(t *testing.T) {
	t.Setenv("INVOICER_LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "  secret  ")

	v := readYAML(t, "llm:\n  model: gemini-2.0-flash\n  timeout: 90s\n")
	if err := BindAPIKeyEnv(v); err != nil {
		t.Fatalf("failed to bind env: %v", err)
	}

	config, err := CreateLLMConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Model != "gemini-2.0-flash" {
		t.Errorf("expected model override, got %s", config.Model)
	}
	if config.Timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %s", config.Timeout)
	}
	if config.APIKey != "secret" {
		t.Errorf("expected trimmed api key, got %q", config.APIKey)
	}
	if config.RequestsPerMinute != llm.DefaultConfig().RequestsPerMinute {
		t.Errorf("expected default rate, got %d", config.RequestsPerMinute)
	}
}

func TestCreateLLMConfig_PrefixedKeyWins(t *testing.T) {
	t.Setenv("INVOICER_LLM_API_KEY", "primary")
	t.Setenv("GEMINI_API_KEY", "fallback")

	v := readYAML(t, "llm:\n  model: gemini-2.0-flash\n")
	if err := BindAPIKeyEnv(v); err != nil {
		t.Fatalf("failed to bind env: %v", err)
	}

	config, err := CreateLLMConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.APIKey != "primary" {
		t.Errorf("expected INVOICER_LLM_API_KEY to win, got %q", config.APIKey)
	}
	if config.Model != "gemini-2.0-flash" {
		t.Errorf("expected file model to survive env binding, got %s", config.Model)
	}
}

func TestCreateEmbeddingConfig(t *testing.T) {
	config, err := CreateEmbeddingConfig(viper.New(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Enabled {
		t.Error("embeddings should be off by default")
	}

	config, _ = CreateEmbeddingConfig(viper.New(), true)
	if !config.Enabled {
		t.Error("flag should enable embeddings")
	}
	if config.BaseURL != embedding.DefaultConfig().BaseURL {
		t.Errorf("unexpected base url %s", config.BaseURL)
	}
}

func TestCreateReconcilerAndServerConfig(t *testing.T) {
	v := readYAML(t, "reconciler:\n  append_new_customers: false\nserver:\n  addr: \":9000\"\n")

	rc, err := CreateReconcilerConfig(v, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.AppendNewCustomers {
		t.Error("expected append_new_customers from file")
	}
	if !rc.ProgressReporting {
		t.Error("expected progress flag applied")
	}
	if len(rc.ImageExtensions) != len(reconciler.DefaultConfig().ImageExtensions) {
		t.Errorf("expected default extensions, got %v", rc.ImageExtensions)
	}

	sc, err := CreateServerConfig(v, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Addr != ":9000" {
		t.Errorf("expected :9000 from file, got %s", sc.Addr)
	}

	sc, _ = CreateServerConfig(v, ":8123")
	if sc.Addr != ":8123" {
		t.Errorf("expected flag to win, got %s", sc.Addr)
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format   string
		expected reporter.OutputFormat
		valid    bool
	}{
		{"console", reporter.FormatConsole, true},
		{"json", reporter.FormatJSON, true},
		{"csv", reporter.FormatCSV, true},
		{"xml", reporter.OutputFormat("xml"), false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config := CreateReportConfig(tt.format)
			if config.Format != tt.expected {
				t.Errorf("expected format %s, got %s", tt.expected, config.Format)
			}
			if err := config.Validate(); (err == nil) != tt.valid {
				t.Errorf("validate: expected valid=%v, got %v", tt.valid, err)
			}
		})
	}

	if !CreateReportConfig("json").IncludeInvoices {
		t.Error("json summaries should include invoices")
	}
}

func validOptions() Options {
	llmConfig := llm.DefaultConfig()
	llmConfig.APIKey = "test-key"
	return Options{
		Arbitration: matcher.DefaultArbitrationConfig(),
		LLM:         llmConfig,
		Embedding:   embedding.DefaultConfig(),
		Reconciler:  reconciler.DefaultConfig(),
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(validOptions()); err != nil {
		t.Fatalf("expected valid options, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Options)
		code   errors.ErrorCode
	}{
		{"missing api key", func(o *Options) { o.LLM.APIKey = "" }, errors.CodeMissingConfig},
		{"bad top k", func(o *Options) { o.Arbitration.TopK = 0 }, errors.CodeInvalidConfig},
		{"bad embedding url", func(o *Options) { o.Embedding.Enabled = true; o.Embedding.BaseURL = "localhost" }, errors.CodeInvalidConfig},
		{"bad extensions", func(o *Options) { o.Reconciler.ImageExtensions = []string{"jpg"} }, errors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			if err := ValidateConfig(opts); !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestBuildPipeline_RejectsInvalidConfig(t *testing.T) {
	opts := validOptions()
	opts.LLM.APIKey = ""

	p, err := BuildPipeline(context.Background(), opts, logger.NewNopLogger())
	if p != nil {
		t.Error("expected no pipeline")
	}
	if !errors.HasCode(err, errors.CodeMissingConfig) {
		t.Errorf("expected missing config, got %v", err)
	}
}
