package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/TanWaiKen/invoice-ai-excel/internal/catalog"
	"github.com/TanWaiKen/invoice-ai-excel/internal/embedding"
	"github.com/TanWaiKen/invoice-ai-excel/internal/llm"
	"github.com/TanWaiKen/invoice-ai-excel/internal/matcher"
	"github.com/TanWaiKen/invoice-ai-excel/internal/pipeline"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reconciler"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reporter"
	"github.com/TanWaiKen/invoice-ai-excel/internal/server"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Viper keys of the configuration sections
const (
	MatcherKey    = "matcher"
	LLMKey        = "llm"
	LLMAPIKey     = "llm.api_key"
	EmbeddingKey  = "embedding"
	ReconcilerKey = "reconciler"
	ServerKey     = "server"
)

// BindAPIKeyEnv binds the Gemini API key to INVOICER_LLM_API_KEY, falling
// back to GEMINI_API_KEY
func BindAPIKeyEnv(v *viper.Viper) error {
	return v.BindEnv(LLMAPIKey, "INVOICER_LLM_API_KEY", "GEMINI_API_KEY")
}

// CreateArbitrationConfig starts from the production thresholds and applies
// the matcher section of the config file
func CreateArbitrationConfig(v *viper.Viper) (*matcher.ArbitrationConfig, error) {
	config := matcher.DefaultArbitrationConfig()
	if err := v.UnmarshalKey(MatcherKey, config); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, MatcherKey, nil, err)
	}
	return config, nil
}

// CreateLLMConfig applies the llm section. The API key comes from
// llm.api_key, which the root command binds to GEMINI_API_KEY.
func CreateLLMConfig(v *viper.Viper) (*llm.Config, error) {
	config := llm.DefaultConfig()
	if err := v.UnmarshalKey(LLMKey, config); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, LLMKey, nil, err)
	}
	if key := strings.TrimSpace(v.GetString(LLMAPIKey)); key != "" {
		config.APIKey = key
	}
	return config, nil
}

// CreateEmbeddingConfig applies the embedding section; enabled overrides the
// file when the --embeddings flag was given
func CreateEmbeddingConfig(v *viper.Viper, enabled bool) (*embedding.Config, error) {
	config := embedding.DefaultConfig()
	if err := v.UnmarshalKey(EmbeddingKey, config); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, EmbeddingKey, nil, err)
	}
	if enabled {
		config.Enabled = true
	}
	return config, nil
}

// CreateReconcilerConfig applies the reconciler section and the CLI progress flag
func CreateReconcilerConfig(v *viper.Viper, showProgress bool) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	if err := v.UnmarshalKey(ReconcilerKey, config); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, ReconcilerKey, nil, err)
	}
	if showProgress {
		config.ProgressReporting = true
	}
	return config, nil
}

// CreateServerConfig applies the server section; a non-empty addr wins
func CreateServerConfig(v *viper.Viper, addr string) (*server.Config, error) {
	config := server.DefaultConfig()
	if err := v.UnmarshalKey(ServerKey, config); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, ServerKey, nil, err)
	}
	if addr != "" {
		config.Addr = addr
	}
	return config, nil
}

// CreateReportConfig creates a summary configuration for the specified format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
		config.IncludeInvoices = false
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeInvoices = true
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		config.Format = reporter.OutputFormat(format)
	}

	return config
}

// Options collects everything BuildPipeline needs
type Options struct {
	Arbitration   *matcher.ArbitrationConfig
	LLM           *llm.Config
	Embedding     *embedding.Config
	Reconciler    *reconciler.Config
	UseLLMArbiter bool
	Progress      logger.Progress
}

// ValidateConfig validates every section of opts
func ValidateConfig(opts Options) error {
	checks := []struct {
		setting string
		check   func() error
	}{
		{MatcherKey, opts.Arbitration.Validate},
		{LLMKey, opts.LLM.Validate},
		{EmbeddingKey, opts.Embedding.Validate},
		{ReconcilerKey, opts.Reconciler.Validate},
	}
	for _, c := range checks {
		if err := c.check(); err != nil {
			ie := errors.ConfigurationError(errors.CodeInvalidConfig, c.setting, nil, err)
			if c.setting == LLMKey && strings.Contains(err.Error(), "api key") {
				ie = errors.ConfigurationError(errors.CodeMissingConfig, "GEMINI_API_KEY", nil, err)
			}
			return ie
		}
	}
	return nil
}

// BuildPipeline wires catalog, searches, arbitrator, extractor, reconciler,
// batch processor and Excel writer into one pipeline. The Gemini client and
// the embedding cache are released by the pipeline's Close.
func BuildPipeline(ctx context.Context, opts Options, log logger.Logger) (*pipeline.Pipeline, error) {
	if err := ValidateConfig(opts); err != nil {
		return nil, err
	}

	var closers []func() error
	fail := func(err error) (*pipeline.Pipeline, error) {
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	cat := catalog.New(log)
	fuzzy := matcher.NewFuzzySearch(log)
	cat.Register(ctx, fuzzy)

	var optional []matcher.Searcher
	if opts.Embedding.Enabled {
		cache, err := embedding.OpenSQLiteCache(opts.Embedding.CachePath)
		if err != nil {
			return fail(errors.FileError(errors.CodeFilePermission, opts.Embedding.CachePath, err))
		}
		closers = append(closers, cache.Close)

		client := embedding.NewOllamaClient(opts.Embedding, log)
		semantic := embedding.NewSearch(client, cache, client.Model(), log)
		semantic.SetProbeInterval(opts.Embedding.ProbeInterval)
		cat.Register(ctx, semantic)
		optional = append(optional, semantic)
	}
	search := matcher.NewCompositeSearch(log, fuzzy, optional...)

	gemini, err := llm.NewGeminiClient(ctx, opts.LLM, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, gemini.Close)

	var arbiter matcher.Arbiter
	if opts.UseLLMArbiter {
		arbiter = llm.NewArbiter(gemini, log)
	}
	arbitrator := matcher.NewArbitrator(search, arbiter, opts.Arbitration, log)

	extractor, err := llm.NewExtractor(gemini, log)
	if err != nil {
		return fail(fmt.Errorf("failed to create extractor: %w", err))
	}

	records := reconciler.NewRecordReconciler(cat, arbitrator, opts.Reconciler, log)
	batch := reconciler.NewBatchProcessor(extractor, records, opts.Reconciler, log)
	if opts.Progress != nil {
		batch.SetProgress(opts.Progress)
	}

	return pipeline.New(cat, batch, reporter.NewExcelWriter(log), log, closers...), nil
}
