package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TanWaiKen/invoice-ai-excel/cmd/invoicer/config"
	"github.com/TanWaiKen/invoice-ai-excel/internal/pipeline"
	"github.com/TanWaiKen/invoice-ai-excel/internal/reporter"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Flags for the process command
var (
	imageFolder   string
	catalogFile   string
	outputPath    string
	summaryFormat string
	summaryFile   string
	noLLMArbiter  bool
	useEmbeddings bool
	showProgress  bool
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract, reconcile and export a folder of invoice images",
	Long: `Process reads every invoice image in a folder, resolves each extracted
customer against the knowledge-base workbook and writes the monthly ledger.

This command requires:
- A folder of invoice images (jpg, jpeg, png, bmp, tiff)
- The knowledge-base workbook with a "Price & Formula" style sheet
- GEMINI_API_KEY in the environment

Examples:
  # Basic run
  invoicer process --images ./invoices --catalog kb.xlsx --output reports/ledger

  # Fixed output file and a JSON summary
  invoicer process -i ./invoices -c kb.xlsx -o reports/december.xlsx --format json

  # Deterministic arbitration with embedding search and a progress bar
  invoicer process -i ./invoices -c kb.xlsx -o out --no-llm-arbiter --embeddings --progress`,

	PreRunE: validateProcessFlags,
	RunE:    runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&imageFolder, "images", "i", "", "folder of invoice images (required)")
	processCmd.Flags().StringVarP(&catalogFile, "catalog", "c", "", "knowledge-base workbook (required)")
	processCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output workbook path or prefix (required)")

	processCmd.Flags().StringVarP(&summaryFormat, "format", "f", "console", "summary format: console, json, csv")
	processCmd.Flags().StringVar(&summaryFile, "summary-file", "", "summary file path (default: stdout)")

	processCmd.Flags().BoolVar(&noLLMArbiter, "no-llm-arbiter", false, "pick among close candidates deterministically")
	processCmd.Flags().BoolVar(&useEmbeddings, "embeddings", false, "add Ollama embedding search to fuzzy matching")
	processCmd.Flags().BoolVar(&showProgress, "progress", false, "show a progress bar")

	processCmd.MarkFlagRequired("images")
	processCmd.MarkFlagRequired("catalog")
	processCmd.MarkFlagRequired("output")

	for _, name := range []string{"images", "catalog", "output", "format", "summary-file", "no-llm-arbiter", "embeddings", "progress"} {
		viper.BindPFlag(name, processCmd.Flags().Lookup(name))
	}
}

func validateProcessFlags(cmd *cobra.Command, args []string) error {
	imageFolder = viper.GetString("images")
	catalogFile = viper.GetString("catalog")
	outputPath = viper.GetString("output")
	summaryFormat = viper.GetString("format")
	summaryFile = viper.GetString("summary-file")
	noLLMArbiter = viper.GetBool("no-llm-arbiter")
	useEmbeddings = viper.GetBool("embeddings")
	showProgress = viper.GetBool("progress")

	if imageFolder == "" {
		return errors.ValidationError(errors.CodeMissingField, "images", imageFolder, nil)
	}
	if catalogFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "catalog", catalogFile, nil)
	}
	if outputPath == "" {
		return errors.ValidationError(errors.CodeMissingField, "output", outputPath, nil)
	}

	if err := validateDirExists(imageFolder, "image folder"); err != nil {
		return err
	}
	if err := validateWorkbook(catalogFile); err != nil {
		return err
	}

	if !reporter.OutputFormat(summaryFormat).IsValid() {
		return errors.ValidationError(errors.CodeOutOfRange, "format", summaryFormat,
			fmt.Errorf("valid formats: console, json, csv"))
	}

	if summaryFile != "" {
		if dir := filepath.Dir(summaryFile); dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeInputNotFound, dir, err)
			}
		}
	}

	return nil
}

func validateDirExists(path, description string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeInputNotFound, path, err).WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if !info.IsDir() {
		return errors.FileError(errors.CodeInputNotFound, path, fmt.Errorf("%s is not a directory", description))
	}
	return nil
}

func validateFileExists(path, description string) error {
	if path == "" {
		return errors.ValidationError(errors.CodeMissingField, description, path, nil)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeInputNotFound, path, err).WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeInputNotFound, path, fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	file.Close()

	return nil
}

func validateWorkbook(path string) error {
	if err := validateFileExists(path, "knowledge-base workbook"); err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return nil
	default:
		return errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("expected an .xlsx workbook"))
	}
}

// loadOptions turns viper settings into the pipeline options shared by the
// process and serve commands
func loadOptions(v *viper.Viper, embeddings, progress bool) (config.Options, error) {
	var opts config.Options
	var err error

	if opts.Arbitration, err = config.CreateArbitrationConfig(v); err != nil {
		return opts, err
	}
	if opts.LLM, err = config.CreateLLMConfig(v); err != nil {
		return opts, err
	}
	if opts.Embedding, err = config.CreateEmbeddingConfig(v, embeddings); err != nil {
		return opts, err
	}
	if opts.Reconciler, err = config.CreateReconcilerConfig(v, progress); err != nil {
		return opts, err
	}
	return opts, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithFields(logger.Fields{
		"images":  imageFolder,
		"catalog": catalogFile,
		"output":  outputPath,
	}).Debug("Starting invoice processing")

	opts, err := loadOptions(viper.GetViper(), useEmbeddings, showProgress)
	if err != nil {
		return err
	}
	opts.UseLLMArbiter = !noLLMArbiter
	if showProgress {
		opts.Progress = logger.NewBarProgress(os.Stderr, "Extracting")
	}

	p, err := config.BuildPipeline(ctx, opts, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Run(ctx, pipeline.Request{
		ImageFolder: imageFolder,
		CatalogPath: catalogFile,
		OutputPath:  outputPath,
	})
	if err != nil {
		return err
	}

	summary, err := reporter.NewSummaryReporter(config.CreateReportConfig(summaryFormat))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", summaryFormat, err)
	}

	out := cmd.OutOrStdout()
	if summaryFile != "" {
		f, err := os.Create(summaryFile)
		if err != nil {
			return errors.FileError(errors.CodeOutputFailed, summaryFile, err)
		}
		defer f.Close()
		out = f
	}

	if err := summary.GenerateReport(result.Batch, result.ExcelPath, out); err != nil {
		return errors.InternalError(errors.CodeOutputFailed, "write summary", err)
	}

	if viper.GetBool("verbose") {
		stats := result.Batch.Stats
		fmt.Fprintf(os.Stderr, "\nProcessing completed successfully.\n")
		fmt.Fprintf(os.Stderr, "Processed %d of %d images, %d invoices written to %s.\n",
			stats.ImagesProcessed, stats.ImagesFound, len(result.Batch.Invoices), result.ExcelPath)
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", result.Duration)
	}

	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
