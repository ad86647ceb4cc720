package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TanWaiKen/invoice-ai-excel/cmd/invoicer/config"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "invoicer",
	Short: "Invoice image to Excel ledger tool",
	Long: `Invoicer reads photographed transport invoices with a vision model,
reconciles every extracted customer against the knowledge-base workbook and
writes a monthly Excel ledger.

Examples:
  invoicer process --images ./invoices --catalog kb.xlsx --output reports/ledger
  invoicer serve --addr :8000
  invoicer catalog --catalog kb.xlsx
  invoicer version`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return NewCLIErrorHandler(os.Stderr).HandleError(err)
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}
	}

	viper.SetEnvPrefix("INVOICER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if err := config.BindAPIKeyEnv(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding environment: %s\n", err)
		os.Exit(4)
	}

	if err := setupLogger(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(4)
	}

	if viper.GetBool("verbose") && viper.ConfigFileUsed() != "" {
		logger.GetGlobalLogger().WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// setupLogger installs the process logger from the log section; --verbose
// forces debug level
func setupLogger(v *viper.Viper) error {
	cfg := logger.DefaultConfig()
	if err := v.UnmarshalKey("log", cfg); err != nil {
		return err
	}
	if v.GetBool("verbose") {
		cfg.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
