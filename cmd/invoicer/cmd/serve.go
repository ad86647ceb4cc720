package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TanWaiKen/invoice-ai-excel/cmd/invoicer/config"
	"github.com/TanWaiKen/invoice-ai-excel/internal/server"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

var (
	serveAddr       string
	serveEmbeddings bool
	serveNoArbiter  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service used by the desktop front-end",
	Long: `Serve exposes POST /process-invoices, GET /health and GET / over HTTP.
One pipeline is built at start-up and shared by every request; requests are
processed one at a time.

Examples:
  invoicer serve
  invoicer serve --addr 127.0.0.1:8000 --embeddings`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8000)")
	serveCmd.Flags().BoolVar(&serveEmbeddings, "embeddings", false, "add Ollama embedding search to fuzzy matching")
	serveCmd.Flags().BoolVar(&serveNoArbiter, "no-llm-arbiter", false, "pick among close candidates deterministically")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger()
	v := viper.GetViper()

	opts, err := loadOptions(v, serveEmbeddings, false)
	if err != nil {
		return err
	}
	opts.UseLLMArbiter = !serveNoArbiter

	serverConfig, err := config.CreateServerConfig(v, serveAddr)
	if err != nil {
		return err
	}

	p, err := config.BuildPipeline(ctx, opts, log)
	if err != nil {
		return err
	}
	defer p.Close()

	srv, err := server.New(serverConfig, p, getVersionString(), log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
