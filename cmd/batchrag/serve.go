package batchrag

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"batchrag/pkg/metrics"
	"batchrag/pkg/webui"
)

var (
	serveListenAddr   string
	prometheusEnabled bool
	prometheusAddr    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web chat UI and JSON query API",
	Long: `Starts the web server: a chat page on /, a JSON query API on
/api/query and a health endpoint on /healthz. With --metrics a
Prometheus endpoint is served on a separate address.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveListenAddr, "listen-addr", "l", "", "Web server listen address")
	f.BoolVar(&prometheusEnabled, "metrics", false, "Enable Prometheus metrics server")
	f.StringVar(&prometheusAddr, "metrics-addr", "", "Prometheus metrics server address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client, err := newLLMClient(log)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, client, log)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	engine := newEngine(store, client, log)

	// flag overrides
	if serveListenAddr != "" {
		cfg.Serve.ListenAddr = serveListenAddr
	}
	if prometheusAddr != "" {
		cfg.Serve.MetricsAddr = prometheusAddr
	}
	if prometheusEnabled {
		cfg.Serve.MetricsEnabled = true
	}

	var wg sync.WaitGroup
	if cfg.Serve.MetricsEnabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Serve.MetricsAddr})
	}

	server := webui.New(engine, webui.Config{
		ListenAddr: cfg.Serve.ListenAddr,
		ImagesDir:  cfg.Scrape.ImagesDir,
		DefaultK:   cfg.Retrieval.TopK,
		CacheTTL:   cfg.Serve.CacheTTL,
	}, log)

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-stop:
		log.Info("received termination signal, shutting down")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	wg.Wait()
	log.Info("server stopped", zap.String("addr", cfg.Serve.ListenAddr))
	return nil
}
