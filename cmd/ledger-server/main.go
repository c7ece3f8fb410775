// Command ledger-server runs the trading track-record ledger's HTTP API:
// event ingest, investor report generation, and proof-bundle retrieval,
// backed by Postgres. Wiring follows the teacher's main.go shape: load
// config, connect dependencies, build a plain http.ServeMux, serve until
// SIGINT/SIGTERM, then shut down gracefully.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trackrecord/ledger/pkg/config"
	"github.com/trackrecord/ledger/pkg/database"
	"github.com/trackrecord/ledger/pkg/logging"
	"github.com/trackrecord/ledger/pkg/manifest"
	"github.com/trackrecord/ledger/pkg/notarize"
	"github.com/trackrecord/ledger/pkg/server"
	"github.com/trackrecord/ledger/pkg/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ledger-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if path := os.Getenv("LEDGER_CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return fmt.Errorf("apply config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger, err := logging.New(&logging.Config{Level: level, Format: "json", Output: "stdout"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("starting ledger server", "listenAddr", cfg.ListenAddr, "metricsAddr", cfg.MetricsAddr)

	signer, err := loadSigner(cfg)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	logger.Info("signer ready", "keyVersion", signer.KeyVersion())

	trustedKeys := manifest.NewTrustedKeyRegistry()
	trustedKeys.Trust(signer.KeyVersion())
	for _, fp := range cfg.TrustedKeyVersions {
		trustedKeys.Trust(fp)
	}

	dbClient, err := database.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbClient.MigrateUp(ctx); err != nil {
		cancel()
		return fmt.Errorf("run migrations: %w", err)
	}
	cancel()

	repos := database.NewRepositories(dbClient)

	notarizer := buildNotarizer(cfg)
	ingestSvc := state.NewService(repos, cfg.CheckpointInterval, cfg.CommitmentInterval, []byte(cfg.StateHMACSecret), notarizer)
	ingestSvc.SetLogger(logger)

	instanceTokens := loadInstanceTokens()

	handlers := server.NewLedgerHandlers(ingestSvc, repos, dbClient, signer, trustedKeys, instanceTokens, logger)
	promMetrics, metricsHandler := server.NewPrometheusMetrics()
	handlers.SetMetrics(promMetrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/instances/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events") {
			promMetrics.Instrument("ingest", handlers.HandleIngest)(w, r)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/report", promMetrics.Instrument("report", handlers.HandleReport))
	mux.HandleFunc("/api/bundle", promMetrics.Instrument("bundle", handlers.HandleBundle))
	mux.HandleFunc("/healthz", healthHandler(dbClient))

	requestLogger := logging.NewRequestLogger(logger)
	apiServer := &http.Server{Addr: cfg.ListenAddr, Handler: requestLogger.Wrap(mux)}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("api listening", "addr", cfg.ListenAddr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("api server stopped unexpectedly")
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("api server shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("metrics server shutdown error")
	}
	logger.Info("stopped")
	return nil
}

// loadSigner reads the Ed25519 signing key from the path cfg points at. The
// file holds a single hex-encoded private key, generated once per deployment
// and never rotated without also updating every reader's trusted-key list.
func loadSigner(cfg *config.Config) (*manifest.ManifestSigner, error) {
	raw, err := os.ReadFile(cfg.Ed25519KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.Ed25519KeyPath, err)
	}
	return manifest.NewManifestSignerFromHex(strings.TrimSpace(string(raw)))
}

// buildNotarizer returns a webhook notarizer when NOTARIZE_URL is set, else
// a no-op notarizer (L3 verification stays unreachable until configured).
func buildNotarizer(cfg *config.Config) notarize.Notarizer {
	if cfg.NotarizeURL == "" {
		return notarize.NoopNotarizer{}
	}
	return notarize.NewWebhookNotarizer(notarize.WebhookConfig{
		NotarizeURL: cfg.NotarizeURL,
		VerifyURL:   cfg.NotarizeVerifyURL,
		Timeout:     cfg.NotarizeTimeout,
	})
}

// loadInstanceTokens reads per-instance bearer tokens from
// LEDGER_INSTANCE_TOKENS, a comma-separated instanceId:token list. Empty
// disables bearer checks on ingest (suitable for local/dev deployments
// sitting behind a private network).
func loadInstanceTokens() map[string]string {
	raw := os.Getenv("LEDGER_INSTANCE_TOKENS")
	if raw == "" {
		return nil
	}
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		tokens[parts[0]] = parts[1]
	}
	return tokens
}

func healthHandler(db *database.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		status, err := db.Health(ctx)
		if err != nil || !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "unhealthy")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
}
