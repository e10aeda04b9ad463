// Command crimestats-server serves the view API, asynchronous exports,
// health and Prometheus metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"crimestats/internal/adapters/middleware"
	"crimestats/internal/adapters/views"
	"crimestats/internal/blob"
	"crimestats/internal/config"
	"crimestats/internal/core"
)

const shutdownTimeout = 15 * time.Second

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stderr))
}

func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("crimestats-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", config.DefaultEnvFile, "dotenv file to load when present")
	addr := fs.String("addr", "", "listen address (overrides CRIMESTATS_HTTP_ADDR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "crimestats-server: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	logger := cfg.NewLogger(stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

// app holds the wired server components.
type app struct {
	handler http.Handler
	worker  *views.Worker
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	ds, err := cfg.LoadDataset(ctx, store, logger)
	if err != nil {
		return nil, err
	}

	promRecorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	opts := []core.ServiceOption{
		core.WithMetricsRecorder(core.MultiMetricsRecorder{promRecorder, core.NewExpvarMetricsRecorder("")}),
		core.WithCacheTTL(cfg.CacheTTL),
	}
	if cfg.LogLevel <= slog.LevelDebug {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(os.Stderr, 256)))
	}
	svc := core.NewService(ds, opts...)
	if _, err := svc.InstallPlugin(core.CrimeViews()); err != nil {
		return nil, fmt.Errorf("install views: %w", err)
	}

	worker := views.NewWorker(svc, store, views.SlogAuditLog{Logger: logger})
	worker.SetRetention(cfg.ExportRetention, 0)
	router := mux.NewRouter()
	views.NewHandler(svc, worker).Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)
	router.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthHandler(ds, store)).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
	})
	handler := middleware.Recovery(logger)(middleware.Logging(logger)(corsHandler.Handler(router)))
	return &app{handler: handler, worker: worker}, nil
}

func healthHandler(ds *core.Dataset, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, boundaryErr := ds.Boundaries()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":          "ok",
			"records":         len(ds.Records()),
			"years":           ds.Years(),
			"mapping_version": ds.MappingVersion(),
			"boundaries":      boundaryErr == nil,
			"warnings":        len(ds.Warnings()),
			"blob_driver":     store.Driver(),
		})
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	a.worker.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return a.worker.Stop(shutdownCtx)
}
