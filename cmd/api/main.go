package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pulse-backend/internal/config"
	"pulse-backend/internal/handlers"
	"pulse-backend/internal/logging"
	"pulse-backend/internal/middleware"
	"pulse-backend/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("application startup",
		zap.String("app", cfg.AppName),
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Bool("tracing_enabled", cfg.Tracing.Enabled),
	)

	collector := observability.NewCollector("pulse", logger)
	sampler := observability.NewSampler(cfg.Tracing.SamplingRatio, cfg.Tracing.RouteRatios)

	exporter, exporterShutdown, err := buildExporter(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize trace exporter", zap.Error(err))
	}

	tracer := observability.NewTracer(exporter, sampler, logger)
	r := chi.NewRouter()
	pipeline := observability.NewPipeline(tracer, collector, logging.NewZapSink(logger.Named("api")), logger).
		SkipPaths("/metrics", "/api/health").
		SlowThreshold(cfg.SlowThreshold).
		Routes(r)
	client := observability.NewCallClient(tracer, collector, cfg.External.Timeout, logger)

	if cfg.Tracing.OverridesFile != "" {
		watcher, watchErr := config.NewSamplingWatcher(
			cfg.Tracing.OverridesFile,
			cfg.Tracing.SamplingRatio,
			logger,
			sampler.Update,
		)
		if watchErr != nil {
			logger.Warn("sampling hot reload unavailable", zap.Error(watchErr))
		} else {
			defer watcher.Stop()
		}
	}

	r.Use(middleware.CORS())
	r.Use(middleware.Timeout(cfg.RequestTimeout, logger))
	r.Use(middleware.Recovery(logger))
	r.Use(pipeline.Middleware)

	r.Handle("/metrics", collector.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health(cfg.Version))
		handlers.NewDemo(tracer, client, logger.Named("demo"), cfg.External.URL).Register(r)
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("address", cfg.Addr()))
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(serveErr))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("Server shutdown error", zap.Error(shutdownErr))
	}
	if exporterShutdown != nil {
		if flushErr := exporterShutdown(shutdownCtx); flushErr != nil {
			logger.Error("Trace exporter shutdown error", zap.Error(flushErr))
		}
	}
}

// buildExporter selects the trace exporter from configuration. Tracing
// disabled or exporter "none" yields a no-op exporter with no shutdown hook.
func buildExporter(cfg *config.Config, logger *zap.Logger) (observability.TraceExporter, func(context.Context) error, error) {
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter == "none" {
		return observability.NopExporter{}, nil, nil
	}

	switch cfg.Tracing.Exporter {
	case "log":
		return observability.NewLogExporter(logger.Named("trace")), nil, nil
	default:
		exporter, err := observability.NewOTelExporter(context.Background(), observability.OTelOptions{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Tracing.Endpoint,
			Stdout:         cfg.Tracing.Exporter == "stdout",
		})
		if err != nil {
			return nil, nil, err
		}
		return exporter, exporter.Shutdown, nil
	}
}
