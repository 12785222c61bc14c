// Command raincast serves the rain-tomorrow prediction form and API for a
// trained model artifact.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"raincast/config"
	"raincast/db"
	qhttp "raincast/http"
	"raincast/logging"
	"raincast/ml"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file; skipped when absent")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// 1. Load the model; nothing is served without it
	model, err := ml.LoadModel(cfg.Serving.ArtifactPath)
	if err != nil {
		return fmt.Errorf("load model %s: %w", cfg.Serving.ArtifactPath, err)
	}
	schema := model.Schema()
	logger.Info("model loaded",
		zap.String("path", cfg.Serving.ArtifactPath),
		zap.String("artifact_id", model.ArtifactID()),
		zap.String("fingerprint", schema.Fingerprint),
		zap.Int("columns", schema.Len()),
		zap.Float64("threshold", model.Threshold()))

	// 2. Build the form against the model's columns
	form, err := qhttp.NewForm(schema, qhttp.DefaultFields(), cfg.Serving.FixedValues, logger)
	if err != nil {
		return fmt.Errorf("build form: %w", err)
	}

	// 3. Optional prediction audit log
	var audit qhttp.Auditor
	if cfg.Serving.AuditPredictions && cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		audit = store
		logger.Info("auditing predictions", zap.String("database", cfg.Database.Path))
	}

	metrics := qhttp.NewMetrics()
	app, err := qhttp.NewApp(qhttp.AppConfig{
		Model:          model,
		Form:           form,
		Audit:          audit,
		Metrics:        metrics,
		Logger:         logger,
		CacheSize:      cfg.Serving.CacheSize,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Serving.WatchArtifact {
		watcher, err := qhttp.NewArtifactWatcher(cfg.Serving.ArtifactPath, logger, metrics)
		if err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		} else {
			go watcher.Run(ctx)
		}
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, app, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}
