package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jamaly87/vectorindex/internal/mcp"
	"github.com/jamaly87/vectorindex/pkg/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser, logger, err := setupLogging(cfg)
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	logger.Info("configuration loaded",
		"embedding_model", cfg.Embeddings.Model,
		"ollama_url", cfg.Embeddings.OllamaURL,
		"vectorstore_host", cfg.VectorStore.Host)

	server, err := mcp.NewServer(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("starting mcp server")
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// setupLogging builds a slog.Logger that writes to both stderr and a
// size-rotated log file, or to stderr alone when logging is disabled.
// Rotation, backup retention, and gzip compression of rotated files are
// delegated to lumberjack.Logger, driven directly by LoggingConfig's
// knobs rather than a hand-rolled ticker and file-rename loop.
func setupLogging(cfg *config.Config) (io.Closer, *slog.Logger, error) {
	if !cfg.Logging.Enabled || cfg.Logging.Directory == "" {
		return nil, slog.New(slog.NewTextHandler(os.Stderr, nil)), nil
	}

	if err := os.MkdirAll(cfg.Logging.Directory, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logging.Directory, "vectorindex.log"),
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, rotator), &slog.HandlerOptions{Level: level}))

	return rotator, logger, nil
}
