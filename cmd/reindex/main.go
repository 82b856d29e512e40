package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jamaly87/vectorindex/internal/chunker"
	"github.com/jamaly87/vectorindex/internal/compute"
	"github.com/jamaly87/vectorindex/internal/embedcache"
	"github.com/jamaly87/vectorindex/internal/embedprovider"
	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/jamaly87/vectorindex/internal/refresh"
	"github.com/jamaly87/vectorindex/internal/refreshproducer"
	"github.com/jamaly87/vectorindex/internal/remotecache"
	"github.com/jamaly87/vectorindex/internal/vectorstore"
	"github.com/jamaly87/vectorindex/pkg/config"
)

func main() {
	var (
		branch     = flag.String("branch", "main", "branch name for this corpus tag")
		directory  = flag.String("directory", "", "directory name for this corpus tag")
		artifactID = flag.String("artifact", "", "artifact id to index under")
	)
	flag.Parse()

	root, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get current directory: %v", err)
	}
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}
	if *artifactID == "" {
		log.Fatal("-artifact is required")
	}

	slog.Info("starting workspace reindex", "root", root, "artifact", *artifactID)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cache, err := embedcache.Open(cfg.EmbedCache.Path)
	if err != nil {
		log.Fatalf("Failed to open embedding cache: %v", err)
	}
	defer cache.Close()

	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:       cfg.VectorStore.Host,
		Port:       cfg.VectorStore.Port,
		UseTLS:     cfg.VectorStore.UseTLS,
		VectorSize: cfg.VectorStore.VectorSize,
		Distance:   cfg.VectorStore.DistanceMetric,
	})
	if err != nil {
		log.Fatalf("Failed to connect to vector store: %v", err)
	}
	tables := vectorstore.NewManager(store)

	provider := embedprovider.NewOllamaProvider(cfg.Embeddings)

	var remote remotecache.RemoteCache
	if cfg.RemoteCache.Enabled {
		remote = remotecache.NewHTTPClient(remotecache.HTTPClientConfig{
			BaseURL:            cfg.RemoteCache.URL,
			Timeout:            time.Duration(cfg.RemoteCache.TimeoutSeconds) * time.Second,
			MaxRetries:         cfg.RemoteCache.MaxRetries,
			BreakerMaxFailures: cfg.RemoteCache.BreakerMaxFailures,
		})
	}

	langDetector := chunker.NewLanguageDetector(cfg.Languages)
	lineChunker := chunker.NewLineChunker(cfg.Chunking.MaxLines, cfg.Chunking.OverlapLines)
	astChunker := chunker.NewASTChunker(langDetector, lineChunker)
	pipeline := compute.NewPipeline(compute.OSFileReader{}, astChunker, provider)

	coord := refresh.NewCoordinator(tables, cache, remote, pipeline, slog.Default())
	producer := refreshproducer.New(cfg)

	results, err := producer.Diff(root, *artifactID, cache)
	if err != nil {
		log.Fatalf("Failed to diff workspace: %v", err)
	}
	slog.Info("diff computed",
		"compute", len(results.Compute),
		"add_tag", len(results.AddTag),
		"remove_tag", len(results.RemoveTag),
		"delete", len(results.Delete))

	tag := models.Tag{Branch: *branch, Directory: *directory, ArtifactID: *artifactID}
	markComplete := func(items []models.FileVersion, kind models.ResultKind) {
		slog.Debug("batch complete", "kind", kind.String(), "count", len(items))
	}

	startTime := time.Now()
	var failed error
	for event := range coord.Update(context.Background(), tag, results, markComplete, *artifactID) {
		if event.Err != nil {
			failed = event.Err
			continue
		}
		slog.Info("refresh progress", "progress", event.Progress, "status", event.Status, "desc", event.Desc)
	}
	duration := time.Since(startTime)

	if failed != nil {
		slog.Error("reindex failed", "error", failed, "duration", duration)
		os.Exit(1)
	}
	slog.Info("reindex completed", "duration", duration)
}
