// Package mcp exposes the vector-index engine's refresh and retrieve
// operations as MCP tools over stdio, following the teacher's
// mark3labs/mcp-go wiring.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jamaly87/vectorindex/internal/chunker"
	"github.com/jamaly87/vectorindex/internal/compute"
	"github.com/jamaly87/vectorindex/internal/embedcache"
	"github.com/jamaly87/vectorindex/internal/embedprovider"
	"github.com/jamaly87/vectorindex/internal/refresh"
	"github.com/jamaly87/vectorindex/internal/refreshproducer"
	"github.com/jamaly87/vectorindex/internal/remotecache"
	"github.com/jamaly87/vectorindex/internal/retriever"
	"github.com/jamaly87/vectorindex/internal/vectorstore"
	"github.com/jamaly87/vectorindex/pkg/config"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wires the engine's components behind an MCP tool surface.
type Server struct {
	config    *config.Config
	mcpServer *server.MCPServer
	cache     *embedcache.Cache
	store     vectorstore.Store
	coord     *refresh.Coordinator
	producer  *refreshproducer.Producer
	retr      *retriever.Retriever
	logger    *slog.Logger
}

// NewServer wires every collaborator the Refresh Coordinator and
// Retriever need, then registers the tool surface.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := embedcache.Open(cfg.EmbedCache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:       cfg.VectorStore.Host,
		Port:       cfg.VectorStore.Port,
		UseTLS:     cfg.VectorStore.UseTLS,
		VectorSize: cfg.VectorStore.VectorSize,
		Distance:   cfg.VectorStore.DistanceMetric,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vector store: %w", err)
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
	coord := refresh.NewCoordinator(tables, cache, remote, pipeline, logger)
	producer := refreshproducer.New(cfg)
	retr := retriever.New(tables, cache, provider, logger)

	s := &Server{
		config:   cfg,
		cache:    cache,
		store:    store,
		coord:    coord,
		producer: producer,
		retr:     retr,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(cfg.Server.Name, cfg.Server.Version)
	for _, tool := range s.getTools() {
		mcpServer.AddTool(tool, s.createToolHandler(tool.Name))
	}
	s.mcpServer = mcpServer

	logger.Info("mcp server initialized", "name", cfg.Server.Name, "version", cfg.Server.Version)
	return s, nil
}

func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]interface{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]interface{})
			if !ok {
				return errorResult("invalid arguments format"), nil
			}
		} else {
			args = make(map[string]interface{})
		}

		switch toolName {
		case "refresh_index":
			return s.handleRefreshIndex(ctx, args)
		case "retrieve_chunks":
			return s.handleRetrieveChunks(ctx, args)
		default:
			return errorResult(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}
	}
}

// Start runs the MCP server over stdio and returns when ServeStdio does.
// ctx is not passed to the stdio transport, so cancelling it does not
// stop the server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting mcp server on stdio transport")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

// Close releases the vector store connection and embedding cache handle.
func (s *Server) Close() error {
	s.logger.Info("shutting down mcp server")
	if err := s.cache.Close(); err != nil {
		return err
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
