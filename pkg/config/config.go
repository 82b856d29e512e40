package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the vector-index engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Search      SearchConfig      `yaml:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	VectorStore VectorStoreConfig `yaml:"vectorstore"`
	EmbedCache  EmbedCacheConfig  `yaml:"embed_cache"`
	RemoteCache RemoteCacheConfig `yaml:"remote_cache"`
	Logging     LoggingConfig     `yaml:"logging"`
	Ignore      IgnoreConfig      `yaml:"ignore_patterns"`
	Languages   LanguagesConfig   `yaml:"supported_languages"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChunkingConfig struct {
	MaxLines                   int  `yaml:"max_lines"`
	OverlapLines               int  `yaml:"overlap_lines"`
	RespectBoundaries          bool `yaml:"respect_boundaries"`
	SmallFileMaxTokens         int  `yaml:"small_file_max_tokens"`
	MediumFileMaxTokens        int  `yaml:"medium_file_max_tokens"`
	LargeFileMaxTokens         int  `yaml:"large_file_max_tokens"`
	EnableHierarchicalChunking bool `yaml:"enable_hierarchical_chunking"`
	MaxChunkSizeBytes          int  `yaml:"max_chunk_size_bytes"`
	MaxChunksPerFile           int  `yaml:"max_chunks_per_file"`
}

// RefreshConfig holds refresh settings. Only MaxFileSizeMB is read (by the
// refresh producer's scan); BatchSize, ParallelWorkers and Incremental are
// not used by any component.
type RefreshConfig struct {
	BatchSize       int  `yaml:"batch_size"`
	MaxFileSizeMB   int  `yaml:"max_file_size_mb"`
	ParallelWorkers int  `yaml:"parallel_workers"`
	Incremental     bool `yaml:"incremental"`
}

type SearchConfig struct {
	MaxResults        int     `yaml:"max_results"`
	SemanticWeight    float64 `yaml:"semantic_weight"`
	ExactMatchBoost   float64 `yaml:"exact_match_boost"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"`
}

type EmbeddingsConfig struct {
	Model         string `yaml:"model"`
	OllamaURL     string `yaml:"ollama_url"`
	BatchSize     int    `yaml:"batch_size"`
	Dimensions    int    `yaml:"dimensions"`
	FullDimension int    `yaml:"full_dimension"`
	ContextLength int    `yaml:"context_length"`
	Normalize     bool   `yaml:"normalize"`
	UseMRL        bool   `yaml:"use_mrl"`
}

// VectorStoreConfig binds to the Qdrant collection backing the Vector
// Table Manager (§4.3).
type VectorStoreConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	UseTLS         bool   `yaml:"use_tls"`
	DistanceMetric string `yaml:"distance_metric"`
	VectorSize     int    `yaml:"vector_size"`
}

// EmbedCacheConfig points at the durable gorm-backed sqlite embedding
// cache (§4.4).
type EmbedCacheConfig struct {
	Path string `yaml:"path"`
}

// RemoteCacheConfig controls the optional precomputed-embeddings lookup
// service (§4.5).
type RemoteCacheConfig struct {
	Enabled            bool   `yaml:"enabled"`
	URL                string `yaml:"url"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	MaxRetries         int    `yaml:"max_retries"`
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`
}

type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Directory  string `yaml:"directory"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// IgnoreConfig lists extra scan-skip patterns on top of
// ignore.DefaultPatterns.
type IgnoreConfig struct {
	Patterns []string `yaml:"patterns"`
}

type LanguagesConfig struct {
	Java       LanguageConfig `yaml:"java"`
	TypeScript LanguageConfig `yaml:"typescript"`
	JavaScript LanguageConfig `yaml:"javascript"`
}

type LanguageConfig struct {
	Extensions []string `yaml:"extensions"`
	Parser     string   `yaml:"parser"`
}

// Load loads configuration from file or returns defaults, then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.EmbedCache.Path = expandPath(cfg.EmbedCache.Path)
	cfg.Logging.Directory = expandPath(cfg.Logging.Directory)

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "vectorindex",
			Version: "0.1.0",
		},
		Chunking: ChunkingConfig{
			MaxLines:                   25,
			OverlapLines:               5,
			RespectBoundaries:          true,
			SmallFileMaxTokens:         300,
			MediumFileMaxTokens:        200,
			LargeFileMaxTokens:         150,
			EnableHierarchicalChunking: true,
			MaxChunkSizeBytes:          4000,
			MaxChunksPerFile:           20,
		},
		Refresh: RefreshConfig{
			BatchSize:       100,
			MaxFileSizeMB:   1,
			ParallelWorkers: runtime.NumCPU(),
			Incremental:     true,
		},
		Search: SearchConfig{
			MaxResults:        5,
			SemanticWeight:    0.7,
			ExactMatchBoost:   1.5,
			MinScoreThreshold: 0.5,
		},
		Embeddings: EmbeddingsConfig{
			Model:         "nomic-embed-text",
			OllamaURL:     "http://localhost:11434",
			BatchSize:     16,
			Dimensions:    256,
			FullDimension: 768,
			ContextLength: 8192,
			Normalize:     true,
			UseMRL:        true,
		},
		VectorStore: VectorStoreConfig{
			Host:           "localhost",
			Port:           6334,
			UseTLS:         false,
			DistanceMetric: "cosine",
			VectorSize:     256,
		},
		EmbedCache: EmbedCacheConfig{
			Path: "~/.vectorindex/cache/embeddings.db",
		},
		RemoteCache: RemoteCacheConfig{
			Enabled:            false,
			URL:                "",
			TimeoutSeconds:     5,
			MaxRetries:         3,
			BreakerMaxFailures: 5,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Directory:  "~/.vectorindex/logs",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		// Patterns here are additions on top of ignore.DefaultPatterns,
		// which every scan applies regardless of config (§4 scan step).
		Ignore: IgnoreConfig{
			Patterns: nil,
		},
		Languages: LanguagesConfig{
			Java: LanguageConfig{
				Extensions: []string{".java"},
				Parser:     "tree-sitter-java",
			},
			TypeScript: LanguageConfig{
				Extensions: []string{".ts", ".tsx"},
				Parser:     "tree-sitter-typescript",
			},
			JavaScript: LanguageConfig{
				Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
				Parser:     "tree-sitter-javascript",
			},
		},
	}
}

func getConfigPath() string {
	if path := os.Getenv("VECTORINDEX_CONFIG"); path != "" {
		return path
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".vectorindex", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		cfg.Embeddings.OllamaURL = url
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		cfg.Embeddings.Model = model
	}
	if url := os.Getenv("REMOTE_CACHE_URL"); url != "" {
		cfg.RemoteCache.URL = url
		cfg.RemoteCache.Enabled = true
	}
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		cfg.VectorStore.Host = host
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
