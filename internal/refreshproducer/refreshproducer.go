// Package refreshproducer is the concrete Upstream Refresh Producer
// (§4, §6): it walks a workspace directory, hashes file contents into
// cacheKeys, and diffs the result against the embedding cache's known
// (path, cacheKey) pairs for an artifact to produce a
// models.RefreshIndexResults.
package refreshproducer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamaly87/vectorindex/internal/chunker"
	"github.com/jamaly87/vectorindex/internal/embedcache"
	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/jamaly87/vectorindex/pkg/config"
	"github.com/jamaly87/vectorindex/pkg/ignore"
)

// CacheReader is the subset of the embedding cache the producer needs to
// discover already-known (path, cacheKey) pairs for an artifact.
type CacheReader interface {
	SelectAllForArtifact(artifactID string) ([]models.CacheRecord, error)
}

// Producer scans a workspace directory and diffs it against an
// artifact's known state.
type Producer struct {
	ignoreMatcher *ignore.Matcher
	langDetector  *chunker.LanguageDetector
	maxFileBytes  int64
}

// New builds a Producer from configuration.
func New(cfg *config.Config) *Producer {
	return &Producer{
		ignoreMatcher: ignore.NewMatcherWithDefaults(cfg.Ignore.Patterns),
		langDetector:  chunker.NewLanguageDetector(cfg.Languages),
		maxFileBytes:  int64(cfg.Refresh.MaxFileSizeMB) * 1024 * 1024,
	}
}

// scanned pairs a workspace-relative path with the content hash it
// currently has on disk.
type scanned struct {
	path     string
	cacheKey string
}

// Diff walks root, hashes every indexable file, and partitions the
// result against known (known by cacheReader for artifactID) into the
// four refresh buckets. A file present on disk with an unchanged
// cacheKey is omitted entirely (already indexed and up to date); a
// changed cacheKey produces both a Delete for the stale key and a
// Compute for the new one, since the old vector rows are keyed by the
// old cacheKey and cannot be reused in place.
func (p *Producer) Diff(root string, artifactID string, cache CacheReader) (models.RefreshIndexResults, error) {
	current, err := p.scan(root)
	if err != nil {
		return models.RefreshIndexResults{}, err
	}

	known, err := cache.SelectAllForArtifact(artifactID)
	if err != nil {
		return models.RefreshIndexResults{}, fmt.Errorf("failed to read known state for artifact %s: %w", artifactID, err)
	}

	knownKeyByPath := make(map[string]string, len(known))
	for _, rec := range known {
		knownKeyByPath[rec.Path] = rec.CacheKey
	}

	currentByPath := make(map[string]string, len(current))
	for _, s := range current {
		currentByPath[s.path] = s.cacheKey
	}

	var results models.RefreshIndexResults
	for _, s := range current {
		priorKey, known := knownKeyByPath[s.path]
		switch {
		case !known:
			results.Compute = append(results.Compute, models.FileVersion{Path: s.path, CacheKey: s.cacheKey})
		case priorKey != s.cacheKey:
			results.Delete = append(results.Delete, models.FileVersion{Path: s.path, CacheKey: priorKey})
			results.Compute = append(results.Compute, models.FileVersion{Path: s.path, CacheKey: s.cacheKey})
		}
	}
	for path, priorKey := range knownKeyByPath {
		if _, stillPresent := currentByPath[path]; !stillPresent {
			results.Delete = append(results.Delete, models.FileVersion{Path: path, CacheKey: priorKey})
		}
	}

	return results, nil
}

// scan walks root, skipping ignored paths, unsupported languages, and
// files over the configured size limit, hashing the rest.
func (p *Producer) scan(root string) ([]scanned, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", root)
	}

	var out []scanned
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || p.ignoreMatcher.ShouldIgnore(relPath)) {
				return fs.SkipDir
			}
			return nil
		}

		if p.ignoreMatcher.ShouldIgnore(relPath) {
			return nil
		}
		if _, ok := p.langDetector.Detect(path); !ok {
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil || fileInfo.Size() > p.maxFileBytes {
			return nil
		}

		contents, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		sum := sha256.Sum256(contents)
		out = append(out, scanned{path: relPath, cacheKey: hex.EncodeToString(sum[:])})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}
	return out, nil
}
