package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jamaly87/vectorindex/pkg/config"
)

// validMRLDims are the dimensions nomic-embed-text was trained to support
// via Matryoshka Representation Learning.
var validMRLDims = []int{64, 128, 256, 512, 768}

// OllamaProvider embeds text through a local Ollama server, applying MRL
// dimension truncation and L2 normalization to the raw model output.
type OllamaProvider struct {
	cfg        config.EmbeddingsConfig
	httpClient *http.Client
	baseURL    string
}

// NewOllamaProvider builds a Provider backed by cfg.OllamaURL. The HTTP
// transport is tuned for connection reuse since Embed is called once per
// refresh batch rather than once per process.
func NewOllamaProvider(cfg config.EmbeddingsConfig) *OllamaProvider {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
	}

	p := &OllamaProvider{
		cfg:     cfg,
		baseURL: cfg.OllamaURL,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
	}

	if cfg.UseMRL {
		full := cfg.FullDimension
		if full == 0 {
			full = 768
		}
		reduction := float64(full-cfg.Dimensions) / float64(full) * 100
		slog.Debug("mrl truncation enabled", "full_dim", full, "target_dim", cfg.Dimensions, "reduction_pct", reduction)
	}

	return p
}

func (p *OllamaProvider) ID() string { return p.cfg.Model }

func (p *OllamaProvider) MaxChunkSize() int {
	if p.cfg.ContextLength > 0 {
		// conservative 2 chars/token estimate, leaving headroom below the
		// model's context window
		return p.cfg.ContextLength * 2
	}
	return 4000
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	maxChars := p.MaxChunkSize()
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	body, err := json.Marshal(embedRequest{Model: p.cfg.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}

	fullDim := p.cfg.FullDimension
	if fullDim == 0 {
		fullDim = 768
	}
	if len(out.Embedding) != fullDim {
		return nil, fmt.Errorf("expected %d dimensions from %s, got %d", fullDim, p.cfg.Model, len(out.Embedding))
	}

	embedding := out.Embedding
	if p.cfg.UseMRL && p.cfg.Dimensions < fullDim {
		embedding = applyMRL(embedding, p.cfg.Dimensions)
	}
	if p.cfg.Normalize {
		embedding = normalize(embedding)
	}
	return embedding, nil
}

// Embed fans requests out across a bounded worker pool, since Ollama's
// embeddings endpoint takes one prompt per call.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		v, err := p.embedOne(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	const maxConcurrent = 10
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var once sync.Once

	for i, text := range texts {
		wg.Add(1)
		go func(idx int, txt string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				return
			default:
			}

			v, err := p.embedOne(ctx, txt)
			if err != nil {
				errs[idx] = fmt.Errorf("embedding failed at index %d: %w", idx, err)
				once.Do(cancel)
				return
			}
			results[idx] = v
		}(i, text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func normalize(vec []float32) []float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	magnitude := float32(1.0) / sqrt32(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v * magnitude
	}
	return out
}

func sqrt32(x float32) float32 {
	z := float64(x)
	for i := 0; i < 10 && z != 0; i++ {
		z = z - (z*z-float64(x))/(2*z)
	}
	return float32(z)
}

// applyMRL truncates embedding to targetDim, rounding to the nearest
// dimension the model was actually trained on if targetDim isn't one of
// them.
func applyMRL(embedding []float32, targetDim int) []float32 {
	valid := false
	for _, d := range validMRLDims {
		if targetDim == d {
			valid = true
			break
		}
	}
	if !valid {
		targetDim = nearestMRLDim(targetDim)
	}
	if targetDim > len(embedding) {
		targetDim = len(embedding)
	}
	sliced := make([]float32, targetDim)
	copy(sliced, embedding[:targetDim])
	return sliced
}

func nearestMRLDim(targetDim int) int {
	if targetDim < validMRLDims[0] {
		return validMRLDims[0]
	}
	last := len(validMRLDims) - 1
	if targetDim > validMRLDims[last] {
		return validMRLDims[last]
	}
	for i := 0; i < last; i++ {
		if targetDim > validMRLDims[i] && targetDim < validMRLDims[i+1] {
			if targetDim-validMRLDims[i] < validMRLDims[i+1]-targetDim {
				return validMRLDims[i]
			}
			return validMRLDims[i+1]
		}
	}
	return targetDim
}
