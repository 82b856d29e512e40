package remotecache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/sony/gobreaker"
)

// HTTPClient is the concrete RemoteCache binding: an HTTP call to a
// shared cache service, guarded by a circuit breaker and retried with
// exponential backoff on transient failures.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
}

// HTTPClientConfig configures HTTPClient's resilience behavior.
type HTTPClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	MaxRetries         int
	BreakerMaxFailures uint32
}

// NewHTTPClient builds an HTTPClient. The circuit breaker trips after
// BreakerMaxFailures consecutive failures and resets after its timeout
// window elapses.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        "remote-cache",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}

	c := &HTTPClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: uint64(cfg.MaxRetries),
	}
	return c
}

// Connected reports the circuit breaker's last known state: false once
// it has tripped open.
func (c *HTTPClient) Connected() bool {
	return c.breaker.State() != gobreaker.StateOpen
}

type lookupRequest struct {
	CacheKeys []string `json:"cacheKeys"`
	Label     string   `json:"label"`
	RepoName  string   `json:"repoName"`
}

type lookupResponse struct {
	Results map[string][]models.RemoteChunk `json:"results"`
}

// Get issues a lookup request through the circuit breaker, retrying any
// failed lookup (transport error, non-200 status, undecodable body) with
// exponential backoff up to maxRetries times before giving up. An open
// breaker is not retried.
func (c *HTTPClient) Get(ctx context.Context, cacheKeys []string, label, repoName string) (map[string][]models.RemoteChunk, error) {
	if len(cacheKeys) == 0 {
		return nil, nil
	}

	op := func() (interface{}, error) {
		return c.breaker.Execute(func() (interface{}, error) {
			return c.doLookup(ctx, cacheKeys, label, repoName)
		})
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	bo := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	var result map[string][]models.RemoteChunk
	err := backoff.Retry(func() error {
		v, err := op()
		if err != nil {
			if err == gobreaker.ErrOpenState {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v.(map[string][]models.RemoteChunk)
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("remote cache lookup failed: %w", err)
	}
	return result, nil
}

func (c *HTTPClient) doLookup(ctx context.Context, cacheKeys []string, label, repoName string) (map[string][]models.RemoteChunk, error) {
	body, err := json.Marshal(lookupRequest{CacheKeys: cacheKeys, Label: label, RepoName: repoName})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lookup request: %w", err)
	}

	url := c.baseURL + "/v1/lookup"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach remote cache: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote cache returned status %d: %s", resp.StatusCode, string(b))
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode remote cache response: %w", err)
	}
	return out.Results, nil
}
