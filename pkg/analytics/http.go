package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/lemur/backend/internal/util"
)

const (
	defaultRequestTimeout = 10 * time.Second
	computeAttempts       = 2
)

// HTTPEngine calls a remote analytics service over HTTP. The service
// accepts a Request as JSON on its compute endpoint and returns a
// Result.
type HTTPEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPOption configures an HTTPEngine.
type HTTPOption func(*HTTPEngine)

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) HTTPOption {
	return func(e *HTTPEngine) {
		e.apiKey = key
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(e *HTTPEngine) {
		e.client = client
	}
}

// NewHTTPEngine creates an engine that talks to the analytics service
// at the given base URL.
func NewHTTPEngine(baseURL string, opts ...HTTPOption) *HTTPEngine {
	e := &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute sends the request to the analytics service and decodes the
// result. Transient failures are retried once within the caller's
// deadline.
func (e *HTTPEngine) Compute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode analytics request: %w", err)
	}

	return util.RetryWithContext(ctx, computeAttempts, func(ctx context.Context) (Result, error) {
		return e.post(ctx, body)
	})
}

func (e *HTTPEngine) post(ctx context.Context, body []byte) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/compute", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build analytics request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("analytics request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("analytics service returned %d: %s", resp.StatusCode, snippet)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("failed to decode analytics result: %w", err)
	}
	return result, nil
}
