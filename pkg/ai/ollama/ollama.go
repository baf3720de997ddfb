package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// OllamaProvider implements ai.Provider using Ollama as the backend.
// It supports chat generation and embeddings via locally-hosted models.
type OllamaProvider struct {
	name string

	chatModel      string
	embeddingModel string
	embeddingDim   int

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewOllamaProviderParams contains configuration options for creating a new OllamaProvider.
type NewOllamaProviderParams struct {
	Name string

	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaProvider creates a new Ollama-based provider with the specified
// configuration. It connects to the Ollama server at the given BaseURL
// (or the default if empty) and uses the configured models for chat and
// embedding operations.
func NewOllamaProvider(
	params NewOllamaProviderParams,
) (*OllamaProvider, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	name := params.Name
	if name == "" {
		name = "ollama"
	}

	return &OllamaProvider{
		name: name,

		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embeddingDim:   params.EmbeddingDim,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: cli,
	}, nil
}

// Name returns the provider identifier used by the gateway.
func (c *OllamaProvider) Name() string {
	return c.name
}

func (c *OllamaProvider) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}

// ResetMetrics clears the accumulated model metrics.
func (c *OllamaProvider) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns a copy of the accumulated model metrics.
func (c *OllamaProvider) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
