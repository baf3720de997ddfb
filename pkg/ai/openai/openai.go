package openai

import (
	"sync"

	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements ai.Provider against any OpenAI-compatible API.
// It manages separate clients for chat and embedding endpoints so both can
// be pointed at different deployments.
//
// An OpenAIProvider should be created using NewOpenAIProvider.
type OpenAIProvider struct {
	name string

	chatModel      string
	embeddingModel string
	embeddingDim   int

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewOpenAIProviderParams defines the configuration for creating an
// OpenAIProvider. Name identifies the provider in gateway health caching
// and stats; ChatURL/EmbeddingURL may be left empty for the hosted API.
type NewOpenAIProviderParams struct {
	Name string

	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string
}

// NewOpenAIProvider creates a provider configured with the given parameters.
//
// Example:
//
//	provider := openai.NewOpenAIProvider(openai.NewOpenAIProviderParams{
//		Name:           "openai",
//		ChatModel:      "gpt-4o-mini",
//		EmbeddingModel: "text-embedding-3-small",
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func NewOpenAIProvider(params NewOpenAIProviderParams) *OpenAIProvider {
	name := params.Name
	if name == "" {
		name = "openai"
	}

	return &OpenAIProvider{
		name: name,

		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embeddingDim:   params.EmbeddingDim,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

// Name returns the provider identifier used by the gateway.
func (c *OpenAIProvider) Name() string {
	return c.name
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *OpenAIProvider) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}

// ResetMetrics clears the accumulated model metrics.
func (c *OpenAIProvider) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns a copy of the accumulated model metrics.
func (c *OpenAIProvider) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
