package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
)

const defaultDimensions = 1024

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model.
//
// The input is provided as a byte slice and will be converted to a string
// before being sent to the embedding model. The result is truncated or
// zero-padded to the configured dimensionality so every vector entering
// the indices has the same length.
func (c *OpenAIProvider) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	client := c.EmbeddingClient
	if client == nil {
		return nil, fmt.Errorf("openai embedding client not configured")
	}

	dim := c.embeddingDim
	if dim <= 0 {
		dim = defaultDimensions
	}
	if len(input) == 0 || len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, dim), nil
	}

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{string(input)}},
		Model: c.embeddingModel,
	}

	start := time.Now()
	response, err := client.Embeddings.New(ctx, body)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	metrics := ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  duration,
	}
	c.modifyMetrics(metrics)

	if len(response.Data) != 1 {
		return nil, fmt.Errorf("unexpected embedding result size: got %d want 1", len(response.Data))
	}

	vec := make([]float32, 0, dim)
	for _, v := range response.Data[0].Embedding {
		if len(vec) >= dim {
			break
		}
		vec = append(vec, float32(v))
	}
	if len(vec) < dim {
		padded := make([]float32, dim)
		copy(padded, vec)
		vec = padded
	}

	return vec, nil
}
