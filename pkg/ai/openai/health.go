package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// CheckHealth probes the chat endpoint by listing models. A 429 response
// maps to rate-limited; any other error marks the provider unavailable.
func (c *OpenAIProvider) CheckHealth(ctx context.Context) (ai.ProviderStatus, error) {
	if c.ChatClient == nil {
		return ai.StatusUnavailable, fmt.Errorf("openai chat client not configured")
	}

	_, err := c.ChatClient.Models.List(ctx)
	if err == nil {
		return ai.StatusAvailable, nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return ai.StatusRateLimited, err
	}

	return ai.StatusUnavailable, err
}
