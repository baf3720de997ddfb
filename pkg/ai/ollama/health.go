package ollama

import (
	"context"

	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"
)

// CheckHealth probes the Ollama server with a heartbeat request. Ollama
// has no rate-limit semantics, so any failure maps to unavailable.
func (c *OllamaProvider) CheckHealth(ctx context.Context) (ai.ProviderStatus, error) {
	if err := c.Client.Heartbeat(ctx); err != nil {
		return ai.StatusUnavailable, err
	}
	return ai.StatusAvailable, nil
}
