package server

import (
	"github.com/OFFIS-RIT/lemur/backend/internal/util"
	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"
	oai "github.com/OFFIS-RIT/lemur/backend/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/lemur/backend/pkg/ai/openai"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

// buildProviders assembles the gateway's provider list in preference
// order. The primary comes from AI_ADAPTER; a fallback is added when
// AI_FALLBACK_ADAPTER is set. Env keys for the fallback carry the
// AI_FALLBACK_ prefix.
func buildProviders() []ai.Provider {
	providers := []ai.Provider{
		newProvider(util.GetEnvString("AI_ADAPTER", "openai"), "AI", "primary"),
	}
	if fallback := util.GetEnv("AI_FALLBACK_ADAPTER"); fallback != "" {
		providers = append(providers, newProvider(fallback, "AI_FALLBACK", "fallback"))
	}
	return providers
}

func newProvider(adapter, prefix, name string) ai.Provider {
	embedDim := int(util.GetEnvNumeric("EMBED_DIM", 1536))

	switch adapter {
	case "ollama":
		provider, err := oai.NewOllamaProvider(oai.NewOllamaProviderParams{
			Name:           name,
			ChatModel:      util.GetEnv(prefix + "_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv(prefix + "_EMBED_MODEL"),
			EmbeddingDim:   embedDim,

			BaseURL: util.GetEnv(prefix + "_CHAT_URL"),
			ApiKey:  util.GetEnv(prefix + "_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric(prefix+"_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama provider", "err", err)
		}
		return provider
	default:
		return gai.NewOpenAIProvider(gai.NewOpenAIProviderParams{
			Name:           name,
			ChatModel:      util.GetEnv(prefix + "_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv(prefix + "_EMBED_MODEL"),
			EmbeddingDim:   embedDim,

			ChatURL:      util.GetEnv(prefix + "_CHAT_URL"),
			ChatKey:      util.GetEnv(prefix + "_CHAT_KEY"),
			EmbeddingURL: util.GetEnv(prefix + "_EMBED_URL"),
			EmbeddingKey: util.GetEnv(prefix + "_EMBED_KEY"),
		})
	}
}
