package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateChat sends a multi-turn chat conversation to the model and
// returns the assistant's reply as plain text.
//
// Example:
//
//	msgs := []ai.ChatMessage{
//		{Role: "user", Message: "Why does the hydraulic pump overheat?"},
//	}
//	resp, err := provider.GenerateChat(ctx, msgs)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(resp)
func (c *OpenAIProvider) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	client := c.ChatClient
	if client == nil {
		return "", fmt.Errorf("openai chat client not configured")
	}

	options := ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   0.2,
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0)
	for _, message := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(message))
	}
	for _, message := range messages {
		switch message.Role {
		case "user":
			msgs = append(msgs, openai.UserMessage(message.Message))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(message.Message))
		}
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	start := time.Now()
	response, err := client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}
	duration := time.Since(start).Milliseconds()

	metrics := ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	}
	c.modifyMetrics(metrics)

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}

	return response.Choices[0].Message.Content, nil
}
