package util

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "o200k_base"

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
	encErr  error
)

func getEncoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		encoder, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return encoder, encErr
}

// CountTokens returns the number of tokens in text. Falls back to a
// whitespace split when the encoding cannot be loaded.
func CountTokens(text string) int {
	enc, err := getEncoder()
	if err != nil {
		return len(strings.Fields(text))
	}
	return len(enc.Encode(text, nil, nil))
}

// TruncateTokens cuts text down to at most maxTokens tokens, preserving
// the leading content. Text at or under the budget is returned unchanged.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	enc, err := getEncoder()
	if err != nil {
		fields := strings.Fields(text)
		if len(fields) <= maxTokens {
			return text
		}
		return strings.Join(fields[:maxTokens], " ")
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
