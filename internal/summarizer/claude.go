package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"digest_bot/internal/model"
)

// Claude is a Provider over the Anthropic Messages API.
type Claude struct {
	client  anthropic.Client
	modelFn func() string
}

// NewClaude creates a Claude provider. modelFn supplies the current model
// name, normally Settings.ClaudeModel.
func NewClaude(apiKey string, modelFn func() string) *Claude {
	return &Claude{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelFn: modelFn,
	}
}

// Complete sends one text prompt and returns the generated text plus token
// usage.
func (c *Claude) Complete(ctx context.Context, prompt string) (string, model.Usage, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelFn()),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", model.Usage{}, &RateLimitError{RetryAfter: retryAfterHeader(apiErr.Response)}
		}
		return "", model.Usage{}, fmt.Errorf("claude api call: %w", err)
	}

	usage := model.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	if len(msg.Content) == 0 {
		return "", usage, nil
	}
	return msg.Content[0].Text, usage, nil
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("retry-after"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
