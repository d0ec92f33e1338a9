package summarizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"digest_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gemini is a Provider and Describer over the Gemini REST API.
type Gemini struct {
	client  HTTPClient
	apiKey  string
	modelFn func() string
	baseURL string
}

// NewGemini creates a Gemini provider. modelFn supplies the current model
// name, normally Settings.GeminiModel.
func NewGemini(client HTTPClient, apiKey string, modelFn func() string) *Gemini {
	return &Gemini{
		client:  client,
		apiKey:  apiKey,
		modelFn: modelFn,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// Complete sends one text prompt and returns the generated text plus token
// usage.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, model.Usage, error) {
	req := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
	return g.generate(ctx, req)
}

// Describe asks the model for a natural-language description of an image.
func (g *Gemini) Describe(ctx context.Context, data []byte) (string, error) {
	req := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{
		{InlineData: &geminiInlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(data),
		}},
		{Text: "Describe this image in 1-2 sentences, focusing on what it shows. Mention any visible text."},
	}}}}
	text, _, err := g.generate(ctx, req)
	return text, err
}

func (g *Gemini) generate(ctx context.Context, payload geminiRequest) (string, model.Usage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.modelFn(), g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("gemini request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", model.Usage{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", model.Usage{}, &RateLimitError{RetryAfter: parseRetryDelay(raw)}
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr geminiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", model.Usage{}, fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", model.Usage{}, fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", model.Usage{}, fmt.Errorf("decode response: %w", err)
	}

	usage := model.Usage{
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		// Safety-filtered responses come back without candidates; the
		// orchestrator decides whether to retry or fall back.
		return "", usage, nil
	}
	return out.Candidates[0].Content.Parts[0].Text, usage, nil
}

var retryInRe = regexp.MustCompile(`(?i)retry in (\d+)`)

// parseRetryDelay digs a suggested wait out of a 429 body. The format is
// advisory and not guaranteed stable, so any parse failure just yields zero
// and the caller falls back to its own schedule.
func parseRetryDelay(raw []byte) time.Duration {
	var apiErr geminiError
	if json.Unmarshal(raw, &apiErr) == nil {
		for _, d := range apiErr.Error.Details {
			if d.RetryDelay == "" {
				continue
			}
			if dur, err := time.ParseDuration(d.RetryDelay); err == nil {
				return dur + 5*time.Second
			}
		}
		if m := retryInRe.FindStringSubmatch(apiErr.Error.Message); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				return time.Duration(secs+5) * time.Second
			}
		}
	}
	return 0
}
