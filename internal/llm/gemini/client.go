package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"applypilot-backend/internal/llm"
	"applypilot-backend/internal/shared/telemetry"
)

// DefaultModel is used when LLM_MODEL is empty.
const DefaultModel = "gemini-2.5-flash"

// Client implements llm.Generator with the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

var _ llm.Generator = (*Client)(nil)

// NewClient builds a Gemini generator. baseURL is only set in tests.
func NewClient(ctx context.Context, apiKey, model, baseURL string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Generate asks Gemini for a cover letter body.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0.7)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 1024,
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil {
		return "", llm.ErrNoText
	}
	if resp.UsageMetadata != nil {
		telemetry.Info("llm.usage", map[string]any{
			"provider":          "gemini",
			"model":             c.model,
			"prompt_tokens":     resp.UsageMetadata.PromptTokenCount,
			"completion_tokens": resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens":      resp.UsageMetadata.TotalTokenCount,
		})
	}
	text, ok := llm.Usable(resp.Text())
	if !ok {
		return "", llm.ErrNoText
	}
	return text, nil
}
