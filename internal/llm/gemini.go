// Package llm wraps the Gemini API behind the narrow interface the
// investigator reasons through.
package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Client is the reasoning surface the rest of the system depends on.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiClient implements Client on Google's Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// Connect builds the underlying genai client shared by reasoning and
// transcription.
func Connect(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiClient wraps a genai client for analysis. Analysis runs near
// deterministic; temperature stays low so repeated runs agree.
func NewGeminiClient(client *genai.Client, model string) *GeminiClient {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: 0.1,
	}
}

// Complete sends a single-turn prompt and returns the model's text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents,
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr(c.temperature),
		})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}
