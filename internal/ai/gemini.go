package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultModel   = "gemini-1.5-flash"
	maxPromptChars = 12000
)

// GeminiClient implements Extractor using Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: modelOrDefault(model)}, nil
}

func modelOrDefault(model string) string {
	if model == "" {
		return defaultModel
	}
	return model
}

// ExtractJobs asks the model for the postings listed in page.Text.
func (g *GeminiClient) ExtractJobs(ctx context.Context, page PageData) ([]ExtractedJob, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.1) // Low temperature for consistent JSON output
	model.SetMaxOutputTokens(4096)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(BuildPrompt(page)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return DecodeJobs(text)
}

func (g *GeminiClient) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// BuildPrompt renders the schema-constrained extraction prompt.
func BuildPrompt(page PageData) string {
	return fmt.Sprintf(`You are a strict job listing extractor.

Given the readable text of a company careers page, list every job opening it shows.

Return JSON only, matching this JSON Schema exactly:
%s

Rules:
- Only include real, currently open positions. Do not invent jobs.
- "title" is the position title exactly as written.
- "url" is the posting link if it appears in the text, otherwise omit it.
- "description" is at most 3 sentences.
- If the page lists no jobs, return {"jobs": []}.

Company: %s
Page URL: %s
Page text:
%s`, JobsSchema, page.Company, page.URL, truncateText(page.Text, maxPromptChars))
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
