package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"intake-platform/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// FactExtractor pulls structured business facts out of raw intake text.
// Extraction is best-effort: callers must tolerate an error and proceed with
// an empty fact map.
type FactExtractor interface {
	Extract(ctx context.Context, transcriptText string) (map[string]any, error)
}

const extractSystemPrompt = `You extract business facts from an intake call transcript.
Respond with a single JSON object. Use keys like business_name, industry,
target_audience, offer, pricing, pain_points, goals. Omit keys you cannot
support with the transcript. Do not invent facts.`

// OpenAIExtractor implements FactExtractor against the chat completions API.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

func NewOpenAIExtractor(cfg config.OpenAIConfig) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for fact extraction")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIExtractor{client: openai.NewClient(cfg.APIKey), model: model}, nil
}

func (e *OpenAIExtractor) Extract(ctx context.Context, transcriptText string) (map[string]any, error) {
	if strings.TrimSpace(transcriptText) == "" {
		return map[string]any{}, nil
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcriptText},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fact extraction call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("fact extraction returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var facts map[string]any
	if err := json.Unmarshal([]byte(content), &facts); err != nil {
		return nil, fmt.Errorf("fact extraction returned non-JSON content: %w", err)
	}
	return facts, nil
}
