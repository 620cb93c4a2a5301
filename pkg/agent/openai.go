package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient wraps the official OpenAI Go client to implement
// LLMClient. Used for the independent reviewer so the cross-check runs
// on a different model family than the implementer.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI client for the given model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements LLMClient using the Responses API.
func (o *OpenAIClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return CompletionResponse{}, fmt.Errorf("prompt cannot be empty")
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	// The Responses API takes a single input string; fold the system
	// prompt in front of the user prompt.
	input := in.Prompt
	if in.System != "" {
		input = fmt.Sprintf("System: %s\n\n%s", in.System, in.Prompt)
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("openai completion failed: %w", err)
	}
	if resp == nil {
		return CompletionResponse{}, fmt.Errorf("empty response from OpenAI API")
	}

	content := resp.OutputText()
	if content == "" {
		return CompletionResponse{}, fmt.Errorf("no text content in OpenAI response")
	}

	return CompletionResponse{Content: content}, nil
}

// ModelName returns the configured model identifier.
func (o *OpenAIClient) ModelName() string {
	return o.model
}
