// Package agent provides LLM client implementations, a per-run agent
// pool, and retry-with-backoff for externally-fallible calls.
package agent

import "context"

// CompletionRequest is a single-turn completion request. The pipeline
// keeps conversations flat: one system prompt, one user prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// CompletionResponse carries the text returned by the model.
type CompletionResponse struct {
	Content string
}

// LLMClient is the minimal interface every provider client implements.
type LLMClient interface {
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
}

// NewCompletionRequest creates a request with default limits.
func NewCompletionRequest(system, prompt string) CompletionRequest {
	return CompletionRequest{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}
