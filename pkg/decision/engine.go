// Package decision turns a question plus context into a confidence
// score and recommendation.
//
// The engine produces the score; escalation policy lives in the caller.
// This separation lets the same engine back multiple gates with
// different thresholds.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"autodev/pkg/agent"
	"autodev/pkg/logx"
)

// Decision is the ephemeral output of the engine. It is not persisted
// on its own; low-confidence decisions are embedded into escalations.
type Decision struct {
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning"`
	Question     string         `json:"question"`
	Context      map[string]any `json:"context,omitempty"`
	Alternatives []string       `json:"alternatives,omitempty"`
}

// Engine scores questions using an LLM client. It has no side effects
// beyond producing the Decision.
type Engine struct {
	client agent.LLMClient
	logger *logx.Logger
}

// NewEngine creates a decision engine backed by the given client.
func NewEngine(client agent.LLMClient) *Engine {
	return &Engine{
		client: client,
		logger: logx.NewLogger("decision"),
	}
}

const decisionSystemPrompt = `You assess whether an autonomous coding workflow ` +
	`should proceed past a decision point. Respond with JSON only:
{"confidence": <0.0-1.0>, "reasoning": "<one paragraph>", "alternatives": ["<option>", ...]}`

// AttemptAutonomousDecision scores the question and returns a Decision.
// Malformed model output degrades to a zero-confidence decision rather
// than an error, so the caller's gate still fires.
func (e *Engine) AttemptAutonomousDecision(ctx context.Context, question string, decisionCtx map[string]any) (*Decision, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if e.client == nil {
		return nil, fmt.Errorf("decision engine has no client")
	}

	prompt := question
	if len(decisionCtx) > 0 {
		ctxJSON, err := json.MarshalIndent(decisionCtx, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal decision context: %w", err)
		}
		prompt = fmt.Sprintf("%s\n\nContext:\n%s", question, ctxJSON)
	}

	resp, err := e.client.Complete(ctx, agent.NewCompletionRequest(decisionSystemPrompt, prompt))
	if err != nil {
		return nil, fmt.Errorf("decision completion failed: %w", err)
	}

	var parsed struct {
		Confidence   float64  `json:"confidence"`
		Reasoning    string   `json:"reasoning"`
		Alternatives []string `json:"alternatives"`
	}
	if err := DecodeModelJSON(resp.Content, &parsed); err != nil {
		e.logger.Warn("Could not parse decision output, treating as zero confidence: %v", err)
		return &Decision{
			Confidence: 0,
			Reasoning:  fmt.Sprintf("model output was not parseable: %s", truncate(resp.Content, 200)),
			Question:   question,
			Context:    decisionCtx,
		}, nil
	}

	return &Decision{
		Confidence:   clamp01(parsed.Confidence),
		Reasoning:    parsed.Reasoning,
		Question:     question,
		Context:      decisionCtx,
		Alternatives: parsed.Alternatives,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
