// Package workflow contains the story workflow orchestrator: the stage
// machine that drives a story from context assembly through merge, with
// durable checkpoints, a confidence-gated review step, and a
// per-project concurrency guard.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"autodev/pkg/contextgen"
	"autodev/pkg/workspace"
)

// Workflow statuses. Once a run leaves pending it never returns.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusPaused     = "paused"
	StatusEscalated  = "escalated"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Pipeline steps, in execution order.
const (
	StepLoadContext       = "load-context"
	StepCreateWorktree    = "create-worktree"
	StepImplement         = "implement"
	StepGenerateTests     = "generate-tests"
	StepRunTests          = "run-tests"
	StepSelfReview        = "self-review"
	StepIndependentReview = "independent-review"
	StepDecide            = "decide"
	StepCreatePR          = "create-pr"
	StepMonitorCI         = "monitor-ci-and-merge"
	StepCleanup           = "cleanup"
)

// PipelineSteps is the fixed stage order.
var PipelineSteps = []string{
	StepLoadContext,
	StepCreateWorktree,
	StepImplement,
	StepGenerateTests,
	StepRunTests,
	StepSelfReview,
	StepIndependentReview,
	StepDecide,
	StepCreatePR,
	StepMonitorCI,
	StepCleanup,
}

// AgentActivity statuses.
const (
	ActivityStarted   = "started"
	ActivityCompleted = "completed"
	ActivityFailed    = "failed"
)

// AgentActivity is one record per agent invocation, append-only.
type AgentActivity struct {
	AgentID   string        `json:"agent_id"`
	AgentName string        `json:"agent_name"`
	Action    string        `json:"action"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// StepRecord is the performance entry for one executed stage.
type StepRecord struct {
	Step      string        `json:"step"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Performance accumulates per-step timing and the running total.
type Performance struct {
	Steps         []StepRecord  `json:"steps,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
}

// StoryWorkflowState is the unit of durable truth for one run. It is
// created on first start, mutated only by the orchestrator, and
// archived on terminal success.
type StoryWorkflowState struct {
	StoryID       string                     `json:"story_id"`
	StoryFilePath string                     `json:"story_file_path"`
	CurrentStep   string                     `json:"current_step"`
	Status        string                     `json:"status"`
	Variables     map[string]json.RawMessage `json:"variables,omitempty"`
	Performance   Performance                `json:"performance"`
	AgentActivity []AgentActivity            `json:"agent_activity,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// NewState creates fresh state for a story.
func NewState(storyID, storyFilePath string) *StoryWorkflowState {
	now := time.Now().UTC()
	return &StoryWorkflowState{
		StoryID:       storyID,
		StoryFilePath: storyFilePath,
		CurrentStep:   StepLoadContext,
		Status:        StatusPending,
		Variables:     make(map[string]json.RawMessage),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SetVariable records a stage's produced artifact.
func (s *StoryWorkflowState) SetVariable(step string, artifact any) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact for step %s: %w", step, err)
	}
	if s.Variables == nil {
		s.Variables = make(map[string]json.RawMessage)
	}
	s.Variables[step] = data
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// GetVariable unmarshals the artifact for step into out, reporting
// whether the step has one.
func (s *StoryWorkflowState) GetVariable(step string, out any) (bool, error) {
	data, ok := s.Variables[step]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal artifact for step %s: %w", step, err)
	}
	return true, nil
}

// StageDone reports whether the step already produced its artifact. A
// resumed run never re-executes a done stage.
func (s *StoryWorkflowState) StageDone(step string) bool {
	_, ok := s.Variables[step]
	return ok
}

// RecordStep appends a performance record for an executed stage.
func (s *StoryWorkflowState) RecordStep(step string, startedAt time.Time, duration time.Duration) {
	s.Performance.Steps = append(s.Performance.Steps, StepRecord{
		Step:      step,
		StartedAt: startedAt,
		Duration:  duration,
	})
	s.Performance.TotalDuration += duration
	s.UpdatedAt = time.Now().UTC()
}

// RecordActivity appends an agent lifecycle event.
func (s *StoryWorkflowState) RecordActivity(a AgentActivity) {
	s.AgentActivity = append(s.AgentActivity, a)
	s.UpdatedAt = time.Now().UTC()
}

// Progress returns completed-stage count over total stages.
func (s *StoryWorkflowState) Progress() (done, total int) {
	for _, step := range PipelineSteps {
		if s.StageDone(step) {
			done++
		}
	}
	return done, len(PipelineSteps)
}

// Stage artifacts stored in Variables, keyed by step name.

// ImplementationResult is the implement stage's artifact.
type ImplementationResult struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// GeneratedTests is the generate-tests stage's artifact.
type GeneratedTests struct {
	Content string `json:"content"`
}

// TestRunResult is the run-tests stage's artifact, including how many
// fix cycles were needed.
type TestRunResult struct {
	Passed      bool     `json:"passed"`
	Failures    int      `json:"failures"`
	Output      string   `json:"output,omitempty"`
	Coverage    Coverage `json:"coverage"`
	FixAttempts int      `json:"fix_attempts"`
}

// SelfReview is the implementing agent's own assessment.
type SelfReview struct {
	Confidence     float64  `json:"confidence"`
	Summary        string   `json:"summary"`
	CriticalIssues []string `json:"critical_issues,omitempty"`
}

// Independent review decisions.
const (
	ReviewPass    = "pass"
	ReviewFail    = "fail"
	ReviewSkipped = "skipped"
)

// IndependentReview is the second agent's cross-check. Degraded marks a
// review skipped because the reviewer was unavailable.
type IndependentReview struct {
	Decision string `json:"decision"`
	Summary  string `json:"summary"`
	Degraded bool   `json:"degraded,omitempty"`
}

// ReviewGateOutcome is the decide stage's artifact.
type ReviewGateOutcome struct {
	Escalated    bool   `json:"escalated"`
	EscalationID string `json:"escalation_id,omitempty"`
	Response     string `json:"response,omitempty"`
	Approved     bool   `json:"approved"`
}

// PRInfo is the create-pr stage's artifact.
type PRInfo struct {
	Number  int    `json:"number"`
	URL     string `json:"url"`
	State   string `json:"state"`
	Branch  string `json:"branch"`
	HeadSHA string `json:"head_sha,omitempty"`
}

// WorktreeArtifact aliases the workspace type for checkpoint storage.
type WorktreeArtifact = workspace.Worktree

// ContextArtifact aliases the assembled brief for checkpoint storage.
type ContextArtifact = contextgen.StoryContext
