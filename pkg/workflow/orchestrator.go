package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autodev/pkg/agent"
	"autodev/pkg/config"
	"autodev/pkg/contextgen"
	"autodev/pkg/decision"
	"autodev/pkg/escalation"
	"autodev/pkg/github"
	"autodev/pkg/logx"
	"autodev/pkg/metrics"
	"autodev/pkg/statestore"
	"autodev/pkg/workspace"
)

// Sentinel errors callers must distinguish from plain failure.
var (
	// ErrEscalated marks a run stopped for human review. Callers treat
	// this differently from an outright failure.
	ErrEscalated = errors.New("escalated to human review")
	// ErrPaused marks a run suspended at a checkpoint boundary.
	ErrPaused = errors.New("workflow paused")
)

// PRClient is the PR automation contract the orchestrator depends on.
// *github.Client satisfies it.
type PRClient interface {
	CreatePR(ctx context.Context, opts github.PRCreateOptions) (*github.PullRequest, error)
	MonitorCIAndMerge(ctx context.Context, pr *github.PullRequest, opts github.MonitorOptions) error
	DeleteBranch(ctx context.Context, branch string) error
}

// StatusTracker is the sprint tracker contract. Updates are advisory:
// failures are logged and the run continues.
type StatusTracker interface {
	UpdateStatus(ctx context.Context, storyID, status, detail string) error
}

// PullRequestResult is the terminal output of a successful run.
type PullRequestResult struct {
	StoryID       string        `json:"story_id"`
	PRNumber      int           `json:"pr_number"`
	PRURL         string        `json:"pr_url"`
	Merged        bool          `json:"merged"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Deps are the explicitly constructed collaborators the orchestrator
// composes. No process-wide singletons.
type Deps struct {
	Config      *config.Config
	Store       *statestore.Store
	Escalations *escalation.Queue
	Decisions   *decision.Engine // optional; escalations fall back to review summaries
	Pool        *agent.Pool
	Worktrees   workspace.Manager
	Context     contextgen.Generator
	PRs         PRClient
	Tracker     StatusTracker // optional
	Metrics     *metrics.Recorder
	Tests       TestRunner
}

// Orchestrator drives the story pipeline end to end.
type Orchestrator struct {
	deps   Deps
	logger *logx.Logger
}

// NewOrchestrator validates the dependency set and creates an
// orchestrator.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("config is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("state store is required")
	case deps.Escalations == nil:
		return nil, fmt.Errorf("escalation queue is required")
	case deps.Pool == nil:
		return nil, fmt.Errorf("agent pool is required")
	case deps.Worktrees == nil:
		return nil, fmt.Errorf("worktree manager is required")
	case deps.Context == nil:
		return nil, fmt.Errorf("context generator is required")
	case deps.PRs == nil:
		return nil, fmt.Errorf("PR client is required")
	case deps.Tests == nil:
		return nil, fmt.Errorf("test runner is required")
	}
	return &Orchestrator{
		deps:   deps,
		logger: logx.NewLogger("workflow"),
	}, nil
}

// ExecuteStoryWorkflow runs the full pipeline for one story and blocks
// until it reaches a terminal state. Escalated runs return a result
// wrapped in ErrEscalated.
func (o *Orchestrator) ExecuteStoryWorkflow(ctx context.Context, storyID, storyFilePath string) (*PullRequestResult, error) {
	return o.run(ctx, storyID, storyFilePath, nil)
}

// storyRun is the per-run scope: the mutable state plus lazily created
// agents.
type storyRun struct {
	o      *Orchestrator
	state  *StoryWorkflowState
	agents map[string]*agent.Agent
}

func (o *Orchestrator) run(ctx context.Context, storyID, storyFilePath string, pauseRequested func() bool) (result *PullRequestResult, err error) {
	if storyID == "" {
		return nil, fmt.Errorf("story id cannot be empty")
	}

	state := NewState(storyID, storyFilePath)
	found, loadErr := o.deps.Store.Load(storyID, state)
	if loadErr != nil {
		return nil, fmt.Errorf("failed to load checkpoint for story %s: %w", storyID, loadErr)
	}
	if found {
		o.logger.Info("Resuming story %s from step %s (%s)", storyID, state.CurrentStep, state.Status)
		if storyFilePath != "" {
			state.StoryFilePath = storyFilePath
		}
	} else {
		o.logger.Info("Starting story %s", storyID)
	}

	state.Status = StatusInProgress
	o.checkpoint(state)
	o.track(ctx, storyID, "in-progress", "workflow started")

	r := &storyRun{o: o, state: state, agents: make(map[string]*agent.Agent)}

	// Pooled agents and the worktree are always released, on success,
	// failure, and escalation paths alike. Paused runs keep their
	// worktree so resume can pick up where it left off.
	defer r.cleanup()

	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepLoadContext, r.stageLoadContext},
		{StepCreateWorktree, r.stageCreateWorktree},
		{StepImplement, r.stageImplement},
		{StepGenerateTests, r.stageGenerateTests},
		{StepRunTests, r.stageRunTests},
		{StepSelfReview, r.stageSelfReview},
		{StepIndependentReview, r.stageIndependentReview},
		{StepDecide, r.stageDecide},
		{StepCreatePR, r.stageCreatePR},
		{StepMonitorCI, r.stageMonitorCI},
	}

	for _, stage := range stages {
		if state.StageDone(stage.name) {
			o.logger.Debug("Story %s: skipping completed stage %s", storyID, stage.name)
			continue
		}

		state.CurrentStep = stage.name
		start := time.Now()
		stageErr := stage.fn(ctx)
		elapsed := time.Since(start)
		state.RecordStep(stage.name, start.UTC(), elapsed)
		if o.deps.Metrics != nil {
			o.deps.Metrics.ObserveStage(stage.name, elapsed)
		}

		if stageErr != nil {
			o.finishWithError(ctx, state, stage.name, stageErr)
			return nil, stageErr
		}

		o.checkpoint(state)

		// Pause is observed only at checkpoint boundaries; it never
		// preempts a stage mid-flight.
		if pauseRequested != nil && pauseRequested() {
			state.Status = StatusPaused
			o.checkpoint(state)
			o.logger.Info("Story %s paused after stage %s", storyID, stage.name)
			return nil, ErrPaused
		}
	}

	state.CurrentStep = StepCleanup
	state.Status = StatusCompleted
	o.checkpoint(state)
	o.track(ctx, storyID, "done", "workflow completed")
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveOutcome("completed")
	}

	// Archive rather than delete: the checkpoint stays on disk for
	// audit but no longer counts as a live run.
	if archiveErr := o.deps.Store.Archive(storyID); archiveErr != nil {
		o.logger.Error("Failed to archive checkpoint for story %s: %v", storyID, archiveErr)
	}

	var pi PRInfo
	if _, varErr := state.GetVariable(StepCreatePR, &pi); varErr != nil {
		o.logger.Warn("Story %s: could not read PR artifact: %v", storyID, varErr)
	}

	o.logger.Info("Story %s completed in %s", storyID, state.Performance.TotalDuration.Round(time.Second))
	return &PullRequestResult{
		StoryID:       storyID,
		PRNumber:      pi.Number,
		PRURL:         pi.URL,
		Merged:        true,
		TotalDuration: state.Performance.TotalDuration,
	}, nil
}

// finishWithError records the terminal status for a failed or escalated
// stage and writes the final checkpoint.
func (o *Orchestrator) finishWithError(ctx context.Context, state *StoryWorkflowState, step string, err error) {
	outcome := "failed"
	if errors.Is(err, ErrEscalated) {
		state.Status = StatusEscalated
		outcome = "escalated"
		o.track(ctx, state.StoryID, "escalated", err.Error())
	} else {
		state.Status = StatusFailed
		o.track(ctx, state.StoryID, "failed", err.Error())
	}
	o.checkpoint(state)
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveOutcome(outcome)
	}
	o.logger.Error("Story %s %s at stage %s: %v", state.StoryID, outcome, step, err)
}

// checkpoint persists state. Write failure degrades durability but
// never stops the run.
func (o *Orchestrator) checkpoint(state *StoryWorkflowState) {
	if err := o.deps.Store.Save(state.StoryID, state); err != nil {
		o.logger.Error("Checkpoint write failed for story %s: %v", state.StoryID, err)
	}
}

// track updates the sprint tracker. Advisory: failures are logged only.
func (o *Orchestrator) track(ctx context.Context, storyID, status, detail string) {
	if o.deps.Tracker == nil {
		return
	}
	if err := o.deps.Tracker.UpdateStatus(ctx, storyID, status, detail); err != nil {
		o.logger.Warn("Tracker update failed for story %s: %v", storyID, err)
	}
}

// cleanup releases the run's worktree and every pooled agent. Runs on
// all exit paths; paused runs keep their worktree for resume.
func (r *storyRun) cleanup() {
	if r.state.Status != StatusPaused && r.state.StageDone(StepCreateWorktree) {
		// Fresh context: the run context may already be canceled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := r.o.deps.Worktrees.Destroy(ctx, r.state.StoryID); err != nil {
			r.o.logger.Error("Failed to destroy worktree for story %s: %v", r.state.StoryID, err)
		}
	}
	r.o.deps.Pool.DestroyAll()
	r.agents = make(map[string]*agent.Agent)
}

// agentFor lazily creates the pooled agent for a role so resumed runs
// only create what their remaining stages need.
func (r *storyRun) agentFor(role string) (*agent.Agent, error) {
	if a, ok := r.agents[role]; ok {
		return a, nil
	}
	a, err := r.o.deps.Pool.CreateAgent(role)
	if err != nil {
		return nil, err
	}
	r.agents[role] = a
	return a, nil
}

// completeWithRetry invokes an agent's client under the retry policy
// and records the invocation in the activity log.
func (r *storyRun) completeWithRetry(ctx context.Context, a *agent.Agent, action, system, prompt string) (string, error) {
	cfg := r.o.deps.Config
	start := time.Now()

	resp, err := agent.RetryWithBackoff(ctx, action, cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay,
		func(ctx context.Context) (agent.CompletionResponse, error) {
			out, callErr := a.Client.Complete(ctx, agent.CompletionRequest{
				System:      system,
				Prompt:      prompt,
				MaxTokens:   cfg.Agents.MaxTokens,
				Temperature: 0.7,
			})
			if callErr != nil && r.o.deps.Metrics != nil {
				r.o.deps.Metrics.IncRetry(action)
			}
			return out, callErr
		})

	status := ActivityCompleted
	if err != nil {
		status = ActivityFailed
	}
	r.state.RecordActivity(AgentActivity{
		AgentID:   a.ID,
		AgentName: a.Name,
		Action:    action,
		Status:    status,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
	})

	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// --- pipeline stages ---

func (r *storyRun) stageLoadContext(ctx context.Context) error {
	if r.state.StoryFilePath == "" {
		return fmt.Errorf("no story file path for story %s", r.state.StoryID)
	}
	sc, err := r.o.deps.Context.Generate(ctx, r.state.StoryFilePath)
	if err != nil {
		return fmt.Errorf("context generation failed: %w", err)
	}
	return r.state.SetVariable(StepLoadContext, sc)
}

func (r *storyRun) stageCreateWorktree(ctx context.Context) error {
	wt, err := r.o.deps.Worktrees.Create(ctx, r.state.StoryID)
	if err != nil {
		return fmt.Errorf("worktree creation failed: %w", err)
	}
	return r.state.SetVariable(StepCreateWorktree, wt)
}

const implementSystem = `You are an implementation agent. Implement the story ` +
	`described in the brief. Output the complete implementation.`

func (r *storyRun) stageImplement(ctx context.Context) error {
	var sc ContextArtifact
	if ok, err := r.state.GetVariable(StepLoadContext, &sc); err != nil || !ok {
		return fmt.Errorf("implement stage requires a loaded context: %v", err)
	}

	a, err := r.agentFor(agent.RoleImplementer)
	if err != nil {
		return fmt.Errorf("failed to create implementer: %w", err)
	}

	content, err := r.completeWithRetry(ctx, a, "implement", implementSystem, sc.Render())
	if err != nil {
		return fmt.Errorf("implementation failed: %w", err)
	}

	return r.state.SetVariable(StepImplement, ImplementationResult{
		Content: content,
		Model:   r.o.deps.Config.Agents.ImplementerModel,
	})
}

const testWriterSystem = `You are a test-writing agent. Write tests that verify ` +
	`the implementation against the story requirements.`

func (r *storyRun) stageGenerateTests(ctx context.Context) error {
	var impl ImplementationResult
	if ok, err := r.state.GetVariable(StepImplement, &impl); err != nil || !ok {
		return fmt.Errorf("generate-tests stage requires an implementation: %v", err)
	}

	a, err := r.agentFor(agent.RoleTestWriter)
	if err != nil {
		return fmt.Errorf("failed to create test writer: %w", err)
	}

	content, err := r.completeWithRetry(ctx, a, "generate-tests", testWriterSystem, impl.Content)
	if err != nil {
		return fmt.Errorf("test generation failed: %w", err)
	}

	return r.state.SetVariable(StepGenerateTests, GeneratedTests{Content: content})
}

const fixSystem = `You are an implementation agent. Tests are failing. ` +
	`Fix the implementation so the suite passes.`

func (r *storyRun) stageRunTests(ctx context.Context) error {
	var wt WorktreeArtifact
	if ok, err := r.state.GetVariable(StepCreateWorktree, &wt); err != nil || !ok {
		return fmt.Errorf("run-tests stage requires a worktree: %v", err)
	}

	maxFixes := r.o.deps.Config.Workflow.MaxTestFixAttempts

	for attempt := 0; ; attempt++ {
		result, err := r.o.deps.Tests.Run(ctx, wt.Path)
		if err != nil {
			return fmt.Errorf("test run failed to execute: %w", err)
		}

		if result.Passed {
			result.FixAttempts = attempt
			if r.o.deps.Metrics != nil {
				r.o.deps.Metrics.ObserveTestFixAttempts(attempt)
			}
			return r.state.SetVariable(StepRunTests, result)
		}

		// Exhausting the fix budget is a tooling failure, not a
		// judgment call: fatal, no escalation.
		if attempt >= maxFixes {
			return fmt.Errorf("tests still failing after %d fix attempts (%d failures)",
				attempt, result.Failures)
		}

		r.o.logger.Info("Story %s: %d test failures, fix attempt %d/%d",
			r.state.StoryID, result.Failures, attempt+1, maxFixes)

		a, agErr := r.agentFor(agent.RoleImplementer)
		if agErr != nil {
			return fmt.Errorf("failed to create implementer for fix cycle: %w", agErr)
		}
		if _, fixErr := r.completeWithRetry(ctx, a, "fix-tests", fixSystem, result.Output); fixErr != nil {
			return fmt.Errorf("fix cycle failed: %w", fixErr)
		}
	}
}

const selfReviewSystem = `You are reviewing your own implementation. Respond with JSON only:
{"confidence": <0.0-1.0>, "summary": "<one paragraph>", "critical_issues": ["<issue>", ...]}`

func (r *storyRun) stageSelfReview(ctx context.Context) error {
	var impl ImplementationResult
	if ok, err := r.state.GetVariable(StepImplement, &impl); err != nil || !ok {
		return fmt.Errorf("self-review stage requires an implementation: %v", err)
	}

	a, err := r.agentFor(agent.RoleImplementer)
	if err != nil {
		return fmt.Errorf("failed to create implementer for self-review: %w", err)
	}

	content, err := r.completeWithRetry(ctx, a, "self-review", selfReviewSystem, impl.Content)
	if err != nil {
		return fmt.Errorf("self-review failed: %w", err)
	}

	var review SelfReview
	if decodeErr := decision.DecodeModelJSON(content, &review); decodeErr != nil {
		// Unparseable review output means zero confidence so the gate
		// still fires.
		r.o.logger.Warn("Story %s: self-review output unparseable: %v", r.state.StoryID, decodeErr)
		review = SelfReview{Confidence: 0, Summary: "self-review output was not parseable"}
	}
	if review.Confidence < 0 {
		review.Confidence = 0
	}
	if review.Confidence > 1 {
		review.Confidence = 1
	}

	return r.state.SetVariable(StepSelfReview, review)
}

const reviewerSystem = `You are an independent reviewer. Assess the implementation. Respond with JSON only:
{"decision": "pass" | "fail", "summary": "<one paragraph>"}`

func (r *storyRun) stageIndependentReview(ctx context.Context) error {
	var impl ImplementationResult
	if ok, err := r.state.GetVariable(StepImplement, &impl); err != nil || !ok {
		return fmt.Errorf("independent-review stage requires an implementation: %v", err)
	}

	a, err := r.agentFor(agent.RoleReviewer)
	if err != nil {
		return r.degradeIndependentReview(fmt.Errorf("failed to create reviewer: %w", err))
	}

	content, err := r.completeWithRetry(ctx, a, "independent-review", reviewerSystem, impl.Content)
	if err != nil {
		return r.degradeIndependentReview(fmt.Errorf("independent review failed: %w", err))
	}

	var review IndependentReview
	if decodeErr := decision.DecodeModelJSON(content, &review); decodeErr != nil {
		// An unreadable verdict must not slip past the gate.
		review = IndependentReview{Decision: ReviewFail, Summary: "review output was not parseable"}
	}
	if review.Decision != ReviewPass && review.Decision != ReviewFail {
		review = IndependentReview{Decision: ReviewFail,
			Summary: fmt.Sprintf("unrecognized review decision %q", review.Decision)}
	}

	return r.state.SetVariable(StepIndependentReview, review)
}

// degradeIndependentReview records a reviewer outage. With graceful
// degradation enabled the run proceeds on self-review alone and the
// outage lands in the activity log as failed-but-non-fatal.
func (r *storyRun) degradeIndependentReview(cause error) error {
	if !r.o.deps.Config.Workflow.EnableGracefulDegradation {
		return cause
	}

	r.o.logger.Warn("Story %s: proceeding without independent review: %v", r.state.StoryID, cause)
	r.state.RecordActivity(AgentActivity{
		AgentName: agent.RoleReviewer,
		Action:    "independent-review",
		Status:    ActivityFailed,
		StartedAt: time.Now().UTC(),
	})
	return r.state.SetVariable(StepIndependentReview, IndependentReview{
		Decision: ReviewSkipped,
		Summary:  fmt.Sprintf("independent reviewer unavailable: %v", cause),
		Degraded: true,
	})
}

func (r *storyRun) stageDecide(ctx context.Context) error {
	var self SelfReview
	if ok, err := r.state.GetVariable(StepSelfReview, &self); err != nil || !ok {
		return fmt.Errorf("decide stage requires a self-review: %v", err)
	}
	var indep IndependentReview
	if ok, err := r.state.GetVariable(StepIndependentReview, &indep); err != nil || !ok {
		return fmt.Errorf("decide stage requires an independent review: %v", err)
	}

	threshold := r.o.deps.Config.Workflow.MinConfidenceThreshold

	// The hard gate. Evaluated after every review, never bypassed.
	escalate := self.Confidence < threshold ||
		len(self.CriticalIssues) > 0 ||
		indep.Decision == ReviewFail

	if !escalate {
		return r.state.SetVariable(StepDecide, ReviewGateOutcome{Approved: true})
	}

	return r.escalateAndWait(ctx, self, indep)
}

// escalateAndWait files an escalation, blocks on its resolution, and
// continues only on an approving response.
func (r *storyRun) escalateAndWait(ctx context.Context, self SelfReview, indep IndependentReview) error {
	o := r.o
	storyID := r.state.StoryID

	question := fmt.Sprintf("Should story %s proceed to a pull request despite review concerns?", storyID)
	escCtx := map[string]any{
		"self_review_confidence":      self.Confidence,
		"self_review_summary":         self.Summary,
		"critical_issues":             self.CriticalIssues,
		"independent_review_decision": indep.Decision,
		"independent_review_summary":  indep.Summary,
	}

	reasoning := self.Summary
	if o.deps.Decisions != nil {
		if d, err := o.deps.Decisions.AttemptAutonomousDecision(ctx, question, escCtx); err == nil {
			reasoning = d.Reasoning
		} else {
			o.logger.Warn("Story %s: decision engine unavailable for escalation reasoning: %v", storyID, err)
		}
	}

	id, err := o.deps.Escalations.Add(escalation.Entry{
		WorkflowID:  storyID,
		Step:        StepDecide,
		Question:    question,
		AIReasoning: reasoning,
		Confidence:  self.Confidence,
		Context:     escCtx,
	})
	if err != nil {
		return fmt.Errorf("failed to file escalation: %w", err)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.IncEscalation(StepDecide)
	}

	r.state.Status = StatusEscalated
	o.checkpoint(r.state)
	o.track(ctx, storyID, "escalated", question)

	waitCtx := ctx
	if timeout := o.deps.Config.Workflow.EscalationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	response, err := o.deps.Escalations.WaitForResponse(waitCtx, id)
	if err != nil {
		return fmt.Errorf("%w: escalation %s unresolved: %v", ErrEscalated, id, err)
	}

	approved := isApproval(response)
	if setErr := r.state.SetVariable(StepDecide, ReviewGateOutcome{
		Escalated:    true,
		EscalationID: id,
		Response:     response,
		Approved:     approved,
	}); setErr != nil {
		return setErr
	}

	if !approved {
		return fmt.Errorf("%w: human response %q", ErrEscalated, response)
	}

	o.logger.Info("Story %s: escalation %s approved, continuing", storyID, id)
	r.state.Status = StatusInProgress
	o.track(ctx, storyID, "in-progress", "escalation approved")
	return nil
}

// isApproval interprets a human escalation response.
func isApproval(response string) bool {
	lower := strings.ToLower(strings.TrimSpace(response))
	for _, word := range []string{"approve", "approved", "yes", "proceed", "lgtm", "ok"} {
		if lower == word || strings.HasPrefix(lower, word+" ") || strings.HasPrefix(lower, word+":") {
			return true
		}
	}
	return false
}

func (r *storyRun) stageCreatePR(ctx context.Context) error {
	o := r.o

	var wt WorktreeArtifact
	if ok, err := r.state.GetVariable(StepCreateWorktree, &wt); err != nil || !ok {
		return fmt.Errorf("create-pr stage requires a worktree: %v", err)
	}
	var self SelfReview
	if _, err := r.state.GetVariable(StepSelfReview, &self); err != nil {
		return err
	}
	var indep IndependentReview
	if _, err := r.state.GetVariable(StepIndependentReview, &indep); err != nil {
		return err
	}

	opts := github.PRCreateOptions{
		Title: fmt.Sprintf("story: %s", r.state.StoryID),
		Body:  buildPRBody(r.state, self, indep),
		Head:  wt.Branch,
		Base:  o.deps.Config.Git.BaseBranch,
	}

	pr, err := agent.RetryWithBackoff(ctx, "create-pr",
		o.deps.Config.Retry.MaxAttempts, o.deps.Config.Retry.BaseDelay,
		func(ctx context.Context) (*github.PullRequest, error) {
			return o.deps.PRs.CreatePR(ctx, opts)
		})
	if err != nil {
		return fmt.Errorf("PR creation failed: %w", err)
	}

	o.track(ctx, r.state.StoryID, "review", fmt.Sprintf("PR #%d open", pr.Number))
	return r.state.SetVariable(StepCreatePR, PRInfo{
		Number:  pr.Number,
		URL:     pr.URL,
		State:   pr.State,
		Branch:  wt.Branch,
		HeadSHA: pr.HeadRefOid,
	})
}

func (r *storyRun) stageMonitorCI(ctx context.Context) error {
	var pi PRInfo
	if ok, err := r.state.GetVariable(StepCreatePR, &pi); err != nil || !ok {
		return fmt.Errorf("monitor-ci stage requires a created PR: %v", err)
	}

	pr := &github.PullRequest{Number: pi.Number, URL: pi.URL, HeadRefOid: pi.HeadSHA}
	if err := r.o.deps.PRs.MonitorCIAndMerge(ctx, pr, github.MonitorOptions{}); err != nil {
		return fmt.Errorf("CI monitoring failed for PR #%d: %w", pi.Number, err)
	}

	pi.State = "MERGED"
	return r.state.SetVariable(StepMonitorCI, pi)
}

// buildPRBody deterministically composes the PR description from the
// story id, both review summaries, and the total duration.
func buildPRBody(state *StoryWorkflowState, self SelfReview, indep IndependentReview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated implementation of story %s.\n\n", state.StoryID)

	fmt.Fprintf(&b, "## Self-review\n\n%s (confidence %.2f)\n\n", self.Summary, self.Confidence)

	b.WriteString("## Independent review\n\n")
	if indep.Degraded {
		b.WriteString("Skipped: independent reviewer unavailable; proceeded on self-review.\n\n")
	} else {
		fmt.Fprintf(&b, "%s (%s)\n\n", indep.Summary, indep.Decision)
	}

	fmt.Fprintf(&b, "Total duration: %s\n", humanDuration(state.Performance.TotalDuration))
	return b.String()
}

// humanDuration renders a duration in whole minutes, or seconds for
// sub-minute runs.
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	minutes := int(d.Round(time.Minute).Minutes())
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
