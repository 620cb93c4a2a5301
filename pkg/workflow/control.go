package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"autodev/pkg/locks"
	"autodev/pkg/logx"
)

// Control-surface errors.
var (
	ErrAlreadyRunning = errors.New("workflow already running for project")
	ErrNotRunning     = errors.New("no running workflow for project")
	ErrNotPaused      = errors.New("workflow is not paused")
	ErrNoWorkflow     = errors.New("no workflow found for project")
)

// Task is the observable handle for one launched run. Completion,
// errors, and captured panics are read through it rather than lost to a
// detached goroutine.
type Task struct {
	StoryID string

	done  chan struct{}
	pause atomic.Bool

	mu     sync.Mutex
	result *PullRequestResult
	err    error
}

// Done is closed when the run reaches a terminal state or pauses.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the terminal error, if any. Valid after Done is closed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Result returns the run result. Valid after Done is closed.
func (t *Task) Result() *PullRequestResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *Task) finish(result *PullRequestResult, err error) {
	t.mu.Lock()
	t.result = result
	t.err = err
	t.mu.Unlock()
}

// StatusReport is the point-in-time view returned by Status.
type StatusReport struct {
	StoryID       string          `json:"story_id"`
	Status        string          `json:"status"`
	CurrentStep   string          `json:"current_step"`
	StagesDone    int             `json:"stages_done"`
	StagesTotal   int             `json:"stages_total"`
	AgentActivity []AgentActivity `json:"agent_activity,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Controller serializes start/pause/resume/status per project. One
// story maps to one project key: at most one active run per story id.
type Controller struct {
	orch   *Orchestrator
	locks  *locks.Registry
	logger *logx.Logger

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewController creates a controller over the orchestrator.
func NewController(orch *Orchestrator) *Controller {
	return &Controller{
		orch:   orch,
		locks:  locks.NewRegistry(),
		logger: logx.NewLogger("control"),
		tasks:  make(map[string]*Task),
	}
}

// Start launches the story workflow as a tracked background task. A
// second Start while the first is active is rejected immediately.
func (c *Controller) Start(ctx context.Context, storyID, storyFilePath string) (*Task, error) {
	return c.launch(ctx, storyID, storyFilePath)
}

// Pause requests suspension of the running workflow. The run stops at
// the next checkpoint boundary; in-flight stages are never preempted.
func (c *Controller) Pause(storyID string) error {
	c.mu.Lock()
	task, ok := c.tasks[storyID]
	c.mu.Unlock()

	if !ok || !c.locks.IsHeld(storyID) {
		return fmt.Errorf("%w: %s", ErrNotRunning, storyID)
	}

	task.pause.Store(true)
	c.logger.Info("Pause requested for story %s", storyID)
	return nil
}

// Resume relaunches a paused workflow from its checkpoint. Resuming a
// workflow that is not paused is rejected.
func (c *Controller) Resume(ctx context.Context, storyID string) (*Task, error) {
	state := &StoryWorkflowState{}
	found, err := c.orch.deps.Store.Load(storyID, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for story %s: %w", storyID, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoWorkflow, storyID)
	}
	if state.Status != StatusPaused {
		return nil, fmt.Errorf("%w: story %s is %s", ErrNotPaused, storyID, state.Status)
	}

	return c.launch(ctx, storyID, state.StoryFilePath)
}

// launch acquires the project lease and runs the workflow in a tracked
// goroutine. Panics are captured into the task, never swallowed.
func (c *Controller) launch(ctx context.Context, storyID, storyFilePath string) (*Task, error) {
	lease, err := c.locks.TryAcquire(storyID)
	if err != nil {
		if errors.Is(err, locks.ErrHeld) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, storyID)
		}
		return nil, err
	}

	task := &Task{StoryID: storyID, done: make(chan struct{})}

	c.mu.Lock()
	c.tasks[storyID] = task
	c.mu.Unlock()

	go func() {
		defer close(task.done)
		defer lease.Release()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Story %s workflow panicked: %v", storyID, r)
				task.finish(nil, fmt.Errorf("workflow panicked: %v", r))
			}
		}()

		result, runErr := c.orch.run(ctx, storyID, storyFilePath, task.pause.Load)
		task.finish(result, runErr)
	}()

	return task, nil
}

// Status reports the current state of a story's workflow, whether
// running or not. Checkpoint reads are safe alongside the single
// writer because writes are atomic.
func (c *Controller) Status(storyID string) (*StatusReport, error) {
	state := &StoryWorkflowState{}
	found, err := c.orch.deps.Store.Load(storyID, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for story %s: %w", storyID, err)
	}
	if !found {
		// Completed runs archive their checkpoint; fall back to the
		// finished task handle if we still hold one.
		c.mu.Lock()
		task, hasTask := c.tasks[storyID]
		c.mu.Unlock()
		if hasTask {
			select {
			case <-task.Done():
				report := &StatusReport{StoryID: storyID, Status: StatusCompleted, CurrentStep: StepCleanup}
				if taskErr := task.Err(); taskErr != nil {
					report.Status = StatusFailed
					report.Error = taskErr.Error()
				}
				return report, nil
			default:
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNoWorkflow, storyID)
	}

	done, total := state.Progress()
	report := &StatusReport{
		StoryID:       storyID,
		Status:        state.Status,
		CurrentStep:   state.CurrentStep,
		StagesDone:    done,
		StagesTotal:   total,
		AgentActivity: state.AgentActivity,
	}

	c.mu.Lock()
	task, hasTask := c.tasks[storyID]
	c.mu.Unlock()
	if hasTask {
		select {
		case <-task.Done():
			if taskErr := task.Err(); taskErr != nil {
				report.Error = taskErr.Error()
			}
		default:
		}
	}

	return report, nil
}
