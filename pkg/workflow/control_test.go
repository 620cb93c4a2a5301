package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestStartTwiceRejected(t *testing.T) {
	f := newFixture(t, happyClients(t), nil, nil)
	c := NewController(f.orch)

	block := make(chan struct{})
	f.tests.block = block

	task, err := c.Start(context.Background(), "story-042", "story-042.md")
	require.NoError(t, err)

	// The project lease is held from the moment Start returns.
	_, err = c.Start(context.Background(), "story-042", "story-042.md")
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	<-task.Done()
	require.NoError(t, task.Err())
	assert.True(t, task.Result().Merged)

	// A different story is independent.
	f2 := newFixture(t, happyClients(t), nil, nil)
	c2 := NewController(f2.orch)
	task2, err := c2.Start(context.Background(), "story-043", "story-043.md")
	require.NoError(t, err)
	<-task2.Done()
	require.NoError(t, task2.Err())
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t, happyClients(t), nil, nil)
	c := NewController(f.orch)

	block := make(chan struct{})
	f.tests.block = block

	task, err := c.Start(context.Background(), "story-042", "story-042.md")
	require.NoError(t, err)

	// Pause while run-tests is in flight; it takes effect at the next
	// checkpoint boundary.
	waitFor(t, func() bool { return f.tests.callCount() == 1 }, "test stage to start")
	require.NoError(t, c.Pause("story-042"))
	close(block)

	<-task.Done()
	require.ErrorIs(t, task.Err(), ErrPaused)

	report, err := c.Status("story-042")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, report.Status)

	// A paused run keeps its worktree for resume.
	_, destroys := f.worktrees.counts()
	assert.Equal(t, 0, destroys)

	f.tests.block = nil
	resumed, err := c.Resume(context.Background(), "story-042")
	require.NoError(t, err)
	<-resumed.Done()
	require.NoError(t, resumed.Err())
	assert.True(t, resumed.Result().Merged)

	// Completed stages did not re-run after resume.
	assert.Equal(t, 1, f.tests.callCount())
	creates, destroys := f.worktrees.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, destroys)
}

func TestPauseNotRunning(t *testing.T) {
	f := newFixture(t, happyClients(t), nil, nil)
	c := NewController(f.orch)

	require.ErrorIs(t, c.Pause("story-042"), ErrNotRunning)
}

func TestResumeRequiresPausedState(t *testing.T) {
	f := newFixture(t, happyClients(t), nil, nil)
	c := NewController(f.orch)

	// Unknown story.
	_, err := c.Resume(context.Background(), "story-042")
	require.ErrorIs(t, err, ErrNoWorkflow)

	// Failed, not paused.
	state := NewState("story-042", "story-042.md")
	state.Status = StatusFailed
	require.NoError(t, f.store.Save("story-042", state))

	_, err = c.Resume(context.Background(), "story-042")
	require.ErrorIs(t, err, ErrNotPaused)
}

func TestStatusWhileRunning(t *testing.T) {
	f := newFixture(t, happyClients(t), nil, nil)
	c := NewController(f.orch)

	block := make(chan struct{})
	f.tests.block = block

	task, err := c.Start(context.Background(), "story-042", "story-042.md")
	require.NoError(t, err)

	waitFor(t, func() bool { return f.tests.callCount() == 1 }, "test stage to start")

	report, err := c.Status("story-042")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, report.Status)
	assert.Equal(t, StepRunTests, report.CurrentStep)
	assert.Equal(t, 11, report.StagesTotal)
	assert.GreaterOrEqual(t, report.StagesDone, 4)
	assert.NotEmpty(t, report.AgentActivity)

	close(block)
	<-task.Done()
	require.NoError(t, task.Err())

	// After completion the checkpoint is archived; status comes from
	// the finished task handle.
	report, err = c.Status("story-042")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, report.Status)
}

func TestStatusUnknownStory(t *testing.T) {
	f := newFixture(t, happyClients(t), nil, nil)
	c := NewController(f.orch)

	_, err := c.Status("never-started")
	require.ErrorIs(t, err, ErrNoWorkflow)
}

type panickingTests struct{}

func (panickingTests) Run(_ context.Context, _ string) (*TestRunResult, error) {
	panic("test runner exploded")
}

func TestPanicCapturedInTask(t *testing.T) {
	f := newFixture(t, happyClients(t), nil, nil)
	f.orch.deps.Tests = panickingTests{}
	c := NewController(f.orch)

	task, err := c.Start(context.Background(), "story-042", "story-042.md")
	require.NoError(t, err)

	<-task.Done()
	require.Error(t, task.Err())
	assert.Contains(t, task.Err().Error(), "panicked")

	// The lease is released even after a panic.
	_, err = c.Start(context.Background(), "story-042", "story-042.md")
	require.NoError(t, err)
}
