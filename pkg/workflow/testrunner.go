package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TestRunner executes the story's test suite inside a worktree.
type TestRunner interface {
	Run(ctx context.Context, dir string) (*TestRunResult, error)
}

// CommandRunner runs a configured test command via os/exec. A non-zero
// exit is a failing test run, not an error; errors are reserved for the
// command being unrunnable.
type CommandRunner struct {
	command []string
}

// NewCommandRunner creates a runner for the given command and args.
func NewCommandRunner(command []string) (*CommandRunner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("test command cannot be empty")
	}
	return &CommandRunner{command: command}, nil
}

// Run implements TestRunner.
func (r *CommandRunner) Run(ctx context.Context, dir string) (*TestRunResult, error) {
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()

	result := &TestRunResult{
		Output:   string(output),
		Coverage: ExtractCoverage(string(output)),
	}

	if err == nil {
		result.Passed = true
		return result, nil
	}

	if _, isExit := err.(*exec.ExitError); !isExit {
		return nil, fmt.Errorf("test command %q could not run: %w", strings.Join(r.command, " "), err)
	}

	result.Failures = countFailures(string(output))
	return result, nil
}

// countFailures counts failed tests in go-test style output. A failing
// run with no recognizable markers still counts as one failure.
func countFailures(output string) int {
	count := strings.Count(output, "--- FAIL")
	if count == 0 {
		count = 1
	}
	return count
}
