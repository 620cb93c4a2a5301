// Package workspace manages the isolated filesystem+branch sandbox each
// story works in. One worktree per story, exclusively owned by one run,
// always destroyed when the run ends.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"autodev/pkg/logx"
)

// Worktree is the sandbox handed to a workflow run.
type Worktree struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// Manager is the worktree contract the orchestrator depends on.
type Manager interface {
	Create(ctx context.Context, storyID string) (*Worktree, error)
	Destroy(ctx context.Context, storyID string) error
}

// GitRunner executes git commands in a directory. Extracted so tests
// can fake git.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecRunner runs real git via os/exec.
type ExecRunner struct{}

// Run implements GitRunner.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("git %s: %w (output: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// GitManager implements Manager with git worktrees.
type GitManager struct {
	git          GitRunner
	repoDir      string
	workDir      string
	branchPrefix string
	logger       *logx.Logger
}

// NewGitManager creates a manager that branches worktrees off repoDir
// into workDir.
func NewGitManager(git GitRunner, repoDir, workDir, branchPrefix string) *GitManager {
	return &GitManager{
		git:          git,
		repoDir:      repoDir,
		workDir:      workDir,
		branchPrefix: branchPrefix,
		logger:       logx.NewLogger("workspace"),
	}
}

// Create adds a worktree and branch for the story. The branch is named
// <prefix><storyID> and starts from the repo's current HEAD.
func (m *GitManager) Create(ctx context.Context, storyID string) (*Worktree, error) {
	if storyID == "" {
		return nil, fmt.Errorf("story id cannot be empty")
	}

	if err := os.MkdirAll(m.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", m.workDir, err)
	}

	branch := m.branchPrefix + storyID
	path := m.worktreePath(storyID)

	if _, err := m.git.Run(ctx, m.repoDir, "worktree", "add", "-b", branch, path, "HEAD"); err != nil {
		return nil, fmt.Errorf("failed to add worktree for story %s: %w", storyID, err)
	}

	m.logger.Info("Created worktree for story %s at %s (branch %s)", storyID, path, branch)
	return &Worktree{Path: path, Branch: branch}, nil
}

// Destroy removes the story's worktree, prunes stale registrations, and
// deletes the local branch. Destroying a story with no worktree is a
// no-op so cleanup paths can call it unconditionally.
func (m *GitManager) Destroy(ctx context.Context, storyID string) error {
	if storyID == "" {
		return fmt.Errorf("story id cannot be empty")
	}

	path := m.worktreePath(storyID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Prune anyway in case the directory vanished out from under git.
		_, _ = m.git.Run(ctx, m.repoDir, "worktree", "prune")
		return nil
	}

	if _, err := m.git.Run(ctx, m.repoDir, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("failed to remove worktree for story %s: %w", storyID, err)
	}
	if _, err := m.git.Run(ctx, m.repoDir, "worktree", "prune"); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}

	// Branch deletion is best-effort: the branch may already be gone
	// after a merge with branch deletion enabled.
	branch := m.branchPrefix + storyID
	if _, err := m.git.Run(ctx, m.repoDir, "branch", "-D", branch); err != nil {
		m.logger.Debug("Branch %s not deleted (may already be gone): %v", branch, err)
	}

	m.logger.Info("Destroyed worktree for story %s", storyID)
	return nil
}

func (m *GitManager) worktreePath(storyID string) string {
	safe := strings.ReplaceAll(storyID, "/", "-")
	return filepath.Join(m.workDir, safe)
}
