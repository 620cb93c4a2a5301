package github

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PullRequest represents a GitHub pull request. Field names match gh
// CLI --json output.
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	State       string `json:"state"` // OPEN, CLOSED, MERGED
	HeadRefName string `json:"headRefName"`
	HeadRefOid  string `json:"headRefOid"`
	BaseRefName string `json:"baseRefName"`
	MergedAt    string `json:"mergedAt"`
}

// IsMerged returns true if the PR has been merged.
func (pr *PullRequest) IsMerged() bool {
	return pr.MergedAt != ""
}

const prJSONFields = "number,url,title,state,headRefName,headRefOid,baseRefName,mergedAt"

// PRCreateOptions contains options for creating a pull request.
type PRCreateOptions struct {
	Title string
	Body  string
	Head  string // source branch
	Base  string // target branch (default: main)
}

// CreatePR creates a pull request and returns its full details. If a
// PR already exists for the head branch, that PR is returned instead.
func (c *Client) CreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	if opts.Head == "" {
		return nil, fmt.Errorf("head branch is required")
	}
	if opts.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	base := opts.Base
	if base == "" {
		base = "main"
	}

	if existing, err := c.prForBranch(ctx, opts.Head); err == nil && existing != nil {
		c.logger.Debug("Found existing PR #%d for branch %s", existing.Number, opts.Head)
		return existing, nil
	}

	args := []string{
		"pr", "create",
		"--repo", c.RepoPath(),
		"--title", opts.Title,
		"--head", opts.Head,
		"--base", base,
	}
	if opts.Body != "" {
		args = append(args, "--body", opts.Body)
	}

	// PR creation can be slow on busy repos.
	client := c.WithTimeout(2 * time.Minute)
	output, err := client.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PR: %w", err)
	}

	prURL := strings.TrimSpace(string(output))
	if prURL == "" {
		return nil, fmt.Errorf("PR created but no URL returned")
	}

	return c.GetPR(ctx, prURL)
}

// GetPR retrieves a pull request by number, URL, or branch name.
func (c *Client) GetPR(ctx context.Context, ref string) (*PullRequest, error) {
	args := []string{
		"pr", "view", ref,
		"--repo", c.RepoPath(),
		"--json", prJSONFields,
	}

	var pr PullRequest
	if err := c.runJSON(ctx, &pr, args...); err != nil {
		return nil, fmt.Errorf("failed to get PR %s: %w", ref, err)
	}
	return &pr, nil
}

// prForBranch returns the open PR whose head is branch, or nil.
func (c *Client) prForBranch(ctx context.Context, branch string) (*PullRequest, error) {
	args := []string{
		"pr", "list",
		"--repo", c.RepoPath(),
		"--head", branch,
		"--json", prJSONFields,
	}

	var prs []PullRequest
	if err := c.runJSON(ctx, &prs, args...); err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &prs[0], nil
}

// MergePR squash-merges a pull request and deletes its remote branch.
func (c *Client) MergePR(ctx context.Context, prNumber int) error {
	args := []string{
		"pr", "merge", fmt.Sprintf("%d", prNumber),
		"--repo", c.RepoPath(),
		"--squash",
		"--delete-branch",
	}

	client := c.WithTimeout(2 * time.Minute)
	if _, err := client.run(ctx, args...); err != nil {
		return fmt.Errorf("failed to merge PR #%d: %w", prNumber, err)
	}
	return nil
}

// DeleteBranch removes a remote branch. Missing branches are not an
// error so cleanup can call this unconditionally.
func (c *Client) DeleteBranch(ctx context.Context, branch string) error {
	endpoint := fmt.Sprintf("/repos/%s/git/refs/heads/%s", c.RepoPath(), branch)
	if _, err := c.run(ctx, "api", "-X", "DELETE", endpoint); err != nil {
		if strings.Contains(err.Error(), "Reference does not exist") ||
			strings.Contains(err.Error(), "Not Found") {
			return nil
		}
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	return nil
}
