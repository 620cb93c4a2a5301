package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// CIStateSuccess means every workflow run for the commit passed.
	CIStateSuccess = "success"
	// CIStateFailure means at least one workflow run failed.
	CIStateFailure = "failure"
	// CIStatePending means runs are still queued or in progress.
	CIStatePending = "pending"
)

// WorkflowRun represents a GitHub Actions workflow run.
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, skipped
	URL        string `json:"html_url"`
}

type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// CIStatus is the aggregated state of all workflow runs for a commit.
type CIStatus struct {
	State      string
	TotalRuns  int
	Successful int
	Failed     int
	Pending    int
	FailedRuns []string
}

// GetWorkflowRunsForRef retrieves workflow runs for a commit SHA.
func (c *Client) GetWorkflowRunsForRef(ctx context.Context, ref string) ([]WorkflowRun, error) {
	endpoint := fmt.Sprintf("/repos/%s/actions/runs?head_sha=%s", c.RepoPath(), ref)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow runs for ref %s: %w", ref, err)
	}

	var response workflowRunsResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, fmt.Errorf("failed to parse workflow runs: %w", err)
	}
	return response.WorkflowRuns, nil
}

// GetCIStatus returns the aggregated workflow state for a commit. A
// commit with no workflow runs counts as success (no checks required).
func (c *Client) GetCIStatus(ctx context.Context, commitSHA string) (*CIStatus, error) {
	runs, err := c.GetWorkflowRunsForRef(ctx, commitSHA)
	if err != nil {
		return nil, err
	}

	status := &CIStatus{TotalRuns: len(runs)}
	if len(runs) == 0 {
		status.State = CIStateSuccess
		return status, nil
	}

	for i := range runs {
		run := &runs[i]
		switch run.Status {
		case "completed":
			switch run.Conclusion {
			case "success":
				status.Successful++
			case "failure", "timed_out", "startup_failure":
				status.Failed++
				status.FailedRuns = append(status.FailedRuns, run.Name)
			case "cancelled", "skipped":
				// Neither success nor failure.
			}
		case "queued", "in_progress":
			status.Pending++
		}
	}

	switch {
	case status.Pending > 0:
		status.State = CIStatePending
	case status.Failed > 0:
		status.State = CIStateFailure
	default:
		status.State = CIStateSuccess
	}
	return status, nil
}

// MonitorOptions configures CI polling.
type MonitorOptions struct {
	PollInterval time.Duration // default 30s
	Timeout      time.Duration // default 30m
}

// MonitorCIAndMerge polls the PR's CI status until it settles, then
// squash-merges on success. A CI failure or timeout returns an error
// with the failing run names so the caller can escalate or abort.
func (c *Client) MonitorCIAndMerge(ctx context.Context, pr *PullRequest, opts MonitorOptions) error {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	deadline := time.Now().Add(timeout)
	for {
		status, err := c.GetCIStatus(ctx, pr.HeadRefOid)
		if err != nil {
			return fmt.Errorf("failed to check CI status for PR #%d: %w", pr.Number, err)
		}

		switch status.State {
		case CIStateSuccess:
			c.logger.Info("CI passed for PR #%d (%d runs), merging", pr.Number, status.TotalRuns)
			return c.MergePR(ctx, pr.Number)
		case CIStateFailure:
			return fmt.Errorf("CI failed for PR #%d: %s", pr.Number, strings.Join(status.FailedRuns, ", "))
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for CI on PR #%d after %s", pr.Number, timeout)
		}

		c.logger.Debug("CI pending for PR #%d (%d of %d runs outstanding)",
			pr.Number, status.Pending, status.TotalRuns)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
