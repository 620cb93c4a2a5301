// Package config provides configuration loading and validation for the
// workflow engine.
//
// Configuration is loaded once from a YAML file, defaults are applied
// before unmarshaling, and the result is validated before use. Invalid
// configs are rejected at load time so the orchestrator never runs with
// a half-formed setup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied before a config file is unmarshaled.
const (
	DefaultMinConfidenceThreshold = 0.85
	DefaultMaxTestFixAttempts     = 3
	DefaultRetryMaxAttempts       = 3
	DefaultRetryBaseDelay         = 500 * time.Millisecond
	DefaultTokenBudget            = 32000
	DefaultMaxTokens              = 8192
)

// Config is the root configuration for one engine process.
type Config struct {
	// StateDir holds checkpoint files, one per story id.
	StateDir string `yaml:"state_dir"`
	// EscalationDir holds escalation records, one file per id.
	EscalationDir string `yaml:"escalation_dir"`
	// TrackerPath is the SQLite database file for sprint status.
	TrackerPath string `yaml:"tracker_path"`

	Workflow WorkflowConfig `yaml:"workflow"`
	Agents   AgentsConfig   `yaml:"agents"`
	Retry    RetryConfig    `yaml:"retry"`
	Git      GitConfig      `yaml:"git"`
	Context  ContextConfig  `yaml:"context"`
}

// WorkflowConfig controls pipeline behavior and the review gate.
type WorkflowConfig struct {
	// MinConfidenceThreshold is the hard review gate. Self-review
	// confidence below this value always escalates.
	MinConfidenceThreshold float64 `yaml:"min_confidence_threshold"`
	// MaxTestFixAttempts bounds the test-fix loop. Exhaustion is a
	// fatal tooling failure, not an escalation.
	MaxTestFixAttempts int `yaml:"max_test_fix_attempts"`
	// EnableGracefulDegradation lets a run proceed on self-review alone
	// when the independent reviewer cannot be created or invoked.
	EnableGracefulDegradation bool `yaml:"enable_graceful_degradation"`
	// EscalationTimeout bounds the blocking wait for a human response.
	// Zero means wait indefinitely.
	EscalationTimeout time.Duration `yaml:"escalation_timeout"`
	// TestCommand is the command run inside the worktree to execute tests.
	TestCommand []string `yaml:"test_command"`
}

// AgentsConfig selects models and token limits for the pooled agents.
type AgentsConfig struct {
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	ImplementerModel string `yaml:"implementer_model"`
	ReviewerModel    string `yaml:"reviewer_model"`
	MaxTokens        int    `yaml:"max_tokens"`
}

// RetryConfig controls exponential backoff for externally-fallible calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// GitConfig locates the repository and names worktree branches.
type GitConfig struct {
	// RepoDir is the checked-out repository the worktrees branch from.
	RepoDir string `yaml:"repo_dir"`
	// WorkDir is where story worktrees are created.
	WorkDir string `yaml:"work_dir"`
	// BaseBranch is the PR target branch.
	BaseBranch string `yaml:"base_branch"`
	// BranchPrefix prefixes story branches, e.g. "story/".
	BranchPrefix string `yaml:"branch_prefix"`
	// GitHubOwner and GitHubRepo identify the repository for PR
	// automation.
	GitHubOwner string `yaml:"github_owner"`
	GitHubRepo  string `yaml:"github_repo"`
}

// ContextConfig controls task-brief assembly.
type ContextConfig struct {
	// ArchitectureFile is an optional document excerpted into every brief.
	ArchitectureFile string `yaml:"architecture_file"`
	// CodeDirs are scanned for existing-code excerpts.
	CodeDirs []string `yaml:"code_dirs"`
	// TokenBudget caps the assembled brief size.
	TokenBudget int `yaml:"token_budget"`
}

// Default returns a config with all defaults applied and no paths set.
func Default() Config {
	return Config{
		Workflow: WorkflowConfig{
			MinConfidenceThreshold:    DefaultMinConfidenceThreshold,
			MaxTestFixAttempts:        DefaultMaxTestFixAttempts,
			EnableGracefulDegradation: true,
			TestCommand:               []string{"go", "test", "./..."},
		},
		Agents: AgentsConfig{
			ImplementerModel: "claude-sonnet-4-5",
			ReviewerModel:    "gpt-5",
			MaxTokens:        DefaultMaxTokens,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
		},
		Git: GitConfig{
			BaseBranch:   "main",
			BranchPrefix: "story/",
		},
		Context: ContextConfig{
			TokenBudget: DefaultTokenBudget,
		},
	}
}

// Load reads, unmarshals, and validates a YAML config file. Defaults are
// applied first so an empty or partial file yields a usable config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks value ranges. Paths are validated lazily by the
// components that use them.
func (c *Config) Validate() error {
	if c.Workflow.MinConfidenceThreshold < 0 || c.Workflow.MinConfidenceThreshold > 1 {
		return fmt.Errorf("workflow.min_confidence_threshold must be in [0,1], got %v", c.Workflow.MinConfidenceThreshold)
	}
	if c.Workflow.MaxTestFixAttempts < 0 {
		return fmt.Errorf("workflow.max_test_fix_attempts must be >= 0, got %d", c.Workflow.MaxTestFixAttempts)
	}
	if c.Workflow.EscalationTimeout < 0 {
		return fmt.Errorf("workflow.escalation_timeout must be >= 0, got %v", c.Workflow.EscalationTimeout)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0, got %v", c.Retry.BaseDelay)
	}
	if c.Context.TokenBudget < 1 {
		return fmt.Errorf("context.token_budget must be >= 1, got %d", c.Context.TokenBudget)
	}
	return nil
}
