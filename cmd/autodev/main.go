// Command autodev drives a story through the autonomous workflow
// pipeline: context assembly, worktree creation, implementation, test
// generation and fixing, review, escalation, PR creation, CI monitoring
// and merge.
//
// Usage:
//
//	autodev [-config config.yaml] run <story-file>
//	autodev [-config config.yaml] resume <story-id>
//	autodev [-config config.yaml] status <story-id>
//	autodev [-config config.yaml] escalations
//	autodev [-config config.yaml] respond <escalation-id> <response...>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
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
	"autodev/pkg/tracker"
	"autodev/pkg/workflow"
	"autodev/pkg/workspace"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("AUTODEV_CONFIG")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "run":
		if len(args) != 2 {
			usage()
		}
		runStory(cfg, args[1], false)
	case "resume":
		if len(args) != 2 {
			usage()
		}
		runStory(cfg, args[1], true)
	case "status":
		if len(args) != 2 {
			usage()
		}
		showStatus(cfg, args[1])
	case "escalations":
		listEscalations(cfg)
	case "respond":
		if len(args) < 3 {
			usage()
		}
		respond(cfg, args[1], strings.Join(args[2:], " "))
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: autodev [-config config.yaml] <run <story-file> | resume <story-id> | status <story-id> | escalations | respond <id> <response...>>")
	os.Exit(2)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		cfg.StateDir = ".autodev/state"
		cfg.EscalationDir = ".autodev/escalations"
		cfg.TrackerPath = ".autodev/sprint.db"
		return &cfg, nil
	}
	return config.Load(path)
}

// buildEngine wires the full dependency graph the way the config
// describes it.
func buildEngine(cfg *config.Config) (*workflow.Controller, *escalation.Queue, error) {
	store, err := statestore.NewStore(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	queue, err := escalation.NewQueue(cfg.EscalationDir)
	if err != nil {
		return nil, nil, err
	}

	clients := make(map[string]agent.LLMClient)
	if cfg.Agents.AnthropicAPIKey != "" {
		implementer := agent.NewClaudeClient(cfg.Agents.AnthropicAPIKey, cfg.Agents.ImplementerModel)
		clients[agent.RoleImplementer] = implementer
		clients[agent.RoleTestWriter] = implementer
	}
	if cfg.Agents.OpenAIAPIKey != "" {
		clients[agent.RoleReviewer] = agent.NewOpenAIClient(cfg.Agents.OpenAIAPIKey, cfg.Agents.ReviewerModel)
	}

	var engine *decision.Engine
	if impl, ok := clients[agent.RoleImplementer]; ok {
		engine = decision.NewEngine(impl)
	}

	gen, err := contextgen.NewFileGenerator(contextgen.Options{
		ArchitectureFile: cfg.Context.ArchitectureFile,
		CodeDirs:         cfg.Context.CodeDirs,
		TokenBudget:      cfg.Context.TokenBudget,
	})
	if err != nil {
		return nil, nil, err
	}

	tests, err := workflow.NewCommandRunner(cfg.Workflow.TestCommand)
	if err != nil {
		return nil, nil, err
	}

	deps := workflow.Deps{
		Config:      cfg,
		Store:       store,
		Escalations: queue,
		Decisions:   engine,
		Pool:        agent.NewPool(clients),
		Worktrees:   workspace.NewGitManager(workspace.ExecRunner{}, cfg.Git.RepoDir, cfg.Git.WorkDir, cfg.Git.BranchPrefix),
		Context:     gen,
		PRs:         github.NewClient(github.ExecRunner{}, cfg.Git.GitHubOwner, cfg.Git.GitHubRepo),
		Metrics:     metrics.NewRecorder(),
		Tests:       tests,
	}

	if cfg.TrackerPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.TrackerPath), 0755); err != nil {
			return nil, nil, err
		}
		tr, err := tracker.Open(cfg.TrackerPath)
		if err != nil {
			return nil, nil, err
		}
		deps.Tracker = tr
	}

	orch, err := workflow.NewOrchestrator(deps)
	if err != nil {
		return nil, nil, err
	}
	return workflow.NewController(orch), queue, nil
}

// runStory starts (or resumes) a workflow and waits for it to finish.
// SIGINT requests a pause at the next checkpoint boundary.
func runStory(cfg *config.Config, target string, resume bool) {
	logger := logx.NewLogger("autodev")

	ctl, _, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	ctx := context.Background()

	var task *workflow.Task
	var storyID string
	if resume {
		storyID = target
		task, err = ctl.Resume(ctx, storyID)
	} else {
		storyID = strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
		task, err = ctl.Start(ctx, storyID, target)
	}
	if err != nil {
		log.Fatalf("Failed to start workflow: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal %v, pausing at next checkpoint", sig)
			if pauseErr := ctl.Pause(storyID); pauseErr != nil {
				logger.Warn("Pause failed: %v", pauseErr)
			}
		case <-task.Done():
			finish(logger, storyID, task)
			return
		}
	}
}

func finish(logger *logx.Logger, storyID string, task *workflow.Task) {
	err := task.Err()
	switch {
	case err == nil:
		result := task.Result()
		logger.Info("Story %s merged: %s (%s)", storyID, result.PRURL, result.TotalDuration.Round(time.Second))
	case errors.Is(err, workflow.ErrPaused):
		logger.Info("Story %s paused; resume with: autodev resume %s", storyID, storyID)
	case errors.Is(err, workflow.ErrEscalated):
		logger.Warn("Story %s escalated to human review: %v", storyID, err)
		logger.Info("List pending questions with: autodev escalations")
		os.Exit(3)
	default:
		logger.Error("Story %s failed: %v", storyID, err)
		os.Exit(1)
	}
}

func showStatus(cfg *config.Config, storyID string) {
	store, err := statestore.NewStore(cfg.StateDir)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}

	state := &workflow.StoryWorkflowState{}
	found, err := store.Load(storyID, state)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}
	if !found {
		fmt.Printf("No live workflow for story %s\n", storyID)
		return
	}

	done, total := state.Progress()
	fmt.Printf("Story:    %s\n", state.StoryID)
	fmt.Printf("Status:   %s\n", state.Status)
	fmt.Printf("Step:     %s (%d/%d stages complete)\n", state.CurrentStep, done, total)
	fmt.Printf("Duration: %s\n", state.Performance.TotalDuration.Round(time.Second))
	if len(state.AgentActivity) > 0 {
		fmt.Println("Agents:")
		for _, a := range state.AgentActivity {
			fmt.Printf("  %-12s %-20s %-10s %s\n", a.AgentName, a.Action, a.Status, a.Duration.Round(time.Millisecond))
		}
	}
}

func listEscalations(cfg *config.Config) {
	queue, err := escalation.NewQueue(cfg.EscalationDir)
	if err != nil {
		log.Fatalf("Failed to open escalation queue: %v", err)
	}

	pending := queue.List(escalation.Filter{Status: escalation.StatusPending})
	if len(pending) == 0 {
		fmt.Println("No pending escalations")
		return
	}
	for _, esc := range pending {
		fmt.Printf("%s\n", esc.ID)
		fmt.Printf("  story:      %s (step %s, confidence %.2f)\n", esc.WorkflowID, esc.Step, esc.Confidence)
		fmt.Printf("  question:   %s\n", esc.Question)
		fmt.Printf("  reasoning:  %s\n", esc.AIReasoning)
		fmt.Printf("  created:    %s\n", esc.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func respond(cfg *config.Config, id, response string) {
	queue, err := escalation.NewQueue(cfg.EscalationDir)
	if err != nil {
		log.Fatalf("Failed to open escalation queue: %v", err)
	}

	esc, err := queue.Respond(id, response)
	if err != nil {
		log.Fatalf("Failed to respond: %v", err)
	}
	fmt.Printf("Escalation %s resolved after %s\n", esc.ID, esc.ResolutionTime.Round(time.Second))
}
