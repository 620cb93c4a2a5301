// Package contextgen assembles the task brief consumed by the
// implementer agent: story requirements, architecture excerpts, and
// existing code, all capped by a token budget.
package contextgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"autodev/pkg/logx"
)

// FileExcerpt is a slice of existing code included in the brief.
type FileExcerpt struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
}

// StoryContext is the assembled brief for one story.
type StoryContext struct {
	StoryID      string        `json:"story_id"`
	Requirements string        `json:"requirements"`
	Architecture string        `json:"architecture,omitempty"`
	ExistingCode []FileExcerpt `json:"existing_code,omitempty"`
	TokenBudget  int           `json:"token_budget"`
	TokensUsed   int           `json:"tokens_used"`
}

// Generator assembles a StoryContext from a story file.
type Generator interface {
	Generate(ctx context.Context, storyFilePath string) (*StoryContext, error)
}

// Options configures a FileGenerator.
type Options struct {
	// ArchitectureFile is excerpted into every brief when set.
	ArchitectureFile string
	// CodeDirs are scanned (non-recursively) for source files to excerpt.
	CodeDirs []string
	// TokenBudget caps the total brief size. Requirements are always
	// included even if they alone exceed the budget.
	TokenBudget int
}

// FileGenerator reads the story and surrounding material from disk.
type FileGenerator struct {
	opts    Options
	counter *TokenCounter
	logger  *logx.Logger
}

// NewFileGenerator creates a generator with the given options.
func NewFileGenerator(opts Options) (*FileGenerator, error) {
	if opts.TokenBudget < 1 {
		return nil, fmt.Errorf("token budget must be >= 1, got %d", opts.TokenBudget)
	}
	counter, err := NewTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}
	return &FileGenerator{
		opts:    opts,
		counter: counter,
		logger:  logx.NewLogger("contextgen"),
	}, nil
}

// Generate implements Generator.
func (g *FileGenerator) Generate(_ context.Context, storyFilePath string) (*StoryContext, error) {
	requirements, err := os.ReadFile(storyFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file %s: %w", storyFilePath, err)
	}
	if strings.TrimSpace(string(requirements)) == "" {
		return nil, fmt.Errorf("story file %s is empty", storyFilePath)
	}

	storyID := strings.TrimSuffix(filepath.Base(storyFilePath), filepath.Ext(storyFilePath))

	sc := &StoryContext{
		StoryID:      storyID,
		Requirements: string(requirements),
		TokenBudget:  g.opts.TokenBudget,
	}
	sc.TokensUsed = g.counter.Count(sc.Requirements)

	remaining := sc.TokenBudget - sc.TokensUsed
	if remaining <= 0 {
		g.logger.Warn("Story %s requirements alone use %d of %d budget tokens",
			storyID, sc.TokensUsed, sc.TokenBudget)
		return sc, nil
	}

	// Architecture excerpt gets the first claim on the remaining budget.
	if g.opts.ArchitectureFile != "" {
		arch, err := os.ReadFile(g.opts.ArchitectureFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read architecture file %s: %w", g.opts.ArchitectureFile, err)
		}
		excerpt := g.counter.TruncateToTokens(string(arch), remaining)
		sc.Architecture = excerpt
		used := g.counter.Count(excerpt)
		sc.TokensUsed += used
		remaining -= used
	}

	// Fill the rest with code excerpts, smallest files first so more of
	// the codebase fits.
	if remaining > 0 && len(g.opts.CodeDirs) > 0 {
		excerpts, used := g.collectCode(remaining)
		sc.ExistingCode = excerpts
		sc.TokensUsed += used
	}

	g.logger.Debug("Assembled context for story %s: %d/%d tokens, %d code excerpts",
		storyID, sc.TokensUsed, sc.TokenBudget, len(sc.ExistingCode))
	return sc, nil
}

func (g *FileGenerator) collectCode(budget int) ([]FileExcerpt, int) {
	type candidate struct {
		path string
		size int64
	}

	var candidates []candidate
	for _, dir := range g.opts.CodeDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			g.logger.Warn("Skipping unreadable code dir %s: %v", dir, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{
				path: filepath.Join(dir, entry.Name()),
				size: info.Size(),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].size < candidates[j].size })

	var excerpts []FileExcerpt
	used := 0
	for _, c := range candidates {
		if used >= budget {
			break
		}
		content, err := os.ReadFile(c.path)
		if err != nil {
			continue
		}
		tokens := g.counter.Count(string(content))
		if used+tokens > budget {
			continue
		}
		excerpts = append(excerpts, FileExcerpt{
			Path:    c.path,
			Content: string(content),
			Tokens:  tokens,
		})
		used += tokens
	}
	return excerpts, used
}

// Render produces the prompt text handed to the implementer.
func (sc *StoryContext) Render() string {
	var b strings.Builder
	b.WriteString("# Story: ")
	b.WriteString(sc.StoryID)
	b.WriteString("\n\n## Requirements\n\n")
	b.WriteString(sc.Requirements)

	if sc.Architecture != "" {
		b.WriteString("\n\n## Architecture\n\n")
		b.WriteString(sc.Architecture)
	}

	if len(sc.ExistingCode) > 0 {
		b.WriteString("\n\n## Existing Code\n")
		for _, ex := range sc.ExistingCode {
			b.WriteString("\n### ")
			b.WriteString(ex.Path)
			b.WriteString("\n\n```\n")
			b.WriteString(ex.Content)
			b.WriteString("\n```\n")
		}
	}
	return b.String()
}
