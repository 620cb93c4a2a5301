package contextgen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGenerateRequirementsOnly(t *testing.T) {
	dir := t.TempDir()
	story := writeFile(t, dir, "story-042.md", "# Add rate limiting\n\nLimit requests per client.")

	gen, err := NewFileGenerator(Options{TokenBudget: 1000})
	require.NoError(t, err)

	sc, err := gen.Generate(context.Background(), story)
	require.NoError(t, err)
	assert.Equal(t, "story-042", sc.StoryID)
	assert.Contains(t, sc.Requirements, "rate limiting")
	assert.Positive(t, sc.TokensUsed)
	assert.LessOrEqual(t, sc.TokensUsed, sc.TokenBudget)
	assert.Empty(t, sc.Architecture)
	assert.Empty(t, sc.ExistingCode)
}

func TestGenerateWithArchitectureAndCode(t *testing.T) {
	dir := t.TempDir()
	story := writeFile(t, dir, "story-001.md", "Implement the widget endpoint.")
	arch := writeFile(t, dir, "architecture.md", "Services talk over HTTP. Storage is SQLite.")

	codeDir := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(codeDir, 0755))
	writeFile(t, codeDir, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, codeDir, "handler.go", "package main\n\nfunc handle() {}\n")

	gen, err := NewFileGenerator(Options{
		ArchitectureFile: arch,
		CodeDirs:         []string{codeDir},
		TokenBudget:      5000,
	})
	require.NoError(t, err)

	sc, err := gen.Generate(context.Background(), story)
	require.NoError(t, err)
	assert.Contains(t, sc.Architecture, "SQLite")
	assert.Len(t, sc.ExistingCode, 2)
	assert.LessOrEqual(t, sc.TokensUsed, sc.TokenBudget)
}

func TestGenerateRespectsTokenBudget(t *testing.T) {
	dir := t.TempDir()
	story := writeFile(t, dir, "story-002.md", "Short requirement.")

	codeDir := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(codeDir, 0755))
	writeFile(t, codeDir, "big.go", strings.Repeat("func bigFunction() {}\n", 2000))

	// Budget fits the requirements but not the big file.
	gen, err := NewFileGenerator(Options{CodeDirs: []string{codeDir}, TokenBudget: 100})
	require.NoError(t, err)

	sc, err := gen.Generate(context.Background(), story)
	require.NoError(t, err)
	assert.Empty(t, sc.ExistingCode)
	assert.LessOrEqual(t, sc.TokensUsed, 100)
}

func TestGenerateMissingStoryFile(t *testing.T) {
	gen, err := NewFileGenerator(Options{TokenBudget: 100})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

func TestGenerateEmptyStoryFile(t *testing.T) {
	dir := t.TempDir()
	story := writeFile(t, dir, "empty.md", "   \n")

	gen, err := NewFileGenerator(Options{TokenBudget: 100})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), story)
	assert.Error(t, err)
}

func TestNewFileGeneratorValidatesBudget(t *testing.T) {
	_, err := NewFileGenerator(Options{TokenBudget: 0})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	sc := &StoryContext{
		StoryID:      "story-007",
		Requirements: "Do the thing.",
		Architecture: "Layered.",
		ExistingCode: []FileExcerpt{{Path: "a.go", Content: "package a"}},
	}

	out := sc.Render()
	assert.Contains(t, out, "# Story: story-007")
	assert.Contains(t, out, "Do the thing.")
	assert.Contains(t, out, "## Architecture")
	assert.Contains(t, out, "### a.go")
}

func TestTokenCounter(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	count := tc.Count("hello world, this is a sentence about token counting")
	assert.Positive(t, count)
	assert.Less(t, count, 30)

	// Truncation brings long text under the limit.
	long := strings.Repeat("some words to count ", 500)
	truncated := tc.TruncateToTokens(long, 50)
	assert.Less(t, len(truncated), len(long))

	// Short text passes through untouched.
	assert.Equal(t, "short", tc.TruncateToTokens("short", 50))
}
