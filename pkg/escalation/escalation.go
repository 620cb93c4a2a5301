// Package escalation provides the append-only queue of pending human
// decisions that blocks workflow progress until resolved.
//
// Every escalation is persisted as its own JSON file so external
// responders can inspect pending entries across restarts. Records are
// never deleted: resolved escalations remain on disk as an audit trail.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autodev/pkg/logx"
)

// Status values for an escalation record.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
)

// Sentinel errors for queue operations.
var (
	ErrNotFound        = fmt.Errorf("escalation not found")
	ErrAlreadyResolved = fmt.Errorf("escalation already resolved")
	ErrEmptyResponse   = fmt.Errorf("response cannot be empty")
)

// Escalation is a recorded request for human judgment. Once resolved it
// is immutable.
type Escalation struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	Step           string         `json:"step"`
	Question       string         `json:"question"`
	AIReasoning    string         `json:"ai_reasoning"`
	Confidence     float64        `json:"confidence"`
	Context        map[string]any `json:"context,omitempty"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	Response       string         `json:"response,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	ResolutionTime time.Duration  `json:"resolution_time,omitempty"`
}

// Entry carries the caller-supplied fields of a new escalation.
type Entry struct {
	WorkflowID  string
	Step        string
	Question    string
	AIReasoning string
	Confidence  float64
	Context     map[string]any
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	WorkflowID string
	Status     string
}

// Queue is the escalation queue. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	dir     string
	items   map[string]*Escalation
	order   []string // insertion order for List
	waiters map[string][]chan string
	logger  *logx.Logger
}

// NewQueue creates a queue rooted at dir and loads any existing records.
func NewQueue(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create escalation directory %s: %w", dir, err)
	}

	q := &Queue{
		dir:     dir,
		items:   make(map[string]*Escalation),
		waiters: make(map[string][]chan string),
		logger:  logx.NewLogger("escalation"),
	}

	if err := q.loadExisting(); err != nil {
		return nil, err
	}
	return q, nil
}

// Add files a new escalation and returns its id.
func (q *Queue) Add(entry Entry) (string, error) {
	if entry.WorkflowID == "" {
		return "", fmt.Errorf("workflow id cannot be empty")
	}
	if strings.TrimSpace(entry.Question) == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	esc := &Escalation{
		ID:          uuid.New().String(),
		WorkflowID:  entry.WorkflowID,
		Step:        entry.Step,
		Question:    entry.Question,
		AIReasoning: entry.AIReasoning,
		Confidence:  entry.Confidence,
		Context:     entry.Context,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.persist(esc); err != nil {
		return "", err
	}
	q.items[esc.ID] = esc
	q.order = append(q.order, esc.ID)

	q.logger.Info("Escalation filed for workflow %s at step %s (confidence %.2f): %s",
		esc.WorkflowID, esc.Step, esc.Confidence, esc.Question)
	return esc.ID, nil
}

// Respond resolves a pending escalation exactly once. Responding to an
// unknown or already-resolved id fails; empty responses are rejected.
func (q *Queue) Respond(id, response string) (*Escalation, error) {
	if strings.TrimSpace(response) == "" {
		return nil, ErrEmptyResponse
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	esc, ok := q.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if esc.Status == StatusResolved {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}

	now := time.Now().UTC()
	esc.Status = StatusResolved
	esc.Response = response
	esc.ResolvedAt = &now
	esc.ResolutionTime = now.Sub(esc.CreatedAt)

	if err := q.persist(esc); err != nil {
		return nil, err
	}

	// Wake everyone blocked on this id.
	for _, ch := range q.waiters[id] {
		ch <- response
		close(ch)
	}
	delete(q.waiters, id)

	q.logger.Info("Escalation %s resolved after %s", id, esc.ResolutionTime.Round(time.Second))
	snapshot := *esc
	return &snapshot, nil
}

// GetByID returns a copy of the escalation with the given id.
func (q *Queue) GetByID(id string) (*Escalation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	esc, ok := q.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snapshot := *esc
	return &snapshot, nil
}

// List returns copies of all escalations matching the filter, in
// insertion order.
func (q *Queue) List(filter Filter) []*Escalation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Escalation
	for _, id := range q.order {
		esc := q.items[id]
		if filter.WorkflowID != "" && esc.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && esc.Status != filter.Status {
			continue
		}
		snapshot := *esc
		out = append(out, &snapshot)
	}
	return out
}

// WaitForResponse blocks until the escalation is resolved or the context
// ends. Callers needing a bounded wait pass a deadline context. The
// record on disk is polled as well, so a response written by another
// process also wakes the waiter.
func (q *Queue) WaitForResponse(ctx context.Context, id string) (string, error) {
	q.mu.Lock()
	esc, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if esc.Status == StatusResolved {
		response := esc.Response
		q.mu.Unlock()
		return response, nil
	}

	ch := make(chan string, 1)
	q.waiters[id] = append(q.waiters[id], ch)
	q.mu.Unlock()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case response := <-ch:
			return response, nil
		case <-ctx.Done():
			q.removeWaiter(id, ch)
			return "", fmt.Errorf("waiting for escalation %s: %w", id, ctx.Err())
		case <-ticker.C:
			if response, resolved := q.reloadFromDisk(id); resolved {
				q.removeWaiter(id, ch)
				return response, nil
			}
		}
	}
}

// reloadFromDisk re-reads one record and adopts an externally written
// resolution.
func (q *Queue) reloadFromDisk(id string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(q.dir, id+".json"))
	if err != nil {
		return "", false
	}
	var esc Escalation
	if err := json.Unmarshal(data, &esc); err != nil || esc.Status != StatusResolved {
		return "", false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if current, ok := q.items[id]; ok && current.Status != StatusResolved {
		*current = esc
	}
	return esc.Response, true
}

func (q *Queue) removeWaiter(id string, ch chan string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	waiters := q.waiters[id]
	for i, w := range waiters {
		if w == ch {
			q.waiters[id] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

// persist writes the record atomically; called with q.mu held.
func (q *Queue) persist(esc *Escalation) error {
	data, err := json.MarshalIndent(esc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal escalation %s: %w", esc.ID, err)
	}

	path := filepath.Join(q.dir, esc.ID+".json")
	tmp, err := os.CreateTemp(q.dir, ".escalation-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// loadExisting reads all records from disk at startup, oldest first.
func (q *Queue) loadExisting() error {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return fmt.Errorf("failed to read escalation directory: %w", err)
	}

	var loaded []*Escalation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(q.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read escalation file %s: %w", entry.Name(), err)
		}
		var esc Escalation
		if err := json.Unmarshal(data, &esc); err != nil {
			q.logger.Warn("Skipping malformed escalation file %s: %v", entry.Name(), err)
			continue
		}
		loaded = append(loaded, &esc)
	}

	// Rebuild insertion order from creation timestamps.
	for i := 0; i < len(loaded); i++ {
		for j := i + 1; j < len(loaded); j++ {
			if loaded[j].CreatedAt.Before(loaded[i].CreatedAt) {
				loaded[i], loaded[j] = loaded[j], loaded[i]
			}
		}
	}
	for _, esc := range loaded {
		q.items[esc.ID] = esc
		q.order = append(q.order, esc.ID)
	}
	return nil
}
