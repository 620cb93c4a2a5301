package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"autodev/pkg/logx"
)

// Recognized agent roles. CreateAgent fails fast on anything else.
const (
	RoleImplementer = "implementer"
	RoleTestWriter  = "test-writer"
	RoleReviewer    = "reviewer"
)

// Agent is a named, ephemeral worker handle scoped to one workflow run.
type Agent struct {
	ID        string
	Name      string
	Client    LLMClient
	CreatedAt time.Time
}

// Pool creates and destroys agents for one project. Agents are never
// shared across concurrent runs.
type Pool struct {
	mu      sync.Mutex
	clients map[string]LLMClient
	active  map[string]*Agent
	logger  *logx.Logger
}

// NewPool creates a pool backed by the given role -> client mapping.
func NewPool(clients map[string]LLMClient) *Pool {
	return &Pool{
		clients: clients,
		active:  make(map[string]*Agent),
		logger:  logx.NewLogger("agent-pool"),
	}
}

// CreateAgent creates a worker handle for a recognized role.
func (p *Pool) CreateAgent(name string) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	client, ok := p.clients[name]
	if !ok {
		return nil, fmt.Errorf("unrecognized agent name %q", name)
	}
	if client == nil {
		return nil, fmt.Errorf("no client configured for agent %q", name)
	}

	a := &Agent{
		ID:        uuid.New().String(),
		Name:      name,
		Client:    client,
		CreatedAt: time.Now().UTC(),
	}
	p.active[a.ID] = a

	p.logger.Debug("Created agent %s (%s)", a.Name, a.ID)
	return a, nil
}

// DestroyAgent releases a worker handle. Destroying an unknown or
// already-destroyed handle is an error.
func (p *Pool) DestroyAgent(a *Agent) error {
	if a == nil {
		return fmt.Errorf("agent cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.active[a.ID]; !ok {
		return fmt.Errorf("agent %s (%s) is not active", a.Name, a.ID)
	}
	delete(p.active, a.ID)

	p.logger.Debug("Destroyed agent %s (%s)", a.Name, a.ID)
	return nil
}

// DestroyAll releases every active agent. Used by run cleanup so both
// success and failure paths leave the pool empty.
func (p *Pool) DestroyAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, a := range p.active {
		p.logger.Debug("Destroying agent %s (%s) during cleanup", a.Name, id)
		delete(p.active, id)
	}
}

// ActiveCount returns the number of live agent handles.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
