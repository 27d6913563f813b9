package orchestrator

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Workflows keeps recently used workflows in memory for the HTTP surface.
// A workflow expires ttl after it was last created or fetched, whatever its
// state; the least recently used are evicted past size.
type Workflows struct {
	invoker Invoker
	base    Options
	lru     *expirable.LRU[string, *Workflow]
}

// NewWorkflows creates a bounded workflow set. base supplies the registry,
// recorder and listener shared by every workflow.
func NewWorkflows(invoker Invoker, base Options, size int, ttl time.Duration) *Workflows {
	if size <= 0 {
		size = 1024
	}
	return &Workflows{
		invoker: invoker,
		base:    base,
		lru:     expirable.NewLRU[string, *Workflow](size, nil, ttl),
	}
}

// Create starts a new Idle workflow.
func (ws *Workflows) Create(projectID, userID, function string) *Workflow {
	opts := ws.base
	opts.ProjectID = projectID
	opts.UserID = userID
	opts.Function = function
	w := New(ws.invoker, opts)
	ws.lru.Add(w.ID(), w)
	return w
}

// Get returns a workflow by id and restarts its ttl.
func (ws *Workflows) Get(id string) (*Workflow, bool) {
	w, ok := ws.lru.Get(id)
	if ok {
		ws.lru.Add(id, w)
	}
	return w, ok
}

// Len is the number of live workflows.
func (ws *Workflows) Len() int { return ws.lru.Len() }
