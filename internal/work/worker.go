package work

import (
	"context"
	"sort"
	"sync"

	"github.com/Iron-Ham/workchain/internal/errors"
)

// Worker is a task body. Execute is called once per attempt; ctx is cancelled
// when the owning chain is cancelled or replaced, and a well-behaved body
// returns Cancelled() soon after.
type Worker interface {
	Execute(ctx context.Context, input Data) Outcome
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context, input Data) Outcome

// Execute calls f(ctx, input).
func (f WorkerFunc) Execute(ctx context.Context, input Data) Outcome {
	return f(ctx, input)
}

// Factory creates a fresh Worker for one TaskRun.
type Factory func() Worker

// Catalog maps descriptor type IDs to worker factories.
// It is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register associates typeID with a factory, replacing any previous one.
func (c *Catalog) Register(typeID string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[typeID] = f
}

// RegisterFunc registers a stateless function body under typeID.
func (c *Catalog) RegisterFunc(typeID string, fn WorkerFunc) {
	c.Register(typeID, func() Worker { return fn })
}

// New instantiates the worker registered for typeID.
func (c *Catalog) New(typeID string) (Worker, error) {
	c.mu.RLock()
	f, ok := c.factories[typeID]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("worker", typeID).WithCause(errors.ErrUnknownWorker)
	}
	return f(), nil
}

// Has reports whether typeID is registered.
func (c *Catalog) Has(typeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[typeID]
	return ok
}

// Types returns the registered type IDs in sorted order.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.factories))
	for t := range c.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
