package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/joshu-sajeev/hookqueue/internal/models"
)

// Handler executes one job. Returning an error fails the attempt; wrap it
// with Permanent when retrying cannot help.
type Handler interface {
	Handle(ctx context.Context, job *models.Job) error
}

type HandlerFunc func(ctx context.Context, job *models.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *models.Job) error {
	return f(ctx, job)
}

// Registry maps job types to handlers. It is filled at startup and read by
// every worker afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register binds jobType to h. Registering the same type twice panics.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		panic(fmt.Sprintf("worker: handler for %q already registered", jobType))
	}
	r.handlers[jobType] = h
}

func (r *Registry) RegisterFunc(jobType string, fn HandlerFunc) {
	r.Register(jobType, fn)
}

func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
