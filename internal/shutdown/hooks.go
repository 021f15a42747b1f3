// Package shutdown runs cleanup hooks when the orchestrator exits.
package shutdown

import (
	"context"
	"errors"
	"sync"

	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

type hook struct {
	id   uint64
	name string
	stop func(context.Context) error
}

// Hooks is an ordered set of cleanup functions.
// Hooks run in reverse registration order, at most once.
type Hooks struct {
	mu     sync.Mutex
	logger ports.Logger
	nextID uint64
	hooks  []hook
	ran    bool
}

// New creates an empty hook set.
func New(logger ports.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// Add registers stop under name and returns a function that removes it again.
// Adding to a set that already ran is a no-op.
func (h *Hooks) Add(name string, stop func(context.Context) error) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ran || stop == nil {
		return func() {}
	}

	h.nextID++
	id := h.nextID
	h.hooks = append(h.hooks, hook{id: id, name: name, stop: stop})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, hk := range h.hooks {
			if hk.id == id {
				h.hooks = append(h.hooks[:i], h.hooks[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run executes every registered hook, newest first, and joins their errors.
func (h *Hooks) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return nil
	}
	h.ran = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	var runErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		h.logger.Debug("shutdown hook starting", "hook", hk.name)
		if err := hk.stop(ctx); err != nil {
			err = zerr.With(zerr.Wrap(err, "shutdown hook failed"), "hook", hk.name)
			h.logger.Error(err)
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}
