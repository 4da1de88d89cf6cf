package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoHandler is returned by [Router.Dispatch] when no handler is
// registered for a result's action.
var ErrNoHandler = errors.New("command: no handler for action")

// Handler performs the side effect of one action.
type Handler func(ctx context.Context, r Result) error

// Router maps actions to the components that own them. Blocked results are
// never routed. All methods are safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[Action]Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[Action]Handler)}
}

// Handle registers h for action a, replacing any previous handler. Handlers
// cannot be registered for the blocked action.
func (rt *Router) Handle(a Action, h Handler) {
	if a == ActionBlocked || h == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.handlers[a] = h
}

// Dispatch runs the handler for r. A blocked result is a no-op that returns
// nil.
func (rt *Router) Dispatch(ctx context.Context, r Result) error {
	if r.IsBlocked() {
		return nil
	}
	rt.mu.RLock()
	h, ok := rt.handlers[r.Action]
	rt.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %q", ErrNoHandler, r.Action)
	}
	if err := h(ctx, r); err != nil {
		return fmt.Errorf("command: %s: %w", r.Action, err)
	}
	return nil
}
