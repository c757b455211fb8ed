package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownEvent is returned by dispatch for events without a handler.
var ErrUnknownEvent = errors.New("unknown event")

type rawHandler func(ctx context.Context, p *Peer, data json.RawMessage) error

// Router maps inbound event names to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

// NewRouter creates an empty router.
func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds event to a handler taking a decoded Req.
func Register[Req any](r *Router, event string, h func(ctx context.Context, p *Peer, req Req) error) {
	if event == "" {
		panic("realtime router: empty event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = func(ctx context.Context, p *Peer, data json.RawMessage) error {
		var req Req
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("decode %s: %w", event, err)
			}
		}
		return h(ctx, p, req)
	}
}

func (r *Router) dispatch(ctx context.Context, p *Peer, msg WSMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[msg.Event]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%q: %w", msg.Event, ErrUnknownEvent)
	}
	return h(ctx, p, msg.Data)
}
