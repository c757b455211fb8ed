package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often empty rooms are garbage collected.
const DefaultSweepInterval = 60 * time.Second

var (
	// ErrStopped is returned once the coordinator loop has exited.
	ErrStopped = errors.New("presence coordinator stopped")
	// ErrInvalidRoom is returned for an empty room key or connection id.
	ErrInvalidRoom = errors.New("invalid room")
)

// Groups is the transport-level room grouping the coordinator drives.
type Groups interface {
	// AddToGroup reports false when the connection is no longer live.
	AddToGroup(connID, room string) bool
	RemoveFromGroup(connID, room string)
	EmitToGroup(room, event string, payload interface{})
	EmitTo(connID, event string, payload interface{})
}

// ViewerObserver is called after a room's viewer count changed (e.g. for peak tracking).
// It runs on the coordinator loop and must not block.
type ViewerObserver func(room string, count int)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.sweepEvery = d
		}
	}
}

// WithViewerObserver registers fn to receive viewer count changes.
func WithViewerObserver(fn ViewerObserver) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, fn) }
}

// ViewerCountEvent returns the server->client event name carrying a room's viewer count.
func ViewerCountEvent(room string) string { return "viewer-count-" + room }

type connState struct {
	room     string
	identity string
}

// Coordinator owns the Registry and the per-connection bookkeeping. All state is
// mutated on the loop started by Run; public methods enqueue work and wait for it.
type Coordinator struct {
	registry   *Registry
	conns      map[string]*connState
	groups     Groups
	logger     *zap.Logger
	observers  []ViewerObserver
	sweepEvery time.Duration

	events chan func()
	done   chan struct{}
}

// NewCoordinator creates a coordinator bound to the transport groups.
func NewCoordinator(groups Groups, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		registry:   NewRegistry(),
		conns:      make(map[string]*connState),
		groups:     groups,
		logger:     logger,
		sweepEvery: DefaultSweepInterval,
		events:     make(chan func(), 256),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes events and the periodic sweep until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	c.logger.Info("presence coordinator started", zap.Duration("sweep_interval", c.sweepEvery))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("presence coordinator stopped")
			return
		case fn := <-c.events:
			c.safely(fn)
		case <-ticker.C:
			if n := c.registry.Sweep(); n > 0 {
				c.logger.Info("swept empty rooms", zap.Int("count", n))
			}
		}
	}
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("presence event panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// submit runs fn on the loop and waits for it to finish.
func (c *Coordinator) submit(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.events <- wrapped:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join places connID in the room named by rawRoomKey, leaving any previous room first.
func (c *Coordinator) Join(ctx context.Context, connID, rawRoomKey, identity string) error {
	room := NormalizeRoomKey(rawRoomKey)
	if connID == "" || room == "" {
		return fmt.Errorf("join: %w", ErrInvalidRoom)
	}
	return c.submit(ctx, func() { c.join(connID, room, identity) })
}

// Leave removes connID from the room named by rawRoomKey. Leaving a room the
// connection is not in is a no-op.
func (c *Coordinator) Leave(ctx context.Context, connID, rawRoomKey string) error {
	room := NormalizeRoomKey(rawRoomKey)
	return c.submit(ctx, func() {
		st, ok := c.conns[connID]
		if !ok || st.room == "" || st.room != room {
			c.logger.Debug("leave ignored", zap.String("conn_id", connID), zap.String("room", room))
			return
		}
		c.leave(connID, st)
	})
}

// Disconnect leaves the connection's current room and forgets the connection.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) error {
	return c.submit(ctx, func() {
		st, ok := c.conns[connID]
		if !ok {
			return
		}
		if st.room != "" {
			c.leave(connID, st)
		}
		delete(c.conns, connID)
	})
}

// ViewerCount returns the live viewer count of the room named by rawRoomKey.
func (c *Coordinator) ViewerCount(ctx context.Context, rawRoomKey string) (int, error) {
	room := NormalizeRoomKey(rawRoomKey)
	var n int
	err := c.submit(ctx, func() { n = c.registry.ViewerCount(room) })
	return n, err
}

// Rooms returns room -> viewer count for every active room.
func (c *Coordinator) Rooms(ctx context.Context) (map[string]int, error) {
	var out map[string]int
	err := c.submit(ctx, func() { out = c.registry.Snapshot() })
	return out, err
}

// RoomOf returns the room connID is currently joined to ("" when unjoined).
func (c *Coordinator) RoomOf(ctx context.Context, connID string) (string, error) {
	var room string
	err := c.submit(ctx, func() {
		if st, ok := c.conns[connID]; ok {
			room = st.room
		}
	})
	return room, err
}

func (c *Coordinator) join(connID, room, identity string) {
	st, ok := c.conns[connID]
	if !ok {
		st = &connState{identity: identity}
		c.conns[connID] = st
	}
	if st.room == room {
		c.groups.EmitTo(connID, ViewerCountEvent(room), c.registry.ViewerCount(room))
		return
	}
	if st.room != "" {
		c.leave(connID, st)
	}

	if !c.groups.AddToGroup(connID, room) {
		// the transport already dropped it; no Disconnect will follow
		delete(c.conns, connID)
		c.logger.Debug("join for closed connection ignored", zap.String("conn_id", connID), zap.String("room", room))
		return
	}
	grew := c.registry.Add(room, connID, st.identity)
	st.room = room

	count := c.registry.ViewerCount(room)
	c.logger.Debug("connection joined room",
		zap.String("conn_id", connID),
		zap.String("room", room),
		zap.Int("viewers", count),
	)
	if grew {
		c.broadcastCount(room, count)
		return
	}
	c.groups.EmitTo(connID, ViewerCountEvent(room), count)
}

func (c *Coordinator) leave(connID string, st *connState) {
	room := st.room
	c.groups.RemoveFromGroup(connID, room)
	res := c.registry.Remove(room, connID)
	st.room = ""

	c.logger.Debug("connection left room",
		zap.String("conn_id", connID),
		zap.String("room", room),
		zap.Bool("room_deleted", res.RoomDeleted),
	)
	if res.RoomDeleted {
		c.notify(room, 0)
		return
	}
	if res.IdentityGone {
		c.broadcastCount(room, res.RemainingCount)
	}
}

func (c *Coordinator) broadcastCount(room string, count int) {
	c.groups.EmitToGroup(room, ViewerCountEvent(room), count)
	c.notify(room, count)
	c.logger.Info("viewer count", zap.String("room", room), zap.Int("viewers", count))
}

func (c *Coordinator) notify(room string, count int) {
	for _, fn := range c.observers {
		fn(room, count)
	}
}
