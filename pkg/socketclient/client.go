// Package socketclient keeps one realtime connection to the server alive, rejoins
// the caller's rooms after every reconnect and retries with exponential backoff.
package socketclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
)

var (
	// ErrGaveUp is returned by Run once MaxAttempts reconnects in a row have failed.
	ErrGaveUp = errors.New("socketclient: gave up reconnecting")
	// ErrNotConnected is returned by Send while no connection is up.
	ErrNotConnected = errors.New("socketclient: not connected")
)

// Frame is the wire envelope shared with the server.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is one established transport connection.
type Conn interface {
	Send(ctx context.Context, f Frame) error
	Receive(ctx context.Context) (Frame, error)
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Handlers receive server events. Any of them may be nil.
type Handlers struct {
	OnConnect     func(connID string)
	OnDisconnect  func(err error)
	OnChatMessage func(room string, payload json.RawMessage)
	OnViewerCount func(room string, count int)
}

// Options tunes reconnection.
type Options struct {
	BaseDelay   time.Duration
	MaxAttempts int
	Logger      *zap.Logger
}

// Client owns a single connection and the set of rooms the caller wants to be in.
type Client struct {
	dialer   Dialer
	handlers Handlers
	opts     Options
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	// roomMu orders room changes and their frames against the rejoin on connect.
	roomMu sync.Mutex

	mu    sync.Mutex
	rooms map[string]struct{}
	conn  Conn

	connected atomic.Bool
}

// New creates a client. Nothing is dialed until Run.
func New(dialer Dialer, handlers Handlers, opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		dialer:   dialer,
		handlers: handlers,
		opts:     opts,
		logger:   logger,
		sleep:    sleepCtx,
		rooms:    make(map[string]struct{}),
	}
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// Rooms returns the joined rooms in sorted order.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomList()
}

// Join records room and, when connected, asks the server to join it.
func (c *Client) Join(ctx context.Context, room string) error {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	c.mu.Lock()
	if _, ok := c.rooms[room]; ok {
		c.mu.Unlock()
		return nil
	}
	c.rooms[room] = struct{}{}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return send(ctx, conn, "join-room", room)
}

// Leave forgets room and, when connected, asks the server to leave it.
func (c *Client) Leave(ctx context.Context, room string) error {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	c.mu.Lock()
	if _, ok := c.rooms[room]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.rooms, room)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return send(ctx, conn, "leave-room", room)
}

// Send emits an arbitrary event on the live connection.
func (c *Client) Send(ctx context.Context, event string, data interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return send(ctx, conn, event, data)
}

// Run connects and keeps reconnecting until ctx ends or the attempt budget is spent.
// A successful connection resets the budget.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		conn, err := c.dialer.Dial(ctx)
		if err == nil {
			attempt = 0
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= c.opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempt, err)
		}
		attempt++
		delay := c.opts.BaseDelay * time.Duration(1<<attempt)
		c.logger.Warn("connection lost, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// serve installs conn, rejoins every room once and pumps events until the connection fails.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	c.roomMu.Lock()
	c.mu.Lock()
	c.conn = conn
	rooms := c.roomList()
	c.mu.Unlock()
	c.connected.Store(true)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.connected.Store(false)
		_ = conn.Close()
	}()

	var err error
	for _, room := range rooms {
		if err = send(ctx, conn, "join-room", room); err != nil {
			break
		}
	}
	c.roomMu.Unlock()
	for err == nil {
		var f Frame
		if f, err = conn.Receive(ctx); err == nil {
			c.dispatch(f)
		}
	}
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(err)
	}
	return err
}

func (c *Client) dispatch(f Frame) {
	switch {
	case f.Event == "connected":
		var body struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(f.Data, &body)
		c.logger.Debug("connected", zap.String("conn_id", body.ID))
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect(body.ID)
		}
	case strings.HasPrefix(f.Event, "chat-message-"):
		if c.handlers.OnChatMessage != nil {
			c.handlers.OnChatMessage(strings.TrimPrefix(f.Event, "chat-message-"), f.Data)
		}
	case strings.HasPrefix(f.Event, "viewer-count-"):
		var n int
		if err := json.Unmarshal(f.Data, &n); err != nil {
			c.logger.Warn("bad viewer count", zap.String("event", f.Event), zap.Error(err))
			return
		}
		if c.handlers.OnViewerCount != nil {
			c.handlers.OnViewerCount(strings.TrimPrefix(f.Event, "viewer-count-"), n)
		}
	default:
		c.logger.Debug("ignored event", zap.String("event", f.Event))
	}
}

// roomList must be called with c.mu held.
func (c *Client) roomList() []string {
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func send(ctx context.Context, conn Conn, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return conn.Send(ctx, Frame{Event: event, Data: raw})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
