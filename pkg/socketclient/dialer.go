package socketclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsPath    = "/socket/ws"
	pollPath  = "/socket/poll"
	writeWait = 10 * time.Second
	// server pings every 30s
	readWait = 60 * time.Second
)

// WebSocketDialer connects to the streaming endpoint.
type WebSocketDialer struct {
	URL    string // ws:// or wss:// URL of /socket/ws
	Header http.Header
}

// Dial opens a WebSocket connection.
func (d WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c := &wsConn{conn: conn}
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) Send(_ context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Receive(_ context.Context) (Frame, error) {
	var f Frame
	err := c.conn.ReadJSON(&f)
	if err == nil {
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	}
	return f, err
}

func (c *wsConn) Close() error { return c.conn.Close() }

// PollingDialer connects to the long-polling endpoint.
type PollingDialer struct {
	URL    string // http:// or https:// URL of /socket/poll
	Header http.Header
	Client *http.Client
}

type handshake struct {
	SID           string `json:"sid"`
	PollTimeoutMS int64  `json:"poll_timeout_ms"`
}

// Dial performs the polling handshake.
func (d PollingDialer) Dial(ctx context.Context) (Conn, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{}
	}
	c := &pollConn{base: d.URL, header: d.Header, client: client}
	resp, err := c.do(ctx, http.MethodPost, "", nil)
	if err != nil {
		return nil, fmt.Errorf("polling handshake: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling handshake: status %d", resp.StatusCode)
	}
	var hs handshake
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil || hs.SID == "" {
		return nil, fmt.Errorf("polling handshake: bad response: %v", err)
	}
	c.sid = hs.SID
	return c, nil
}

type pollConn struct {
	base   string
	sid    string
	header http.Header
	client *http.Client

	mu      sync.Mutex
	pending []Frame
	closed  bool
}

func (c *pollConn) do(ctx context.Context, method, sid string, body []byte) (*http.Response, error) {
	target := c.base
	if sid != "" {
		target += "?sid=" + url.QueryEscape(sid)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

func (c *pollConn) Send(ctx context.Context, f Frame) error {
	body, err := json.Marshal([]Frame{f})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, c.sid, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("poll send: status %d", resp.StatusCode)
	}
	return nil
}

func (c *pollConn) Receive(ctx context.Context) (Frame, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Frame{}, errors.New("poll connection closed")
		}
		if len(c.pending) > 0 {
			f := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return f, nil
		}
		c.mu.Unlock()

		batch, err := c.poll(ctx)
		if err != nil {
			return Frame{}, err
		}
		c.mu.Lock()
		c.pending = append(c.pending, batch...)
		c.mu.Unlock()
	}
}

func (c *pollConn) poll(ctx context.Context) ([]Frame, error) {
	resp, err := c.do(ctx, http.MethodGet, c.sid, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll: status %d", resp.StatusCode)
	}
	var batch []Frame
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	return batch, nil
}

func (c *pollConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	resp, err := c.do(ctx, http.MethodDelete, c.sid, nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// FallbackDialer tries each dialer in order and returns the first connection.
type FallbackDialer struct {
	Dialers []Dialer
	Logger  *zap.Logger
}

// NewDialer returns a dialer for baseURL (e.g. https://host) that prefers WebSocket
// and falls back to long-polling when the upgrade fails.
func NewDialer(baseURL string, header http.Header, logger *zap.Logger) (*FallbackDialer, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	wsURL := *u
	switch u.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackDialer{
		Dialers: []Dialer{
			WebSocketDialer{URL: wsURL.String() + wsPath, Header: header},
			PollingDialer{URL: u.String() + pollPath, Header: header},
		},
		Logger: logger,
	}, nil
}

// Dial implements Dialer.
func (d *FallbackDialer) Dial(ctx context.Context) (Conn, error) {
	var errs []error
	for _, dialer := range d.Dialers {
		conn, err := dialer.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		if d.Logger != nil {
			d.Logger.Debug("transport unavailable", zap.Error(err))
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
