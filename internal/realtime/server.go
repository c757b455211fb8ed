package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultPollWait       = 25 * time.Second
	DefaultSessionTimeout = 60 * time.Second

	eventTimeout = 5 * time.Second
)

// Presence is the room membership service driven by socket events.
type Presence interface {
	Join(ctx context.Context, connID, rawRoomKey, identity string) error
	Leave(ctx context.Context, connID, rawRoomKey string) error
	Disconnect(ctx context.Context, connID string) error
}

// ChatRelay forwards a chat-message payload sent over a socket.
type ChatRelay interface {
	Relay(ctx context.Context, identity string, payload json.RawMessage) error
}

// Options tunes the transport.
type Options struct {
	// CheckOrigin decides cross-origin socket requests. Nil allows every origin.
	CheckOrigin    func(origin string) bool
	PollWait       time.Duration
	SessionTimeout time.Duration
}

// Server exposes the hub over WebSocket and long-polling.
type Server struct {
	hub      *Hub
	presence Presence
	chat     ChatRelay
	router   *Router
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader

	pollMu sync.Mutex
	polls  map[string]*pollSession
}

// NewServer wires the transport to presence and chat. chat may be nil, in which
// case chat-message events are dropped.
func NewServer(hub *Hub, presence Presence, chat ChatRelay, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollWait <= 0 {
		opts.PollWait = DefaultPollWait
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	s := &Server{
		hub:      hub,
		presence: presence,
		chat:     chat,
		router:   NewRouter(),
		opts:     opts,
		logger:   logger,
		polls:    make(map[string]*pollSession),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.registerEvents()
	return s
}

// Register mounts the socket endpoints on rg (normally the /socket group).
func (s *Server) Register(rg gin.IRoutes) {
	rg.GET("/ws", s.ServeWS)
	rg.POST("/poll", s.pollPost)
	rg.GET("/poll", s.pollGet)
	rg.DELETE("/poll", s.pollDelete)
}

// Run reaps idle polling sessions until ctx is cancelled, then closes the rest.
func (s *Server) Run(ctx context.Context) {
	every := s.opts.SessionTimeout / 2
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closePolls(func(*pollSession) bool { return true })
			return
		case now := <-ticker.C:
			n := s.closePolls(func(ps *pollSession) bool {
				return now.Sub(ps.lastActive()) > s.opts.SessionTimeout
			})
			if n > 0 {
				s.logger.Info("expired polling sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) registerEvents() {
	Register(s.router, EventJoinRoom, func(ctx context.Context, p *Peer, room string) error {
		return s.presence.Join(ctx, p.ID, room, p.Identity)
	})
	Register(s.router, EventLeaveRoom, func(ctx context.Context, p *Peer, room string) error {
		return s.presence.Leave(ctx, p.ID, room)
	})
	Register(s.router, EventChatMessage, func(ctx context.Context, p *Peer, payload json.RawMessage) error {
		if s.chat == nil {
			return errors.New("chat relay disabled")
		}
		if err := s.chat.Relay(ctx, p.Identity, payload); err != nil {
			return err
		}
		s.hub.metrics.ChatRelayed.Inc()
		return nil
	})
}

// handle dispatches one inbound frame. Failures are logged and never reported to the sender.
func (s *Server) handle(p *Peer, msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := s.router.dispatch(ctx, p, msg); err != nil {
		s.logger.Warn("socket event dropped",
			zap.String("conn_id", p.ID),
			zap.String("event", msg.Event),
			zap.Error(err),
		)
	}
}

func (s *Server) connect(r *http.Request, transport string) *Peer {
	p := s.hub.Attach(ClientIdentity(r), transport)
	s.hub.EmitTo(p.ID, EventConnected, ConnectedPayload{ID: p.ID})
	s.logger.Info("client connected",
		zap.String("conn_id", p.ID),
		zap.String("identity", p.Identity),
		zap.String("transport", transport),
	)
	return p
}

// disconnect detaches the peer before releasing presence: a join still queued
// behind it then fails AddToGroup instead of re-adding the connection. The
// presence call has no deadline since dropping it would leave the viewer counted.
func (s *Server) disconnect(p *Peer) {
	s.hub.Detach(p)
	if err := s.presence.Disconnect(context.Background(), p.ID); err != nil {
		s.logger.Warn("presence disconnect", zap.String("conn_id", p.ID), zap.Error(err))
	}
	s.logger.Info("client disconnected", zap.String("conn_id", p.ID), zap.String("transport", p.Transport))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.opts.CheckOrigin == nil {
		return true
	}
	return s.opts.CheckOrigin(origin)
}
