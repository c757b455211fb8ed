package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Peer is one live connection, whatever its transport.
type Peer struct {
	ID        string
	Identity  string
	Transport string

	send   chan WSMessage
	closed bool
}

// Messages returns the peer's outbound queue. It is closed on Detach.
func (p *Peer) Messages() <-chan WSMessage { return p.send }

// Hub maintains conn id -> peer and room -> conn ids and delivers events.
// It implements presence.Groups.
type Hub struct {
	mu      sync.RWMutex
	peers   map[string]*Peer
	groups  map[string]map[string]*Peer
	logger  *zap.Logger
	metrics *Metrics
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		peers:   make(map[string]*Peer),
		groups:  make(map[string]map[string]*Peer),
		logger:  logger,
		metrics: metrics,
	}
}

// Attach registers a new connection and assigns its id.
func (h *Hub) Attach(identity, transport string) *Peer {
	p := &Peer{
		ID:        uuid.New().String(),
		Identity:  identity,
		Transport: transport,
		send:      make(chan WSMessage, sendBuffer),
	}
	h.mu.Lock()
	h.peers[p.ID] = p
	h.mu.Unlock()

	h.metrics.Connections.WithLabelValues(transport).Inc()
	h.logger.Debug("connection attached",
		zap.String("conn_id", p.ID),
		zap.String("identity", identity),
		zap.String("transport", transport),
	)
	return p
}

// Detach forgets the peer, drops it from every group and closes its queue.
// Calling it twice is safe.
func (h *Hub) Detach(p *Peer) {
	h.mu.Lock()
	if p.closed {
		h.mu.Unlock()
		return
	}
	p.closed = true
	delete(h.peers, p.ID)
	for room, members := range h.groups {
		if _, ok := members[p.ID]; ok {
			delete(members, p.ID)
			if len(members) == 0 {
				delete(h.groups, room)
			}
		}
	}
	close(p.send)
	rooms := len(h.groups)
	h.mu.Unlock()

	h.metrics.Connections.WithLabelValues(p.Transport).Dec()
	h.metrics.Rooms.Set(float64(rooms))
	h.logger.Debug("connection detached", zap.String("conn_id", p.ID))
}

// Peer returns the live peer with the given id.
func (h *Hub) Peer(connID string) (*Peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[connID]
	return p, ok
}

// AddToGroup puts the connection in room. It returns false for unknown or
// detached connections.
func (h *Hub) AddToGroup(connID, room string) bool {
	h.mu.Lock()
	p, ok := h.peers[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	members := h.groups[room]
	if members == nil {
		members = make(map[string]*Peer)
		h.groups[room] = members
	}
	members[connID] = p
	rooms := len(h.groups)
	h.mu.Unlock()
	h.metrics.Rooms.Set(float64(rooms))
	return true
}

// RemoveFromGroup takes the connection out of room.
func (h *Hub) RemoveFromGroup(connID, room string) {
	h.mu.Lock()
	if members, ok := h.groups[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, room)
		}
	}
	rooms := len(h.groups)
	h.mu.Unlock()
	h.metrics.Rooms.Set(float64(rooms))
}

// EmitToGroup sends event to every connection in room.
func (h *Hub) EmitToGroup(room, event string, payload interface{}) {
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.metrics.GroupEmits.WithLabelValues(eventKind(event, room)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.groups[room] {
		h.deliver(p, msg)
	}
}

// EmitTo sends event to a single connection.
func (h *Hub) EmitTo(connID, event string, payload interface{}) {
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if p, ok := h.peers[connID]; ok {
		h.deliver(p, msg)
	}
}

// GroupSize returns the number of connections in room.
func (h *Hub) GroupSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[room])
}

// ConnectionCount returns the number of attached peers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(p *Peer, msg WSMessage) {
	if p.closed {
		return
	}
	select {
	case p.send <- msg:
	default:
		// buffer full, skip
		h.metrics.DroppedFrames.Inc()
		h.logger.Debug("send buffer full", zap.String("conn_id", p.ID), zap.String("event", msg.Event))
	}
}
