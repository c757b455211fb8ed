package realtime

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PollHandshake is returned by POST /socket/poll without a sid.
type PollHandshake struct {
	SID            string `json:"sid"`
	PingIntervalMS int64  `json:"ping_interval_ms"`
	PollTimeoutMS  int64  `json:"poll_timeout_ms"`
}

type pollSession struct {
	peer *Peer

	mu       sync.Mutex
	lastSeen time.Time
}

func (ps *pollSession) touch() {
	ps.mu.Lock()
	ps.lastSeen = time.Now()
	ps.mu.Unlock()
}

func (ps *pollSession) lastActive() time.Time {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastSeen
}

func (s *Server) session(c *gin.Context) (*pollSession, bool) {
	sid := c.Query("sid")
	s.pollMu.Lock()
	ps, ok := s.polls[sid]
	s.pollMu.Unlock()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown session"})
		return nil, false
	}
	ps.touch()
	return ps, true
}

// pollPost opens a session (no sid) or delivers client frames (with sid).
func (s *Server) pollPost(c *gin.Context) {
	if c.Query("sid") == "" {
		s.pollHandshake(c)
		return
	}
	ps, ok := s.session(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	frames, err := decodeFrames(body)
	if err != nil {
		s.logger.Warn("malformed poll frames", zap.String("conn_id", ps.peer.ID), zap.Error(err))
	}
	for _, msg := range frames {
		if msg.Event == "" {
			s.logger.Warn("malformed socket frame", zap.String("conn_id", ps.peer.ID))
			continue
		}
		s.handle(ps.peer, msg)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pollHandshake(c *gin.Context) {
	if !s.checkOrigin(c.Request) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}
	p := s.connect(c.Request, TransportPolling)
	ps := &pollSession{peer: p, lastSeen: time.Now()}
	s.pollMu.Lock()
	s.polls[p.ID] = ps
	s.pollMu.Unlock()

	c.JSON(http.StatusOK, PollHandshake{
		SID:            p.ID,
		PingIntervalMS: PingInterval * 1000,
		PollTimeoutMS:  s.opts.PollWait.Milliseconds(),
	})
}

// pollGet waits up to PollWait for queued events and returns them as a JSON array.
func (s *Server) pollGet(c *gin.Context) {
	ps, ok := s.session(c)
	if !ok {
		return
	}
	timer := time.NewTimer(s.opts.PollWait)
	defer timer.Stop()

	batch := []WSMessage{}
	select {
	case msg, ok := <-ps.peer.send:
		if !ok {
			c.JSON(http.StatusGone, gin.H{"error": "session closed"})
			return
		}
		batch = append(batch, msg)
		batch = drain(ps.peer.send, batch)
	case <-timer.C:
	case <-c.Request.Context().Done():
		return
	}
	ps.touch()
	c.JSON(http.StatusOK, batch)
}

func (s *Server) pollDelete(c *gin.Context) {
	sid := c.Query("sid")
	s.pollMu.Lock()
	ps, ok := s.polls[sid]
	delete(s.polls, sid)
	s.pollMu.Unlock()
	if ok {
		s.disconnect(ps.peer)
	}
	c.Status(http.StatusNoContent)
}

// closePolls disconnects and forgets every session matching expired.
func (s *Server) closePolls(expired func(*pollSession) bool) int {
	var victims []*pollSession
	s.pollMu.Lock()
	for sid, ps := range s.polls {
		if expired(ps) {
			victims = append(victims, ps)
			delete(s.polls, sid)
		}
	}
	s.pollMu.Unlock()
	for _, ps := range victims {
		s.disconnect(ps.peer)
	}
	return len(victims)
}

func drain(ch <-chan WSMessage, batch []WSMessage) []WSMessage {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return batch
			}
			batch = append(batch, msg)
		default:
			return batch
		}
	}
}

// decodeFrames accepts a JSON array of envelopes or a single envelope.
func decodeFrames(body []byte) ([]WSMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '[' {
		var frames []WSMessage
		if err := json.Unmarshal(body, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}
	var msg WSMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	return []WSMessage{msg}, nil
}
