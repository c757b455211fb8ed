package streams

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simulive/backend/internal/models"
)

const (
	trackerBuffer = 256
	storeTimeout  = 5 * time.Second
)

// Store is the persistence used by PeakTracker.
type Store interface {
	GetOrCreateActive(ctx context.Context, webinarID string) (*models.StreamSession, error)
	UpdatePeakViewers(ctx context.Context, sessionID uuid.UUID, peak int) error
	End(ctx context.Context, sessionID uuid.UUID) error
}

type observation struct {
	room  string
	count int
}

type tracked struct {
	sessionID uuid.UUID
	peak      int
}

// PeakTracker records each room's peak viewer count in its active stream session.
// A room that empties ends its session.
type PeakTracker struct {
	store   Store
	updates chan observation
	rooms   map[string]*tracked
	logger  *zap.Logger
}

// NewPeakTracker creates a tracker; call Run to start persisting.
func NewPeakTracker(store Store, logger *zap.Logger) *PeakTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeakTracker{
		store:   store,
		updates: make(chan observation, trackerBuffer),
		rooms:   make(map[string]*tracked),
		logger:  logger,
	}
}

// Observe queues a viewer count. It never blocks; when the queue is full the value is dropped.
func (t *PeakTracker) Observe(room string, count int) {
	select {
	case t.updates <- observation{room: room, count: count}:
	default:
		t.logger.Debug("peak tracker queue full", zap.String("room", room))
	}
}

// Run persists queued observations until ctx is cancelled.
func (t *PeakTracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-t.updates:
			t.apply(ctx, o)
		}
	}
}

func (t *PeakTracker) apply(ctx context.Context, o observation) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	cur := t.rooms[o.room]
	if o.count == 0 {
		if cur == nil {
			return
		}
		delete(t.rooms, o.room)
		if err := t.store.End(ctx, cur.sessionID); err != nil {
			t.logger.Warn("end stream session", zap.String("room", o.room), zap.Error(err))
			return
		}
		t.logger.Info("stream session ended", zap.String("room", o.room), zap.Int("peak_viewers", cur.peak))
		return
	}

	if cur == nil {
		s, err := t.store.GetOrCreateActive(ctx, o.room)
		if err != nil {
			t.logger.Warn("open stream session", zap.String("room", o.room), zap.Error(err))
			return
		}
		cur = &tracked{sessionID: s.ID, peak: s.PeakViewers}
		t.rooms[o.room] = cur
	}
	if o.count <= cur.peak {
		return
	}
	if err := t.store.UpdatePeakViewers(ctx, cur.sessionID, o.count); err != nil {
		t.logger.Warn("update peak viewers", zap.String("room", o.room), zap.Error(err))
		return
	}
	cur.peak = o.count
}
