package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simulive/backend/internal/models"
	"github.com/simulive/backend/internal/presence"
)

// DefaultHistoryLimit caps history reads when no limit is configured.
const DefaultHistoryLimit = 500

var (
	ErrInvalidMessage = errors.New("invalid chat message")
	ErrRateLimited    = errors.New("too many messages")
	ErrForbidden      = errors.New("only the host may post avatar messages")
)

// Store persists chat messages.
type Store interface {
	Insert(ctx context.Context, m *models.ChatMessage) error
	ListByWebinar(ctx context.Context, webinarID string, limit int) ([]models.ChatMessage, error)
}

// Owners resolves the owner of a webinar. Missing webinars yield models.ErrNotFound.
type Owners interface {
	GetOwner(ctx context.Context, webinarID string) (string, error)
}

// Limiter throttles senders by network identity.
type Limiter interface {
	Allow(ctx context.Context, identity string) bool
}

// SendInput is a chat line posted over HTTP.
type SendInput struct {
	WebinarID  string
	SessionID  string
	Author     string // display name; ignored for the host
	Message    string
	IsAvatar   bool
	HostUserID string // authenticated user id, "" when anonymous
	Identity   string // network identity for flood control
}

// Service validates, persists and broadcasts chat messages.
type Service struct {
	store        Store
	owners       Owners
	limiter      Limiter
	fanout       *Fanout
	historyLimit int
	logger       *zap.Logger
}

// NewService creates a chat service. limiter may be nil.
func NewService(store Store, owners Owners, limiter Limiter, fanout *Fanout, historyLimit int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		store:        store,
		owners:       owners,
		limiter:      limiter,
		fanout:       fanout,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// broadcastRecord is the socket payload of a persisted message.
type broadcastRecord struct {
	RoomID string `json:"roomId"`
	models.ChatMessage
}

// Send persists a message and then broadcasts it to the webinar room.
func (s *Service) Send(ctx context.Context, in SendInput) (*models.ChatMessage, error) {
	room := presence.NormalizeRoomKey(in.WebinarID)
	if room == "" {
		return nil, fmt.Errorf("%w: missing webinar", ErrInvalidMessage)
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}
	owner, err := s.owners.GetOwner(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("webinar owner: %w", err)
	}
	isHost := in.HostUserID != "" && in.HostUserID == owner

	msg := &models.ChatMessage{
		WebinarID: room,
		Message:   in.Message,
		IsAvatar:  in.IsAvatar,
	}
	if in.SessionID != "" {
		sid := in.SessionID
		msg.SessionID = &sid
	}

	author := strings.TrimSpace(in.Author)
	switch {
	case in.IsAvatar:
		if !isHost {
			return nil, ErrForbidden
		}
		if author == "" {
			return nil, fmt.Errorf("%w: avatar name required", ErrInvalidMessage)
		}
		msg.UserID = author
	case isHost:
		msg.UserID = models.HostAuthor
		msg.IsAdmin = true
	default:
		if author == "" {
			return nil, fmt.Errorf("%w: name required", ErrInvalidMessage)
		}
		if strings.EqualFold(author, models.HostAuthor) {
			return nil, fmt.Errorf("%w: name %q is reserved", ErrInvalidMessage, models.HostAuthor)
		}
		if !s.allow(ctx, in.Identity) {
			return nil, ErrRateLimited
		}
		msg.UserID = author
	}

	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}

	payload, err := json.Marshal(broadcastRecord{RoomID: room, ChatMessage: *msg})
	if err != nil {
		return nil, fmt.Errorf("encode chat message: %w", err)
	}
	s.fanout.Publish(room, payload)
	return msg, nil
}

// History returns up to limit messages of a webinar in chronological order.
// A non-positive or oversized limit is clamped to the configured maximum.
func (s *Service) History(ctx context.Context, webinarID string, limit int) ([]models.ChatMessage, error) {
	room := presence.NormalizeRoomKey(webinarID)
	if room == "" {
		return nil, fmt.Errorf("%w: missing webinar", ErrInvalidMessage)
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	list, err := s.store.ListByWebinar(ctx, room, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return list, nil
}

// Relay broadcasts a chat-message payload received over a socket. The payload is an
// already persisted record and is forwarded verbatim to its roomId.
func (s *Service) Relay(ctx context.Context, identity string, payload json.RawMessage) error {
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !s.allow(ctx, identity) {
		return ErrRateLimited
	}
	if !s.fanout.Publish(body.RoomID, payload) {
		return ErrInvalidMessage
	}
	return nil
}

func (s *Service) allow(ctx context.Context, identity string) bool {
	if s.limiter == nil {
		return true
	}
	if s.limiter.Allow(ctx, identity) {
		return true
	}
	s.logger.Warn("chat sender throttled", zap.String("identity", identity))
	return false
}
