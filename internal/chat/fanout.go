package chat

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/simulive/backend/internal/presence"
)

// Emitter delivers an event to every connection of a room.
type Emitter interface {
	EmitToGroup(room, event string, payload interface{})
}

// MessageEvent returns the server->client event carrying chat messages of room.
func MessageEvent(room string) string { return "chat-message-" + room }

// Fanout broadcasts chat payloads to the connections joined to a room.
type Fanout struct {
	emitter Emitter
	logger  *zap.Logger
}

// NewFanout creates a fanout over emitter.
func NewFanout(emitter Emitter, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{emitter: emitter, logger: logger}
}

// Publish sends payload unchanged to every member of the room named by rawRoomKey.
// Payloads without a room or without a message body are dropped and false is returned.
func (f *Fanout) Publish(rawRoomKey string, payload json.RawMessage) bool {
	room := presence.NormalizeRoomKey(rawRoomKey)
	if room == "" {
		f.logger.Warn("chat message dropped: missing room")
		return false
	}
	if !hasBody(payload) {
		f.logger.Warn("chat message dropped: empty body", zap.String("room", room))
		return false
	}
	f.emitter.EmitToGroup(room, MessageEvent(room), payload)
	f.logger.Debug("chat message broadcast", zap.String("room", room))
	return true
}

func hasBody(payload json.RawMessage) bool {
	var body struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return false
	}
	return body.Message != nil && *body.Message != ""
}
