package realtime

import "encoding/json"

// Client -> server events.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventChatMessage = "chat-message"
)

// EventConnected is sent once to every new connection with its id.
const EventConnected = "connected"

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	writeWait   = 10
	sendBuffer  = 256
	maxReadSize = 65536
)

// Transport names used in metrics and logs.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectedPayload is the body of EventConnected.
type ConnectedPayload struct {
	ID string `json:"id"`
}

func encode(event string, payload interface{}) (WSMessage, error) {
	var data []byte
	switch v := payload.(type) {
	case nil:
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return WSMessage{}, err
		}
	}
	return WSMessage{Event: event, Data: data}, nil
}
