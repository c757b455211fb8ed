package realtime

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, p *Peer) WSMessage {
	t.Helper()
	select {
	case msg := <-p.Messages():
		return msg
	default:
		t.Fatalf("no message queued for %s", p.ID)
		return WSMessage{}
	}
}

func TestHubEmitToGroupReachesMembersOnly(t *testing.T) {
	hub := NewHub(nil, nil)
	a := hub.Attach("10.0.0.1", TransportWebSocket)
	b := hub.Attach("10.0.0.2", TransportWebSocket)
	outsider := hub.Attach("10.0.0.3", TransportPolling)
	require.NotEqual(t, a.ID, b.ID)

	hub.AddToGroup(a.ID, "w1")
	hub.AddToGroup(b.ID, "w1")
	hub.AddToGroup(outsider.ID, "w2")

	hub.EmitToGroup("w1", "chat-message-w1", json.RawMessage(`{"message":"hi"}`))

	for _, p := range []*Peer{a, b} {
		msg := recv(t, p)
		assert.Equal(t, "chat-message-w1", msg.Event)
		assert.JSONEq(t, `{"message":"hi"}`, string(msg.Data))
	}
	assert.Empty(t, outsider.Messages())
}

func TestHubEmitToMarshalsPayload(t *testing.T) {
	hub := NewHub(nil, nil)
	a := hub.Attach("10.0.0.1", TransportWebSocket)

	hub.EmitTo(a.ID, "viewer-count-w1", 3)
	hub.EmitTo("missing", "viewer-count-w1", 3)

	msg := recv(t, a)
	assert.Equal(t, "viewer-count-w1", msg.Event)
	assert.Equal(t, "3", string(msg.Data))
}

func TestHubDetach(t *testing.T) {
	hub := NewHub(nil, nil)
	a := hub.Attach("10.0.0.1", TransportWebSocket)
	require.True(t, hub.AddToGroup(a.ID, "w1"))
	require.Equal(t, 1, hub.GroupSize("w1"))

	hub.Detach(a)
	hub.Detach(a)

	assert.Zero(t, hub.GroupSize("w1"))
	assert.Zero(t, hub.ConnectionCount())
	_, open := <-a.Messages()
	assert.False(t, open)

	// emitting to a detached peer must not panic
	hub.EmitTo(a.ID, "x", 1)
	hub.EmitToGroup("w1", "x", 1)
	assert.False(t, hub.AddToGroup(a.ID, "w1"))
	assert.Zero(t, hub.GroupSize("w1"))
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hub := NewHub(nil, m)
	a := hub.Attach("10.0.0.1", TransportWebSocket)
	hub.AddToGroup(a.ID, "w1")

	for i := 0; i < sendBuffer+5; i++ {
		hub.EmitToGroup("w1", "viewer-count-w1", i)
	}

	assert.Len(t, a.Messages(), sendBuffer)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.DroppedFrames))
	assert.Equal(t, float64(sendBuffer+5), testutil.ToFloat64(m.GroupEmits.WithLabelValues("viewer-count")))
}

func TestHubMetricsTrackConnectionsAndRooms(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hub := NewHub(nil, m)
	a := hub.Attach("10.0.0.1", TransportWebSocket)
	b := hub.Attach("10.0.0.2", TransportPolling)
	hub.AddToGroup(a.ID, "w1")
	hub.AddToGroup(b.ID, "w2")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Connections.WithLabelValues(TransportWebSocket)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Connections.WithLabelValues(TransportPolling)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Rooms))

	hub.RemoveFromGroup(a.ID, "w1")
	hub.Detach(b)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Rooms))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Connections.WithLabelValues(TransportPolling)))
}
