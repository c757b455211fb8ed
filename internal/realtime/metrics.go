package realtime

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the realtime collectors exposed on /metrics.
type Metrics struct {
	Connections   *prometheus.GaugeVec
	Rooms         prometheus.Gauge
	GroupEmits    *prometheus.CounterVec
	ChatRelayed   prometheus.Counter
	DroppedFrames prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "simulive",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open realtime connections by transport.",
		}, []string{"transport"}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simulive",
			Subsystem: "realtime",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		GroupEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulive",
			Subsystem: "realtime",
			Name:      "group_emits_total",
			Help:      "Events emitted to a room, by event kind.",
		}, []string{"kind"}),
		ChatRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simulive",
			Subsystem: "realtime",
			Name:      "chat_relayed_total",
			Help:      "Chat messages relayed from sockets.",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simulive",
			Subsystem: "realtime",
			Name:      "dropped_frames_total",
			Help:      "Frames dropped because a connection's send buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Rooms, m.GroupEmits, m.ChatRelayed, m.DroppedFrames)
	}
	return m
}

// eventKind strips the room suffix, "viewer-count-w1" -> "viewer-count".
func eventKind(event, room string) string {
	return strings.TrimSuffix(event, "-"+room)
}
