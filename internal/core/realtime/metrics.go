package realtime

import "time"

// EventType labels entries in the connection event log.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
	EventMessage    EventType = "message"
)

// ConnectionEvent is one entry in the rolling event log. The log exists only
// to feed metrics; it is pruned by age, never consulted for registry state.
type ConnectionEvent struct {
	Type      EventType
	UserID    string
	RoomID    string
	Timestamp time.Time
	Detail    map[string]any
}

// eventLog is a bounded rolling log of connection events. Guarded by the
// manager's registry lock.
type eventLog struct {
	window time.Duration
	events []ConnectionEvent
}

func newEventLog(window time.Duration) *eventLog {
	return &eventLog{window: window}
}

func (l *eventLog) append(ev ConnectionEvent) {
	l.prune(ev.Timestamp)
	l.events = append(l.events, ev)
}

// prune drops events older than the metrics window. Events arrive in time
// order, so the cut is a single index scan from the front.
func (l *eventLog) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.events) && l.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.events = append([]ConnectionEvent(nil), l.events[i:]...)
	}
}

func (l *eventLog) snapshot(now time.Time) []ConnectionEvent {
	l.prune(now)
	events := make([]ConnectionEvent, len(l.events))
	copy(events, l.events)
	return events
}

// MetricsSnapshot is derived from the live registry and the event log over
// the configured window. It is computed on demand and never stored.
type MetricsSnapshot struct {
	TotalConnections      int     `json:"total_connections"`
	ActiveRooms           int     `json:"active_rooms"`
	MessagesSentPerMinute float64 `json:"messages_sent_per_minute"`
	ConnectionSuccessRate float64 `json:"connection_success_rate"`
	DisconnectionRate     float64 `json:"disconnection_rate"`
	WindowSeconds         int     `json:"window_seconds"`
}

// buildMetrics computes a snapshot from the current registry counts and the
// in-window events. With no connection events in the window the success rate
// reports 1.0 rather than dividing by zero.
func buildMetrics(connections, rooms int, events []ConnectionEvent, window time.Duration) MetricsSnapshot {
	var connects, disconnects, messages int
	for _, ev := range events {
		switch ev.Type {
		case EventConnect:
			connects++
		case EventDisconnect:
			disconnects++
		case EventMessage:
			messages++
		}
	}

	snapshot := MetricsSnapshot{
		TotalConnections:      connections,
		ActiveRooms:           rooms,
		ConnectionSuccessRate: 1.0,
		WindowSeconds:         int(window.Seconds()),
	}

	if minutes := window.Minutes(); minutes > 0 {
		snapshot.MessagesSentPerMinute = float64(messages) / minutes
	}
	if total := connects + disconnects; total > 0 {
		snapshot.ConnectionSuccessRate = float64(connects) / float64(total)
		snapshot.DisconnectionRate = float64(disconnects) / float64(total)
	}
	return snapshot
}
