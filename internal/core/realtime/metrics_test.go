package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogPrunesByAge(t *testing.T) {
	log := newEventLog(5 * time.Minute)
	now := time.Now()

	log.append(ConnectionEvent{Type: EventConnect, Timestamp: now.Add(-10 * time.Minute)})
	log.append(ConnectionEvent{Type: EventConnect, Timestamp: now.Add(-4 * time.Minute)})
	log.append(ConnectionEvent{Type: EventMessage, Timestamp: now})

	events := log.snapshot(now)
	require.Len(t, events, 2, "events beyond the window are dropped")
	assert.Equal(t, EventConnect, events[0].Type)
	assert.Equal(t, EventMessage, events[1].Type)
}

func TestBuildMetrics(t *testing.T) {
	window := 5 * time.Minute
	now := time.Now()
	events := []ConnectionEvent{
		{Type: EventConnect, Timestamp: now},
		{Type: EventConnect, Timestamp: now},
		{Type: EventConnect, Timestamp: now},
		{Type: EventDisconnect, Timestamp: now},
		{Type: EventMessage, Timestamp: now},
		{Type: EventMessage, Timestamp: now},
	}

	snapshot := buildMetrics(2, 1, events, window)
	assert.Equal(t, 2, snapshot.TotalConnections)
	assert.Equal(t, 1, snapshot.ActiveRooms)
	assert.InDelta(t, 0.75, snapshot.ConnectionSuccessRate, 1e-9)
	assert.InDelta(t, 0.25, snapshot.DisconnectionRate, 1e-9)
	assert.InDelta(t, 0.4, snapshot.MessagesSentPerMinute, 1e-9)
	assert.Equal(t, 300, snapshot.WindowSeconds)
}

func TestBuildMetricsEmptyWindow(t *testing.T) {
	snapshot := buildMetrics(0, 0, nil, 5*time.Minute)
	assert.Equal(t, 1.0, snapshot.ConnectionSuccessRate, "no events means no observed failures")
	assert.Zero(t, snapshot.DisconnectionRate)
	assert.Zero(t, snapshot.MessagesSentPerMinute)
}
