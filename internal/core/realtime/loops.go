package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startLoopsLocked launches the heartbeat and cleanup loops. Callers hold
// the registry lock; the first Connect into an empty registry lands here.
func (m *Manager) startLoopsLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.loopCancel = cancel

	m.loopWG.Add(2)
	go m.heartbeatLoop(ctx)
	go m.cleanupLoop(ctx)

	m.logger.Debug("background loops started")
}

// stopLoopsLocked cancels the loops without waiting for them; a cleanup
// sweep can be the caller, so waiting here would deadlock. Close awaits the
// loop WaitGroup after releasing the lock.
func (m *Manager) stopLoopsLocked() {
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
		m.logger.Debug("background loops cancelled")
	}
}

// heartbeatLoop broadcasts a liveness message to every connection on a
// fixed interval. It exits permanently once the registry has zero rooms; a
// later Connect starts a fresh loop.
func (m *Manager) heartbeatLoop(ctx context.Context) {
	defer m.loopWG.Done()

	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !m.heartbeat() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat performs one liveness broadcast. Returns false when the
// registry is empty and the loop should exit. Failed sends take the normal
// disconnect path so room bookkeeping stays consistent.
func (m *Manager) heartbeat() bool {
	m.mu.Lock()
	if len(m.rooms) == 0 {
		m.mu.Unlock()
		return false
	}
	targets := make([]Conn, 0, len(m.members))
	for _, mem := range m.members {
		targets = append(targets, mem.conn)
	}
	m.mu.Unlock()

	failed := fanOut(targets, NewHeartbeat())
	for _, conn := range failed {
		m.Disconnect(conn)
		_ = conn.Close(CloseNormal, "heartbeat delivery failed")
	}
	if len(failed) > 0 {
		m.logger.Info("heartbeat reaped dead connections", zap.Int("count", len(failed)))
	}
	return true
}

// cleanupLoop forcibly disconnects connections whose last activity is older
// than the stale threshold. Iteration errors never stop the loop; only
// cancellation does.
func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.loopWG.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapStale(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// reapStale sweeps the registry once, removing connections idle past the
// stale threshold through the normal Disconnect path so empty rooms are
// deleted with them. Returns the number removed.
func (m *Manager) reapStale(now time.Time) int {
	m.mu.Lock()
	var stale []Conn
	for _, mem := range m.members {
		if now.Sub(mem.info.LastActivity) > m.config.StaleThreshold {
			stale = append(stale, mem.conn)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		m.Disconnect(conn)
		_ = conn.Close(CloseNormal, "stale connection")
	}
	if len(stale) > 0 {
		m.logger.Info("stale connections removed", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// loopsActive reports whether the background loops are currently scheduled.
func (m *Manager) loopsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loopCancel != nil
}
