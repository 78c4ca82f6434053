package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/docsync/docsync/internal/core/storage"
)

// Well-known rooms. Clients subscribe to a subject room for one entity's
// events, or to a firehose room (capability-gated) for all events of a kind.
const (
	RoomProcessingEvents = "processing_events"
	RoomApprovalEvents   = "approval_events"
)

const queueKeyPrefix = "docsync:queue:"

// ConversationRoom names the subject room for one conversation's processing
// events.
func ConversationRoom(conversationID int) string {
	return fmt.Sprintf("conv_%d", conversationID)
}

// ApprovalRoom names the subject room for one temp example's review events.
func ApprovalRoom(tempExampleID int) string {
	return fmt.Sprintf("approval_%d", tempExampleID)
}

func queueKey(userID string) string {
	return queueKeyPrefix + userID
}

// member ties a handle to its room so Disconnect and Touch resolve in one
// map lookup.
type member struct {
	conn Conn
	info *ConnectionInfo
	room *Room
}

// BroadcastOptions narrows a room broadcast's target set.
type BroadcastOptions struct {
	// RequiredPermission, when set, limits delivery to connections holding
	// that capability.
	RequiredPermission Permission

	// ExcludeUserIDs drops every connection of the listed users from the
	// target set.
	ExcludeUserIDs []string
}

// Manager is the connection/room registry and broadcast engine. One Manager
// is constructed per process and injected into the transport layer and the
// pipeline callers.
//
// All registry state (rooms, reverse index, per-user queues, event log,
// loop lifecycle) is guarded by a single mutex; room creation and deletion
// must stay consistent with the reverse index, so per-room locking is not
// an option. Transport sends and the transport accept run outside the lock.
type Manager struct {
	config Config
	logger *zap.Logger
	store  storage.MessageStore

	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]*member
	queues  map[string]*MessageQueue
	events  *eventLog
	closed  bool

	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

// NewManager creates a registry. A nil store disables external persistence
// (in-memory retention only); a nil logger disables logging.
func NewManager(config Config, store storage.MessageStore, logger *zap.Logger) *Manager {
	if store == nil {
		store = storage.NewNoopStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()

	return &Manager{
		config:  config,
		logger:  logger.With(zap.String("component", "realtime")),
		store:   store,
		rooms:   make(map[string]*Room),
		members: make(map[string]*member),
		queues:  make(map[string]*MessageQueue),
		events:  newEventLog(config.MetricsWindow),
	}
}

// Connect validates, accepts, and registers a transport handle.
//
// Validation failures are reported before the transport-level accept, so the
// caller can reject without bringing up a session. A room at capacity closes
// the handle with CloseCapacityExceeded and returns ErrRoomFull. On success
// the caller receives an initial connection_status message followed by any
// queued backlog, and the first connection into an empty registry starts the
// background loops.
func (m *Manager) Connect(ctx context.Context, conn Conn, userID, roomID string, perms []Permission) (*ConnectionInfo, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if roomID == "" {
		return nil, ErrEmptyRoomID
	}
	for _, p := range perms {
		if !p.Valid() {
			return nil, errors.Wrapf(ErrUnknownPermission, "%q", p)
		}
	}

	if err := conn.Accept(ctx); err != nil {
		return nil, errors.Wrap(err, "transport accept")
	}

	now := time.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close(CloseNormal, "shutting down")
		return nil, ErrManagerClosed
	}

	room, exists := m.rooms[roomID]
	if exists && room.Size() >= m.config.RoomCapacity {
		m.mu.Unlock()
		_ = conn.Close(CloseCapacityExceeded, "room capacity exceeded")
		m.logger.Warn("connection rejected: room full",
			zap.String("user_id", userID),
			zap.String("room_id", roomID),
			zap.Int("capacity", m.config.RoomCapacity))
		return nil, errors.Wrapf(ErrRoomFull, "room %q", roomID)
	}
	if !exists {
		room = NewRoom(roomID)
		m.rooms[roomID] = room
	}

	info := &ConnectionInfo{
		UserID:       userID,
		RoomID:       roomID,
		Permissions:  NewPermissionSet(perms...),
		ConnectedAt:  now,
		LastActivity: now,
	}
	room.AddConnection(conn, info)
	m.members[conn.ID()] = &member{conn: conn, info: info, room: room}
	m.events.append(ConnectionEvent{Type: EventConnect, UserID: userID, RoomID: roomID, Timestamp: now})

	if m.loopCancel == nil {
		m.startLoopsLocked()
	}
	userCount := room.Size()
	m.mu.Unlock()

	if err := conn.Send(NewConnectionStatus(info, userCount)); err != nil {
		m.logger.Warn("initial status send failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	m.DeliverQueuedMessages(ctx, userID, conn)

	m.logger.Info("connection admitted",
		zap.String("user_id", userID),
		zap.String("room_id", roomID),
		zap.Int("room_size", userCount))
	return info, nil
}

// Disconnect removes a handle from the registry. Unknown handles are a
// no-op. The room is deleted when its last connection leaves, and the
// disconnect that empties the registry cancels the background loops.
// Disconnect does not close the transport; that stays with the caller.
func (m *Manager) Disconnect(conn Conn) {
	m.mu.Lock()
	mem, ok := m.members[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.members, conn.ID())
	mem.room.RemoveConnection(conn)
	if mem.room.IsEmpty() {
		delete(m.rooms, mem.room.ID)
	}
	m.events.append(ConnectionEvent{
		Type:      EventDisconnect,
		UserID:    mem.info.UserID,
		RoomID:    mem.info.RoomID,
		Timestamp: time.Now(),
	})
	if len(m.members) == 0 {
		m.stopLoopsLocked()
	}
	m.mu.Unlock()

	m.logger.Info("connection removed",
		zap.String("user_id", mem.info.UserID),
		zap.String("room_id", mem.info.RoomID))
}

// Touch refreshes a connection's last-activity time. Called by the
// transport layer on every inbound frame.
func (m *Manager) Touch(conn Conn) {
	m.mu.Lock()
	if mem, ok := m.members[conn.ID()]; ok {
		mem.info.LastActivity = time.Now()
	}
	m.mu.Unlock()
}

// BroadcastToRoom fans message out to the room's connections, minus any
// excluded users, minus any connection lacking the required permission.
// Sends run concurrently and independently; the returned handles are the
// ones whose send failed, and the caller is responsible for disconnecting
// them. A broadcast to an unknown room is a no-op returning nil.
func (m *Manager) BroadcastToRoom(roomID string, message any, opts BroadcastOptions) []Conn {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("broadcast to unknown room", zap.String("room_id", roomID))
		return nil
	}

	var exclude map[string]struct{}
	if len(opts.ExcludeUserIDs) > 0 {
		exclude = make(map[string]struct{}, len(opts.ExcludeUserIDs))
		for _, id := range opts.ExcludeUserIDs {
			exclude[id] = struct{}{}
		}
	}

	targets := make([]Conn, 0, room.Size())
	for conn, info := range room.connections {
		if _, skip := exclude[info.UserID]; skip {
			continue
		}
		if opts.RequiredPermission != "" && !info.Permissions.Has(opts.RequiredPermission) {
			continue
		}
		targets = append(targets, conn)
	}
	m.mu.Unlock()

	failed := fanOut(targets, message)
	m.recordBroadcast(roomID, len(targets)-len(failed), len(failed))
	return failed
}

// SendToUser delivers message to every connection userID holds in roomID.
func (m *Manager) SendToUser(roomID, userID string, message any) []Conn {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	targets := room.ConnectionsForUser(userID)
	m.mu.Unlock()

	failed := fanOut(targets, message)
	m.recordBroadcast(roomID, len(targets)-len(failed), len(failed))
	return failed
}

// BroadcastProcessingUpdate fans a pipeline progress event out to the
// conversation's subject room and, gated on processing:read, to the
// processing firehose room.
func (m *Manager) BroadcastProcessingUpdate(conversationID int, status ProcessingStatus, stage string, progress int, note string) []Conn {
	update := NewProcessingUpdate(conversationID, status, stage, progress, note)
	failed := m.BroadcastToRoom(ConversationRoom(conversationID), update, BroadcastOptions{})
	failed = append(failed, m.BroadcastToRoom(RoomProcessingEvents, update, BroadcastOptions{
		RequiredPermission: PermissionProcessingRead,
	})...)
	return failed
}

// BroadcastApprovalUpdate fans a review transition out to the temp
// example's subject room and, gated on approval:read, to the approval
// firehose room.
func (m *Manager) BroadcastApprovalUpdate(tempExampleID int, previousStatus, newStatus, reviewerID string) []Conn {
	update := NewApprovalUpdate(tempExampleID, previousStatus, newStatus, reviewerID)
	failed := m.BroadcastToRoom(ApprovalRoom(tempExampleID), update, BroadcastOptions{})
	failed = append(failed, m.BroadcastToRoom(RoomApprovalEvents, update, BroadcastOptions{
		RequiredPermission: PermissionApprovalRead,
	})...)
	return failed
}

// recordBroadcast updates room accounting with the delivered count and
// appends a message event for the metrics window.
func (m *Manager) recordBroadcast(roomID string, delivered, failedCount int) {
	m.mu.Lock()
	if room, ok := m.rooms[roomID]; ok {
		room.RecordBroadcast(delivered)
	}
	m.events.append(ConnectionEvent{
		Type:      EventMessage,
		RoomID:    roomID,
		Timestamp: time.Now(),
		Detail:    map[string]any{"delivered": delivered, "failed": failedCount},
	})
	m.mu.Unlock()
}

// QueueMessageForUser retains message for an offline user. The in-memory
// queue always gets the message; the external store is attempted as well,
// and a store failure degrades silently to memory-only retention.
func (m *Manager) QueueMessageForUser(ctx context.Context, userID string, message any, ttl time.Duration) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(ErrMessageEncoding, err.Error())
	}

	msg := &QueuedMessage{
		ID:         uuid.New().String(),
		UserID:     userID,
		Message:    payload,
		CreatedAt:  time.Now().UTC(),
		TTLSeconds: int(ttl / time.Second),
	}

	m.mu.Lock()
	queue, ok := m.queues[userID]
	if !ok {
		queue = NewMessageQueue(m.config.QueueLimit)
		m.queues[userID] = queue
	}
	queue.Append(msg)
	m.mu.Unlock()

	item, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(ErrMessageEncoding, err.Error())
	}
	if err := m.store.Push(ctx, queueKey(userID), item, ttl); err != nil {
		m.logger.Warn("store push failed, message retained in memory only",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return nil
}

// DeliverQueuedMessages drains a reconnecting user's backlog to conn: the
// external store first, then the in-memory queue. Each item is best-effort;
// a failed send leaves that item queued for the next reconnect and never
// blocks the rest. Returns the number of messages delivered.
func (m *Manager) DeliverQueuedMessages(ctx context.Context, userID string, conn Conn) int {
	delivered, deliveredIDs, pendingIDs := m.drainStore(ctx, userID, conn)
	delivered += m.drainMemory(userID, conn, deliveredIDs, pendingIDs)
	if delivered > 0 {
		m.logger.Info("backlog delivered",
			zap.String("user_id", userID),
			zap.Int("messages", delivered))
	}
	return delivered
}

// drainStore reads the user's persisted backlog and attempts each item.
// Confirmed sends (and expired or undecodable items) are removed from the
// store; anything else stays for the next reconnect. Returns the delivered
// count plus the IDs it delivered and the IDs still pending in the store,
// so the memory drain can skip both.
func (m *Manager) drainStore(ctx context.Context, userID string, conn Conn) (int, map[string]struct{}, map[string]struct{}) {
	key := queueKey(userID)
	items, err := m.store.ReadAll(ctx, key)
	if err != nil {
		m.logger.Warn("store read failed, serving memory queue only",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, nil, nil
	}
	if len(items) == 0 {
		return 0, nil, nil
	}

	now := time.Now()
	delivered := 0
	deliveredIDs := make(map[string]struct{})
	pendingIDs := make(map[string]struct{})

	for _, item := range items {
		var msg QueuedMessage
		if err := json.Unmarshal(item, &msg); err != nil {
			m.logger.Warn("dropping undecodable queued message", zap.Error(err))
			m.removeStored(ctx, key, item)
			continue
		}
		if msg.Expired(now) {
			m.removeStored(ctx, key, item)
			continue
		}
		if err := conn.Send(msg.Message); err != nil {
			m.logger.Warn("queued send failed, message retained",
				zap.String("user_id", userID),
				zap.Error(err))
			pendingIDs[msg.ID] = struct{}{}
			continue
		}
		m.removeStored(ctx, key, item)
		deliveredIDs[msg.ID] = struct{}{}
		delivered++
	}
	return delivered, deliveredIDs, pendingIDs
}

func (m *Manager) removeStored(ctx context.Context, key string, item []byte) {
	if err := m.store.RemoveOne(ctx, key, item); err != nil {
		m.logger.Warn("store remove failed", zap.Error(err))
	}
}

// drainMemory drains the in-memory queue. Messages the store drain already
// delivered are dropped without a resend; messages still pending in the
// store stay queued untouched, since the store copy owns their next
// attempt. Sends happen outside the registry lock.
func (m *Manager) drainMemory(userID string, conn Conn, deliveredIDs, pendingIDs map[string]struct{}) int {
	m.mu.Lock()
	queue, ok := m.queues[userID]
	if !ok {
		m.mu.Unlock()
		return 0
	}
	items := queue.detach()
	m.mu.Unlock()

	now := time.Now()
	delivered := 0
	var remaining []*QueuedMessage

	for _, msg := range items {
		if _, ok := deliveredIDs[msg.ID]; ok {
			continue
		}
		if _, ok := pendingIDs[msg.ID]; ok {
			remaining = append(remaining, msg)
			continue
		}
		if msg.Expired(now) {
			continue
		}
		if err := conn.Send(msg.Message); err != nil {
			msg.Attempts++
			remaining = append(remaining, msg)
			continue
		}
		delivered++
	}

	m.mu.Lock()
	queue.requeueFront(remaining)
	if queue.Len() == 0 {
		delete(m.queues, userID)
	}
	m.mu.Unlock()
	return delivered
}

// QueueLength returns how many messages are retained in memory for userID.
func (m *Manager) QueueLength(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if queue, ok := m.queues[userID]; ok {
		return queue.Len()
	}
	return 0
}

// ConnectionCount returns the number of live connections.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members)
}

// RoomCount returns the number of active rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// GetMetrics computes a snapshot from the live registry and the rolling
// event log. Pure read, no side effects beyond age-pruning the log.
func (m *Manager) GetMetrics() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events.snapshot(time.Now())
	return buildMetrics(len(m.members), len(m.rooms), events, m.config.MetricsWindow)
}

// Close cancels the background loops, closes every connection, and waits
// for the loops to exit. Queued messages stay retained for the store's TTL.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopLoopsLocked()

	conns := make([]Conn, 0, len(m.members))
	for _, mem := range m.members {
		conns = append(conns, mem.conn)
	}
	m.rooms = make(map[string]*Room)
	m.members = make(map[string]*member)
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(CloseNormal, "server shutting down")
	}
	m.loopWG.Wait()

	m.logger.Info("realtime manager closed")
	return nil
}

// fanOut sends message to every target concurrently and gathers the handles
// whose send failed. It always attempts every target; one failure never
// blocks or aborts the rest.
func fanOut(targets []Conn, message any) []Conn {
	if len(targets) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	failedCh := make(chan Conn, len(targets))

	for _, conn := range targets {
		wg.Add(1)
		go func(conn Conn) {
			defer wg.Done()
			if err := conn.Send(message); err != nil {
				failedCh <- conn
			}
		}(conn)
	}

	wg.Wait()
	close(failedCh)

	var failed []Conn
	for conn := range failedCh {
		failed = append(failed, conn)
	}
	return failed
}
