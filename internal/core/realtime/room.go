package realtime

import "time"

// Room owns the set of connections subscribed to one topic. It is a plain
// data structure: the manager's registry lock guards every method, because
// room creation and deletion must stay consistent with the reverse index.
type Room struct {
	ID        string
	CreatedAt time.Time

	connections  map[Conn]*ConnectionInfo
	lastActivity time.Time
	messageCount uint64
}

// NewRoom creates an empty room.
func NewRoom(id string) *Room {
	now := time.Now()
	return &Room{
		ID:           id,
		CreatedAt:    now,
		connections:  make(map[Conn]*ConnectionInfo),
		lastActivity: now,
	}
}

// AddConnection registers a connection. Capacity is the caller's concern;
// insertion is unconditional.
func (r *Room) AddConnection(conn Conn, info *ConnectionInfo) {
	r.connections[conn] = info
	r.lastActivity = time.Now()
}

// RemoveConnection removes a connection if present and reports whether a
// removal occurred.
func (r *Room) RemoveConnection(conn Conn) bool {
	if _, ok := r.connections[conn]; !ok {
		return false
	}
	delete(r.connections, conn)
	return true
}

// Connections returns every handle in the room.
func (r *Room) Connections() []Conn {
	conns := make([]Conn, 0, len(r.connections))
	for conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// ConnectionsWithPermission returns the handles whose capability set
// contains p.
func (r *Room) ConnectionsWithPermission(p Permission) []Conn {
	var conns []Conn
	for conn, info := range r.connections {
		if info.Permissions.Has(p) {
			conns = append(conns, conn)
		}
	}
	return conns
}

// ConnectionsForUser returns the handles belonging to userID.
func (r *Room) ConnectionsForUser(userID string) []Conn {
	var conns []Conn
	for conn, info := range r.connections {
		if info.UserID == userID {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Info returns the snapshot for a handle.
func (r *Room) Info(conn Conn) (*ConnectionInfo, bool) {
	info, ok := r.connections[conn]
	return info, ok
}

// Size returns the number of connections in the room.
func (r *Room) Size() int {
	return len(r.connections)
}

// IsEmpty reports whether the room has no connections.
func (r *Room) IsEmpty() bool {
	return len(r.connections) == 0
}

// RecordBroadcast accounts for one broadcast using the delivered count only;
// failed sends do not advance the room's activity.
func (r *Room) RecordBroadcast(delivered int) {
	if delivered == 0 {
		return
	}
	r.messageCount += uint64(delivered)
	r.lastActivity = time.Now()
}

// MessageCount returns the number of messages delivered into the room.
func (r *Room) MessageCount() uint64 {
	return r.messageCount
}

// LastActivity returns the room's last activity time.
func (r *Room) LastActivity() time.Time {
	return r.lastActivity
}
