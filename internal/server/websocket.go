package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/docsync/docsync/internal/core/realtime"
)

// AuthFunc resolves a request to a verified user identity and capability
// list. Real deployments plug in their token verifier; the default reads
// user_id and permissions straight from the query string, since identity
// verification lives outside this layer.
type AuthFunc func(r *http.Request) (userID string, perms []realtime.Permission, err error)

func queryAuth(r *http.Request) (string, []realtime.Permission, error) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return "", nil, errors.Wrap(ErrUnauthorized, "missing user_id")
	}
	var perms []realtime.Permission
	if raw := r.URL.Query().Get("permissions"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, realtime.Permission(p))
			}
		}
	}
	return userID, perms, nil
}

var _ realtime.Conn = (*wsConn)(nil)

// wsConn adapts one WebSocket session to the registry's Conn contract. The
// upgrade is deferred into Accept so the registry can reject invalid
// admissions before any session exists.
type wsConn struct {
	id       string
	upgrader *websocket.Upgrader
	w        http.ResponseWriter
	r        *http.Request

	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closed       int32

	// Subscription types requested over the control channel; consulted by
	// collaborators layering event filters on top of room membership.
	subsMu sync.Mutex
	subs   map[string]struct{}
}

func newWSConn(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           uuid.New().String(),
		upgrader:     upgrader,
		w:            w,
		r:            r,
		writeTimeout: writeTimeout,
		subs:         make(map[string]struct{}),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Accept(_ context.Context) error {
	conn, err := c.upgrader.Upgrade(c.w, c.r, nil)
	if err != nil {
		return errors.Wrap(err, "websocket upgrade")
	}
	c.conn = conn
	return nil
}

func (c *wsConn) Send(v any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return errors.New("connection is closed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

func (c *wsConn) Close(code realtime.CloseCode, reason string) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}
	if c.conn == nil {
		return nil // Never accepted
	}

	c.writeMu.Lock()
	closeMessage := websocket.FormatCloseMessage(int(code), reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *wsConn) subscribe(subscriptionType string) {
	c.subsMu.Lock()
	c.subs[subscriptionType] = struct{}{}
	c.subsMu.Unlock()
}

func (c *wsConn) unsubscribe(subscriptionType string) {
	c.subsMu.Lock()
	delete(c.subs, subscriptionType)
	c.subsMu.Unlock()
}

// Subscriptions returns the subscription types the client asked for.
func (c *wsConn) Subscriptions() []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	subs := make([]string, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	return subs
}

// controlMessage is the client-to-server control frame.
type controlMessage struct {
	Type             string `json:"type"`
	SubscriptionType string `json:"subscription_type,omitempty"`
}

// handleWebSocket admits one client: resolve identity, hand the un-upgraded
// connection to the registry, then run the control-message read loop until
// the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")

	userID, perms, err := s.auth(r)
	if err != nil {
		s.logger.Warn("authentication rejected", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn := newWSConn(w, r, &s.upgrader, s.config.WriteTimeout)
	info, err := s.manager.Connect(r.Context(), conn, userID, roomID, perms)
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrRoomFull):
			// Session was accepted and closed with a capacity reason code.
			s.logger.Warn("connection rejected: room full", zap.String("room_id", roomID))
		case conn.conn == nil:
			// Validation failed before the upgrade; answer over HTTP.
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.logger.Error("connect failed", zap.Error(err))
			_ = conn.Close(realtime.CloseNormal, "connect failed")
		}
		return
	}

	s.readLoop(conn, info)
}

// readLoop consumes client control frames. Unknown or malformed frames are
// logged and ignored; only a read error ends the session.
func (s *Server) readLoop(conn *wsConn, info *realtime.ConnectionInfo) {
	defer func() {
		s.manager.Disconnect(conn)
		_ = conn.Close(realtime.CloseNormal, "session ended")
	}()

	for {
		if s.config.ReadTimeout > 0 {
			_ = conn.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read loop ended", zap.String("user_id", info.UserID), zap.Error(err))
			}
			return
		}

		s.manager.Touch(conn)

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("ignoring malformed control message",
				zap.String("user_id", info.UserID),
				zap.Error(err))
			continue
		}

		switch msg.Type {
		case "ping":
			if err := conn.Send(realtime.NewPong()); err != nil {
				s.logger.Debug("pong send failed", zap.Error(err))
			}
		case "subscribe":
			conn.subscribe(msg.SubscriptionType)
		case "unsubscribe":
			conn.unsubscribe(msg.SubscriptionType)
		default:
			s.logger.Debug("ignoring unknown control message",
				zap.String("user_id", info.UserID),
				zap.String("type", msg.Type))
		}
	}
}
