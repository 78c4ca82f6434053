// Package server exposes the realtime registry over a WebSocket endpoint,
// plus health and metrics endpoints for operators.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docsync/docsync/internal/core/realtime"
)

// Server is the WebSocket front end for one realtime.Manager.
type Server struct {
	config  Config
	logger  *zap.Logger
	manager *realtime.Manager

	httpServer *http.Server
	upgrader   websocket.Upgrader
	auth       AuthFunc
	running    int32
	group      errgroup.Group
}

// NewServer creates a server around an existing registry. Authentication
// defaults to query-string identity; override it with SetAuthFunc before
// Start.
func NewServer(config Config, manager *realtime.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:  config,
		logger:  logger.With(zap.String("component", "server")),
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.BufferSize,
			WriteBufferSize: config.BufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy belongs to the deployment's proxy layer.
				return true
			},
		},
		auth: queryAuth,
	}
}

// SetAuthFunc replaces the identity resolver. Must be called before Start.
func (s *Server) SetAuthFunc(auth AuthFunc) {
	if auth != nil {
		s.auth = auth
	}
}

// Start begins serving. Non-blocking; the listener runs until Stop.
func (s *Server) Start(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)

	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.group.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("listener error", zap.Error(err))
			return err
		}
		return nil
	})

	s.logger.Info("server started", zap.String("address", addr))
	return nil
}

// Stop shuts the listener down, closes the registry, and waits for the
// background loops to exit.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", zap.Error(err))
	}
	if err := s.manager.Close(); err != nil {
		return errors.Wrap(err, "close registry")
	}
	if err := s.group.Wait(); err != nil {
		return err
	}

	s.logger.Info("server stopped")
	return nil
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy","connections":%d}`, s.manager.ConnectionCount())
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(s.manager.GetMetrics()); err != nil {
		s.logger.Error("metrics encode failed", zap.Error(err))
	}
}
