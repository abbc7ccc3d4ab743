// PlayClaw — dashboard API server.
// Serves REST endpoints + WebSocket for live bus traffic.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/capture"
	"github.com/grvsrs/playclaw/pkg/config"
	"github.com/grvsrs/playclaw/pkg/logger"
)

// StatusSource is the server's view of the capture loop.
type StatusSource interface {
	Status(ctx context.Context) capture.Status
}

// Server is the HTTP API server for the PlayClaw dashboard.
type Server struct {
	cfg       config.GatewayConfig
	bus       *bus.MessageBus
	capture   StatusSource
	wsHub     *WSHub
	bridge    *EventBridge
	startTime time.Time
	server    *http.Server
}

// NewServer wires the server, hub, and event bridge. capture may be nil
// when the loop failed to start; status then reports not running.
func NewServer(cfg config.GatewayConfig, mb *bus.MessageBus, cap StatusSource) *Server {
	s := &Server{
		cfg:       cfg,
		bus:       mb,
		capture:   cap,
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.bridge = NewEventBridge(mb, s.wsHub)
	return s
}

// Start attaches the bridge and begins listening. It returns once the
// listener is up; the hub runs until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.bridge.Attach(); err != nil {
		return err
	}
	go s.wsHub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/ws", s.wsHub.HandleWebSocket)

	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.InfoCF("api", "Dashboard listening", map[string]interface{}{"addr": s.cfg.Addr()})
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("api", "Dashboard server failed", map[string]interface{}{"err": err.Error()})
		}
	}()
	return nil
}

// Stop detaches the bridge and shuts the listener down within ctx's
// deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.bridge.Detach()
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown dashboard server: %w", err)
	}
	return nil
}

func (s *Server) captureStatus() capture.Status {
	if s.capture == nil {
		return capture.Status{State: "absent"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.capture.Status(ctx)
}

// recentHistory returns the latest non-gif messages for viewer catch-up;
// gif payloads are heavy and replayed live instead.
func (s *Server) recentHistory() []bus.Message {
	out := make([]bus.Message, 0, 20)
	for _, msg := range s.bus.History("", 50) {
		if msg.Type == bus.TypeGIF {
			continue
		}
		out = append(out, msg)
	}
	if len(out) > 20 {
		out = out[len(out)-20:]
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.bus.HealthCheck()
	status := http.StatusOK
	if !health.Running {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"bus":            health,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capture": s.captureStatus(),
		"bus":     s.bus.Stats(),
		"viewers": s.wsHub.ClientCount(),
	})
}

// handleMessages serves bus history: ?type= filters, ?limit= bounds
// (default 20). GIF data is elided to keep responses light.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	typeFilter := bus.Type(r.URL.Query().Get("type"))

	msgs := s.bus.History(typeFilter, limit)
	for i, msg := range msgs {
		if gifContent, ok := msg.Content.(bus.GIFContent); ok {
			gifContent.Data = nil
			msgs[i].Content = gifContent
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(msgs),
		"messages": msgs,
	})
}
