package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ladder-mm/internal/config"
	"ladder-mm/internal/tickloop"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server runs the HTTP/WebSocket status host.
type Server struct {
	cfg    config.StatusConfig
	hub    *Hub
	server *http.Server
	logger *slog.Logger
	events <-chan tickloop.TickEvent
}

// NewServer builds a status host broadcasting events read from the given
// channel. The channel is typically fed by a supervisor fanning in every
// worker's tick events.
func NewServer(cfg config.StatusConfig, events <-chan tickloop.TickEvent, logger *slog.Logger) *Server {
	hub := NewHub(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/api/status", handleStatus(hub))
	mux.HandleFunc("/ws", handleWebSocket(hub, logger))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:    cfg,
		hub:    hub,
		server: server,
		logger: logger.With("component", "status-server"),
		events: events,
	}
}

// Start runs the hub and event consumer, then blocks serving HTTP until
// Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("status server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("stopping status server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) consumeEvents() {
	if s.events == nil {
		return
	}
	for event := range s.events {
		s.hub.BroadcastTick(event)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleStatus(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"connectedClients": hub.ClientCount()})
	}
}

func handleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "error", err)
			return
		}
		NewClient(hub, conn)
	}
}
