// Package server exposes the worker's status endpoints: a JSON health check
// and a websocket stream of pipeline progress events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local status endpoint
	},
}

// Server is the worker-embedded status HTTP server.
type Server struct {
	hub    *Hub
	config *common.ServerConfig
	logger arbor.ILogger
	http   *http.Server

	mu        sync.RWMutex
	startTime time.Time
	lastRun   time.Time
	counts    map[string]int
}

func NewServer(hub *Hub, config *common.ServerConfig, logger arbor.ILogger) *Server {
	s := &Server{
		hub:       hub,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
		counts:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: mux,
	}
	return s
}

// Start runs the listener in a goroutine. Errors other than a clean close are
// logged, not fatal: the pipeline outlives a broken status port.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("Status server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warn().Err(err).Msg("Status server stopped")
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Observe updates the health counters from a pipeline event. Wired between
// the orchestrator and the hub so /healthz reflects pipeline progress.
func (s *Server) Observe(event models.PipelineEvent) {
	s.mu.Lock()
	s.counts[event.Type] += event.Count
	if event.Type == models.EventRunCompleted {
		s.lastRun = event.Timestamp
	}
	s.mu.Unlock()

	s.hub.Publish(event)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	payload := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
		"last_run": s.lastRun.Format(time.RFC3339),
		"counts":   s.counts,
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write health response")
	}
}

// handleWebSocket streams pipeline events to one client until it disconnects
// or falls too far behind.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	events := s.hub.register()
	defer func() {
		s.hub.unregister(events)
		conn.Close()
	}()

	// Reader goroutine detects disconnects; its only job is to unblock the
	// writer loop below.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Failed to marshal pipeline event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
