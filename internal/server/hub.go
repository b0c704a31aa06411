package server

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/models"
)

const clientBuffer = 16

// Hub fans pipeline events out to connected websocket clients. Each client
// gets a buffered channel; a client that cannot keep up is dropped rather
// than allowed to stall the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan models.PipelineEvent]struct{}
	logger  arbor.ILogger
}

func NewHub(logger arbor.ILogger) *Hub {
	return &Hub{
		clients: make(map[chan models.PipelineEvent]struct{}),
		logger:  logger,
	}
}

// Publish implements the EventPublisher interface. Never blocks.
func (h *Hub) Publish(event models.PipelineEvent) {
	h.mu.RLock()
	var slow []chan models.PipelineEvent
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			slow = append(slow, ch)
		}
	}
	h.mu.RUnlock()

	for _, ch := range slow {
		h.logger.Warn().Msg("Dropping slow websocket client")
		h.unregister(ch)
	}
}

// register adds a client and returns its event channel.
func (h *Hub) register() chan models.PipelineEvent {
	ch := make(chan models.PipelineEvent, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", count).Msg("Websocket client connected")
	return ch
}

func (h *Hub) unregister(ch chan models.PipelineEvent) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", count).Msg("Websocket client disconnected")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
