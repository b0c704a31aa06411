// Package supervisor keeps the worker process alive: it spawns the worker,
// watches connectivity, digests its stderr, and restarts it on exit.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/models"
)

// Heartbeat owns the supervisor status record and rewrites it atomically to
// the heartbeat file. All mutation goes through the mutex.
type Heartbeat struct {
	mu     sync.Mutex
	status models.HeartbeatStatus
	path   string
	logger arbor.ILogger
}

func NewHeartbeat(path string, logger arbor.ILogger) *Heartbeat {
	return &Heartbeat{
		path:   path,
		logger: logger,
		status: models.HeartbeatStatus{
			SupervisorPID:     os.Getpid(),
			SupervisorRunning: true,
			StartTime:         time.Now(),
		},
	}
}

// Run rewrites the heartbeat file every interval until ctx is cancelled, then
// writes a final record with supervisor_running=false.
func (h *Heartbeat) Run(ctx context.Context, interval time.Duration) {
	h.Write()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Write()
		case <-ctx.Done():
			h.Update(func(s *models.HeartbeatStatus) {
				s.SupervisorRunning = false
			})
			h.Write()
			return
		}
	}
}

// Update applies a mutation to the status record under the lock.
func (h *Heartbeat) Update(fn func(s *models.HeartbeatStatus)) {
	h.mu.Lock()
	fn(&h.status)
	h.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (h *Heartbeat) Snapshot() models.HeartbeatStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Write persists the status atomically: marshal, write to a temp file in the
// same directory, rename over the target.
func (h *Heartbeat) Write() {
	h.mu.Lock()
	h.status.Timestamp = time.Now().Unix()
	data, err := json.Marshal(h.status)
	h.mu.Unlock()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Heartbeat marshal failed")
		return
	}

	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		h.logger.Warn().Err(err).Msg("Heartbeat write failed")
		return
	}
	if err := os.Rename(tmp, h.path); err != nil {
		h.logger.Warn().Err(err).Msg("Heartbeat rename failed")
	}
}

// ReadHeartbeat loads a heartbeat file. Used by tests and operators.
func ReadHeartbeat(path string) (*models.HeartbeatStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status models.HeartbeatStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("invalid heartbeat file %s: %w", path, err)
	}
	return &status, nil
}
