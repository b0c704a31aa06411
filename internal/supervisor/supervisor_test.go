package supervisor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/models"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Send(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *captureNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line  string
		level string
	}{
		{"ERR | 12:00:01 | request failed", levelError},
		{"ERROR: something broke", levelError},
		{"FATAL shutdown", levelError},
		{"panic: runtime error: index out of range", levelError},
		{"12:00:01 | ERR | request failed", levelError},
		{"level=error msg=boom", levelError},
		{"WRN | 12:00:01 | retrying", levelWarn},
		{"warning: deprecated flag", levelWarn},
		{"level=warn msg=slow", levelWarn},
		{"INF | 12:00:01 | run complete", levelInfo},
		{"plain progress output", levelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, classifyLine(tt.line), tt.line)
	}
}

func TestStderrDigestCollapsesSimilarLines(t *testing.T) {
	notifier := &captureNotifier{}
	monitor := NewStderrMonitor(notifier, 40, 0.90, common.GetLogger())

	// Three near-identical errors differing only in an id, one distinct
	// error, one warning
	monitor.record("ERR failed to fetch day tradedt=20250401 status=502")
	monitor.record("ERR failed to fetch day tradedt=20250402 status=502")
	monitor.record("ERR failed to fetch day tradedt=20250403 status=502")
	monitor.record("ERR embed request failed: context deadline exceeded")
	monitor.record("WRN watermark load failed, using window start")
	monitor.record("INF run complete") // info lines never enter the digest

	monitor.flush(context.Background())

	messages := notifier.all()
	require.Len(t, messages, 1)
	digest := messages[0]
	assert.Contains(t, digest, "5 error/warning line(s)")
	assert.Contains(t, digest, "3x ERR failed to fetch day tradedt=20250401 status=502")
	assert.Contains(t, digest, "1x ERR embed request failed")
	assert.Contains(t, digest, "1x WRN watermark load failed")

	// Nothing pending after a flush
	monitor.flush(context.Background())
	assert.Len(t, notifier.all(), 1)
}

func TestStderrTailIsBounded(t *testing.T) {
	monitor := NewStderrMonitor(&captureNotifier{}, 3, 0.90, common.GetLogger())
	for _, line := range []string{"one", "two", "three", "four", "five"} {
		monitor.record(line)
	}
	assert.Equal(t, []string{"three", "four", "five"}, monitor.Tail())
}

func TestHeartbeatWriteAndRestartCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.status")
	hb := NewHeartbeat(path, common.GetLogger())

	hb.Write()
	status, err := ReadHeartbeat(path)
	require.NoError(t, err)
	assert.True(t, status.SupervisorRunning)
	assert.Equal(t, 0, status.RestartCount)
	assert.NotZero(t, status.Timestamp)

	hb.Update(func(s *models.HeartbeatStatus) {
		s.RestartCount++
		s.ChildRunning = false
		s.ChildExitCode = 2
	})
	hb.Write()

	status, err = ReadHeartbeat(path)
	require.NoError(t, err)
	assert.Equal(t, 1, status.RestartCount)
	assert.Equal(t, 2, status.ChildExitCode)

	// No temp file left behind after the rename
	_, err = ReadHeartbeat(path + ".tmp")
	assert.Error(t, err)
}

func TestExitNotificationText(t *testing.T) {
	msg := ExitNotification(2, []string{"ERR storage unavailable", "panic: nil pointer"})
	assert.True(t, strings.HasPrefix(msg, "Worker exited. Exit code 2"), msg)
	assert.Contains(t, msg, "Last stderr output:")
	assert.Contains(t, msg, "panic: nil pointer")

	// No tail section when stderr was quiet
	msg = ExitNotification(0, nil)
	assert.Equal(t, "Worker exited. Exit code 0", msg)
}
