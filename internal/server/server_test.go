package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/models"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	hub := NewHub(common.GetLogger())
	srv := NewServer(hub, &common.ServerConfig{Host: "localhost", Port: 0}, common.GetLogger())

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealthz(t *testing.T) {
	srv, ts := newTestServer(t)

	srv.Observe(models.PipelineEvent{Type: models.EventInserted, Count: 7, Timestamp: time.Now()})
	srv.Observe(models.PipelineEvent{Type: models.EventRunCompleted, Timestamp: time.Now()})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Status string         `json:"status"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, 7, payload.Counts[models.EventInserted])
}

func TestWebSocketStreamsEvents(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for registration before publishing
	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	srv.Observe(models.PipelineEvent{RunID: "r1", Type: models.EventFetched, Count: 3, Timestamp: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event models.PipelineEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, models.EventFetched, event.Type)
	assert.Equal(t, 3, event.Count)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub(common.GetLogger())
	ch := hub.register()
	require.Equal(t, 1, hub.ClientCount())

	// Nobody drains the channel; once the buffer fills the client is dropped
	for i := 0; i < clientBuffer+1; i++ {
		hub.Publish(models.PipelineEvent{Type: models.EventFetched, Count: i})
	}
	assert.Equal(t, 0, hub.ClientCount())

	// The channel is closed so a reader unblocks
	drained := 0
	for range ch {
		drained++
	}
	assert.Equal(t, clientBuffer, drained)
}
