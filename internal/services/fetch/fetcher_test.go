package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
)

func testConfig(url string) *common.BSEConfig {
	return &common.BSEConfig{
		URL:              url,
		LiveParams:       map[string]any{"strCat": "-1"},
		HistParams:       map[string]any{"strCat": "-1"},
		TimeoutSec:       5,
		RetryCount:       3,
		RetryDelaySec:    2,
		ConcurrencyLimit: 20,
		RateLimit:        100,
		LiveDays:         3,
		HistMinDate:      "2023-11-01",
		HistMaxDate:      "2025-10-31",
	}
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := testConfig(server.URL)
	client := NewClient(server.URL, WithRateLimit(config.RateLimit))
	svc := NewService(client, config, common.GetLogger())

	var delays []time.Duration
	svc.sleepFn = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return svc, &delays
}

func TestBuildPayload(t *testing.T) {
	day := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)
	ref := time.Date(2025, 4, 7, 9, 3, 7, 0, time.UTC)

	payload := BuildPayload(map[string]any{"strCat": "-1"}, day, ref)

	assert.Equal(t, "-1", payload["strCat"])
	assert.Equal(t, "20250405", payload["tradedt"])
	assert.Equal(t, "09", payload["hr"])
	assert.Equal(t, "03", payload["min"])
	assert.Equal(t, "07", payload["sec"])
}

func TestFetchNoRecordFoundIsEmptyNotError(t *testing.T) {
	var calls atomic.Int32
	svc, delays := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"Error_Msg":"No Record found"}`))
	}))
	svc.now = func() time.Time { return time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC) }

	records, err := svc.FetchLive(context.Background(), time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, records)
	// Single-day request (lastSeen == today), no retries
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *delays)
}

func TestFetchRetriesWithBackoffThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	svc, delays := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"SCRIP_CD":500325,"AttachmentName":"doc1.pdf","HeadLine":"h","Tradedate":"05/04/2025 10:00:00"}]`))
	}))
	svc.now = func() time.Time { return time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC) }

	records, err := svc.FetchLive(context.Background(), time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc1.pdf", records[0].AttachmentName)
	assert.Equal(t, "500325", records[0].ScripCode)

	// Two failures: backoff sequence is delay, then 2*delay
	require.Len(t, *delays, 2)
	assert.Equal(t, 2*time.Second, (*delays)[0])
	assert.Equal(t, 4*time.Second, (*delays)[1])
}

func TestFetchRetriesExhaustedReturnsEmpty(t *testing.T) {
	var calls atomic.Int32
	svc, delays := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	svc.now = func() time.Time { return time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC) }

	records, err := svc.FetchLive(context.Background(), time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *delays, 2)
}

func TestFetchAnomalousObjectIsRetried(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"something":"else"}`))
	}))
	svc.now = func() time.Time { return time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC) }

	records, err := svc.FetchLive(context.Background(), time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchHistoricalClampAndSwap(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))

	// Inverted bounds outside the configured range: swapped then clamped to
	// [2023-11-01, 2025-10-31]
	from := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 10, 29, 0, 0, 0, 0, time.UTC)

	records, err := svc.FetchHistorical(context.Background(), from, to)
	require.NoError(t, err)
	assert.Empty(t, records)
	// 2025-10-29 .. 2025-10-31 inclusive
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchLiveWindow(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	svc.now = func() time.Time { return time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC) }

	// Zero lastSeen: full rolling window of live_days days
	_, err := svc.FetchLive(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	// lastSeen inside the window: start there
	calls.Store(0)
	_, err = svc.FetchLive(context.Background(), time.Date(2025, 4, 6, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	// lastSeen in the future: clamp to a single-day request
	calls.Store(0)
	_, err = svc.FetchLive(context.Background(), time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
