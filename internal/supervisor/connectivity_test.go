package supervisor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
)

type errTransport struct{}

func (errTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("offline")
}

// stubChecker probes through dialOK and never touches the real network.
func stubChecker(dialOK func() bool) (*ConnectivityChecker, *atomic.Int32) {
	var calls atomic.Int32
	checker := NewConnectivityChecker(common.GetLogger())
	checker.client = &http.Client{Transport: errTransport{}}
	checker.dialFn = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		calls.Add(1)
		if !dialOK() {
			return nil, errors.New("dial refused")
		}
		c1, c2 := net.Pipe()
		go c2.Close()
		return c1, nil
	}
	return checker, &calls
}

func TestWaitStableReturnsImmediatelyWhenOnline(t *testing.T) {
	checker, calls := stubChecker(func() bool { return true })

	done := make(chan bool, 1)
	go func() { done <- checker.WaitStable(context.Background(), time.Minute) }()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitStable did not return on a healthy first probe")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitStableRequiresStreakAfterOffline(t *testing.T) {
	var probes atomic.Int32
	checker, calls := stubChecker(func() bool {
		// First two probes fail, the rest succeed
		return probes.Add(1) > 2
	})

	ok := checker.WaitStable(context.Background(), time.Millisecond)
	require.True(t, ok)

	// 2 failures, then requiredGoodProbe consecutive successes
	assert.Equal(t, int32(2+requiredGoodProbe), calls.Load())
}

func TestWaitStableStopsOnCancel(t *testing.T) {
	checker, _ := stubChecker(func() bool { return false })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, checker.WaitStable(ctx, time.Minute))
}
