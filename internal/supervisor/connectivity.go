package supervisor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	dnsProbeAddr      = "8.8.8.8:53"
	dnsProbeTimeout   = 3 * time.Second
	httpsProbeURL     = "https://www.google.com"
	requiredGoodProbe = 3
)

// ConnectivityChecker probes the network: a cheap TCP dial to a public DNS
// resolver first, an HTTPS HEAD as fallback for networks that block port 53.
type ConnectivityChecker struct {
	dialFn func(network, addr string, timeout time.Duration) (net.Conn, error)
	client *http.Client
	logger arbor.ILogger
}

func NewConnectivityChecker(logger arbor.ILogger) *ConnectivityChecker {
	return &ConnectivityChecker{
		dialFn: net.DialTimeout,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Online reports whether either probe succeeds.
func (c *ConnectivityChecker) Online(ctx context.Context) bool {
	if conn, err := c.dialFn("tcp", dnsProbeAddr, dnsProbeTimeout); err == nil {
		conn.Close()
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, httpsProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// WaitStable returns once the network is usable. A network that answers the
// first probe is taken as stable immediately; after an offline probe,
// requiredGoodProbe consecutive successes spaced by interval are needed.
// Returns false only on ctx cancellation.
func (c *ConnectivityChecker) WaitStable(ctx context.Context, interval time.Duration) bool {
	if c.Online(ctx) {
		return true
	}
	c.logger.Warn().Msg("Network offline, waiting for stable connectivity")

	good := 0
	for {
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}

		if c.Online(ctx) {
			good++
			if good >= requiredGoodProbe {
				return true
			}
		} else {
			if good > 0 {
				c.logger.Debug().Int("streak", good).Msg("Connectivity streak broken")
			}
			good = 0
		}
	}
}
