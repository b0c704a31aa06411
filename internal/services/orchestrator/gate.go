package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
)

// Gate blocks pipeline runs until the network looks reachable. It only ever
// delays; the only error it returns is context cancellation.
type Gate struct {
	url     string
	backoff time.Duration
	client  *http.Client
	logger  arbor.ILogger
}

func NewGate(config *common.OrchestratorConfig, logger arbor.ILogger) *Gate {
	return &Gate{
		url:     config.GateURL,
		backoff: time.Duration(config.GateBackoffMin) * time.Minute,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// Wait probes the gate URL until a response arrives, backing off between
// failed attempts.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		if g.probe(ctx) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		g.logger.Warn().
			Str("url", g.url).
			Str("backoff", g.backoff.String()).
			Msg("Connectivity probe failed, waiting before retry")

		timer := time.NewTimer(g.backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (g *Gate) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.url, nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
