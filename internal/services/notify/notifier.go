// Package notify provides write-only notification sinks. Callers treat
// delivery as best-effort: a sink error is logged and never propagated into
// pipeline failures.
package notify

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
)

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger arbor.ILogger
}

func NewLogNotifier(logger arbor.ILogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg string) error {
	n.logger.Info().Str("notification", msg).Msg("Notification")
	return nil
}

// MultiNotifier fans one message out to every sink. Individual sink errors
// are logged; Send itself never fails.
type MultiNotifier struct {
	sinks  []interfaces.Notifier
	logger arbor.ILogger
}

func NewMultiNotifier(logger arbor.ILogger, sinks ...interfaces.Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks, logger: logger}
}

func (n *MultiNotifier) Send(ctx context.Context, msg string) error {
	for _, sink := range n.sinks {
		if err := sink.Send(ctx, msg); err != nil {
			n.logger.Warn().Err(err).Msg("Notification sink failed")
		}
	}
	return nil
}
