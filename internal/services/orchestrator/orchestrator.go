// Package orchestrator sequences the fetch, categorize, divide and dashboard
// hops, one iteration at a time, with a persisted live watermark.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

// livePipelineMeta is the metadata row holding the live watermark.
const livePipelineMeta = "live_pipeline"

// Backfiller is the optional dashboard backfill hop.
type Backfiller interface {
	BackfillMissing(ctx context.Context, days int) (interfaces.InsertResult, error)
}

// Service runs the pipeline in historical or live mode.
type Service struct {
	fetcher     interfaces.Fetcher
	categorizer interfaces.Categorizer
	divider     interfaces.Divider
	backfiller  Backfiller
	metadata    interfaces.MetadataStorage
	notifier    interfaces.Notifier
	events      interfaces.EventPublisher
	gate        *Gate
	exporter    *Exporter
	config      *common.OrchestratorConfig
	liveDays    int
	logger      arbor.ILogger
	now         func() time.Time

	runMu sync.Mutex
}

func NewService(fetcher interfaces.Fetcher, categorizer interfaces.Categorizer, divider interfaces.Divider,
	backfiller Backfiller, metadata interfaces.MetadataStorage, notifier interfaces.Notifier,
	events interfaces.EventPublisher, config *common.OrchestratorConfig, liveDays int, logger arbor.ILogger) *Service {
	s := &Service{
		fetcher:     fetcher,
		categorizer: categorizer,
		divider:     divider,
		backfiller:  backfiller,
		metadata:    metadata,
		notifier:    notifier,
		events:      events,
		gate:        NewGate(config, logger),
		config:      config,
		liveDays:    liveDays,
		logger:      logger,
		now:         time.Now,
	}
	if config.MaintainJSON {
		s.exporter = NewExporter(config.JSONDir, logger)
	}
	return s
}

// RunHistorical executes one gate-fetch-categorize-divide pass over [from, to]
// and returns.
func (s *Service) RunHistorical(ctx context.Context, from, to time.Time) error {
	if err := s.gate.Wait(ctx); err != nil {
		return err
	}

	runID := uuid.NewString()
	s.publish(runID, models.EventRunStarted, 0, "historical")

	raw, err := s.fetcher.FetchHistorical(ctx, from, to)
	if err != nil {
		return s.fail(ctx, runID, fmt.Errorf("historical fetch failed: %w", err))
	}
	s.publish(runID, models.EventFetched, len(raw), "")

	watermark := from.Format(models.TradedateCanonicalLayout)
	if err := s.process(ctx, runID, raw, watermark); err != nil {
		return s.fail(ctx, runID, err)
	}

	s.publish(runID, models.EventRunCompleted, 0, "historical")
	return nil
}

// RunLive starts the cron loop and blocks until ctx is cancelled. The first
// iteration runs immediately.
func (s *Service) RunLive(ctx context.Context) error {
	schedule := fmt.Sprintf("@every %dm", s.config.RunIntervalMin)
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.runLiveOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule live run: %w", err)
	}

	s.logger.Info().Str("schedule", schedule).Msg("Live pipeline started")
	s.runLiveOnce(ctx)
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("Live pipeline stopped")
	return ctx.Err()
}

// runLiveOnce executes a single live iteration. A still-running previous
// iteration makes this one a no-op.
func (s *Service) runLiveOnce(ctx context.Context) {
	if !s.runMu.TryLock() {
		s.logger.Warn().Msg("Previous live iteration still running, skipping")
		return
	}
	defer s.runMu.Unlock()

	if err := ctx.Err(); err != nil {
		return
	}
	if err := s.gate.Wait(ctx); err != nil {
		return
	}

	runID := uuid.NewString()
	runStart := s.now().Truncate(time.Minute)
	watermark := s.loadWatermark(ctx, runStart)

	s.publish(runID, models.EventRunStarted, 0, "live")

	raw, err := s.fetcher.FetchLive(ctx, watermark)
	if err != nil {
		s.fail(ctx, runID, fmt.Errorf("live fetch failed: %w", err))
		return
	}
	s.publish(runID, models.EventFetched, len(raw), "")

	if err := s.process(ctx, runID, raw, watermark.Format(models.TradedateCanonicalLayout)); err != nil {
		s.fail(ctx, runID, err)
		return
	}

	// Repair report rows a crashed earlier run may have skipped
	if repaired, err := s.divider.Recheck(ctx, runStart.AddDate(0, 0, -(s.liveDays-1))); err != nil {
		s.logger.Warn().Err(err).Msg("Report recheck failed")
	} else if repaired > 0 {
		s.publish(runID, models.EventReports, repaired, "recheck")
	}

	if s.backfiller != nil && s.config.BackfillDays > 0 {
		result, err := s.backfiller.BackfillMissing(ctx, s.config.BackfillDays)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dashboard backfill failed")
		} else if result.Inserted > 0 {
			s.publish(runID, models.EventInserted, result.Inserted, "dashboard backfill")
		}
	}

	s.persistWatermark(ctx, runStart)
	s.touchHeartbeat()
	s.publish(runID, models.EventRunCompleted, 0, "live")
}

// process runs categorize and divide over one raw batch.
func (s *Service) process(ctx context.Context, runID string, raw []models.RawAnnouncement, watermark string) error {
	batch, err := s.categorizer.Run(ctx, raw, watermark)
	if err != nil {
		return fmt.Errorf("categorize failed: %w", err)
	}
	s.publish(runID, models.EventCategorized, len(batch), "")

	if s.exporter != nil {
		s.exporter.AppendAnnouncements(batch)
	}

	result, err := s.divider.Divide(ctx, batch, watermark)
	if err != nil {
		return fmt.Errorf("divide failed: %w", err)
	}
	s.publish(runID, models.EventInserted, result.Announcements.Inserted, "")
	s.publish(runID, models.EventReports, result.Reports, "")
	return nil
}

// loadWatermark restores the persisted live watermark, defaulting to the
// start of the live window.
func (s *Service) loadWatermark(ctx context.Context, runStart time.Time) time.Time {
	fallback := runStart.AddDate(0, 0, -(s.liveDays - 1))

	meta, err := s.metadata.Get(ctx, livePipelineMeta)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Watermark load failed, using window start")
		return fallback
	}
	if meta == nil || meta.Watermark == "" {
		return fallback
	}
	t, err := time.Parse(models.TradedateCanonicalLayout, meta.Watermark)
	if err != nil {
		s.logger.Warn().Str("watermark", meta.Watermark).Msg("Stored watermark unparseable, using window start")
		return fallback
	}
	return t
}

func (s *Service) persistWatermark(ctx context.Context, runStart time.Time) {
	err := s.metadata.Upsert(ctx, &models.PipelineMeta{
		Name:      livePipelineMeta,
		LastRun:   s.now(),
		Watermark: runStart.Format(models.TradedateCanonicalLayout),
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Watermark persist failed")
	}
}

// touchHeartbeat rewrites the worker liveness file read by the supervisor.
func (s *Service) touchHeartbeat() {
	if s.config.HeartbeatFile == "" {
		return
	}
	payload := []byte(s.now().UTC().Format(time.RFC3339) + "\n")
	tmp := s.config.HeartbeatFile + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		s.logger.Warn().Err(err).Msg("Worker heartbeat write failed")
		return
	}
	if err := os.Rename(tmp, s.config.HeartbeatFile); err != nil {
		s.logger.Warn().Err(err).Msg("Worker heartbeat rename failed")
	}
}

func (s *Service) publish(runID, eventType string, count int, message string) {
	if s.events == nil {
		return
	}
	s.events.Publish(models.PipelineEvent{
		RunID:     runID,
		Type:      eventType,
		Count:     count,
		Message:   message,
		Timestamp: s.now(),
	})
}

// fail logs, notifies and publishes a failed run. The notifier error is
// ignored; notification must never mask the pipeline error.
func (s *Service) fail(ctx context.Context, runID string, err error) error {
	s.logger.Error().Err(err).Msg("Pipeline run failed")
	s.publish(runID, models.EventRunFailed, 0, err.Error())
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, fmt.Sprintf("Pipeline run failed: %v", err))
	}
	return err
}
