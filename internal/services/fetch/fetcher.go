package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

const dateLayout = "2006-01-02"

// Service fetches raw announcements per trading day with bounded concurrency
// and exponential-backoff retry. A failed day yields an empty result; it
// never aborts the batch.
type Service struct {
	client  *Client
	config  *common.BSEConfig
	logger  arbor.ILogger
	now     func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewService creates a fetcher over one shared API client.
func NewService(client *Client, config *common.BSEConfig, logger arbor.ILogger) *Service {
	return &Service{
		client:  client,
		config:  config,
		logger:  logger,
		now:     time.Now,
		sleepFn: sleepCtx,
	}
}

// FetchHistorical fetches all days in [from, to] inclusive, clamped to the
// configured historical range. Inverted bounds are swapped.
func (s *Service) FetchHistorical(ctx context.Context, from, to time.Time) ([]models.RawAnnouncement, error) {
	if from.After(to) {
		from, to = to, from
	}

	if minDate, err := time.Parse(dateLayout, s.config.HistMinDate); err == nil && from.Before(minDate) {
		from = minDate
	}
	if maxDate, err := time.Parse(dateLayout, s.config.HistMaxDate); err == nil && to.After(maxDate) {
		to = maxDate
	}
	if from.After(to) {
		return nil, nil
	}

	days := daysBetween(truncateDay(from), truncateDay(to))
	midnight := truncateDay(s.now())

	s.logger.Info().
		Str("from", from.Format(dateLayout)).
		Str("to", to.Format(dateLayout)).
		Int("days", len(days)).
		Msg("Fetching historical announcements")

	return s.fetchDays(ctx, days, s.config.HistParams, midnight), nil
}

// FetchLive fetches the rolling window [today-(liveDays-1), today]. When
// lastSeen falls inside the window the fetch starts at lastSeen's day; a
// lastSeen of today collapses to a single-day request.
func (s *Service) FetchLive(ctx context.Context, lastSeen time.Time) ([]models.RawAnnouncement, error) {
	now := s.now()
	today := truncateDay(now)
	windowStart := today.AddDate(0, 0, -(s.config.LiveDays - 1))

	start := windowStart
	if !lastSeen.IsZero() {
		seenDay := truncateDay(lastSeen)
		switch {
		case seenDay.After(today):
			start = today
		case !seenDay.Before(windowStart):
			start = seenDay
		}
	}

	days := daysBetween(start, today)

	s.logger.Info().
		Str("from", start.Format(dateLayout)).
		Str("to", today.Format(dateLayout)).
		Int("days", len(days)).
		Msg("Fetching live announcements")

	return s.fetchDays(ctx, days, s.config.LiveParams, now), nil
}

// fetchDays runs per-day requests concurrently under a semaphore of capacity
// concurrency_limit and concatenates results in unspecified order.
func (s *Service) fetchDays(ctx context.Context, days []time.Time, template map[string]any, ref time.Time) []models.RawAnnouncement {
	sem := make(chan struct{}, s.config.ConcurrencyLimit)
	results := make([]interfaces.DayResult, len(days))

	var wg sync.WaitGroup
	for i, day := range days {
		wg.Add(1)
		go func(i int, day time.Time) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			records := s.fetchDayWithRetry(ctx, day, template, ref)
			results[i] = interfaces.DayResult{Tradedt: day.Format("20060102"), Records: records}
		}(i, day)
	}
	wg.Wait()

	var all []models.RawAnnouncement
	for _, r := range results {
		all = append(all, r.Records...)
	}
	return all
}

// fetchDayWithRetry retries a day up to retry_count attempts with backoff
// doubling from retry_delay_sec. All errors are swallowed to empty after
// exhaustion.
func (s *Service) fetchDayWithRetry(ctx context.Context, day time.Time, template map[string]any, ref time.Time) []models.RawAnnouncement {
	payload := BuildPayload(template, day, ref)
	delay := time.Duration(s.config.RetryDelaySec) * time.Second

	for attempt := 1; attempt <= s.config.RetryCount; attempt++ {
		records, retryable, err := s.client.FetchDay(ctx, payload)
		if err == nil {
			return records
		}
		if !retryable || ctx.Err() != nil {
			s.logger.Warn().Err(err).Str("tradedt", day.Format("20060102")).Msg("Day fetch failed")
			return nil
		}

		s.logger.Warn().
			Err(err).
			Str("tradedt", day.Format("20060102")).
			Int("attempt", attempt).
			Msg("Day fetch failed, will retry")

		if attempt < s.config.RetryCount {
			if err := s.sleepFn(ctx, delay); err != nil {
				return nil
			}
			delay *= 2
		}
	}

	s.logger.Warn().Str("tradedt", day.Format("20060102")).Msg("Day fetch retries exhausted, returning empty")
	return nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
