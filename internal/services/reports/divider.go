// Package reports assigns deterministic report ids to categorized
// announcements and writes the master and per-category collections.
package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

// reportCategories is the closed, ordered set of report-bearing categories.
var reportCategories = []string{
	models.CategoryInvestorPresentation,
	models.CategoryAnnualReport,
	models.CategoryCreditRating,
	models.CategoryEarningsCall,
}

// Service implements the Divider interface.
type Service struct {
	announcements interfaces.AnnouncementStorage
	reports       interfaces.ReportStorage
	config        *common.ReportsConfig
	logger        arbor.ILogger
	now           func() time.Time
}

// NewService creates a report divider.
func NewService(announcements interfaces.AnnouncementStorage, reports interfaces.ReportStorage, config *common.ReportsConfig, logger arbor.ILogger) *Service {
	return &Service{
		announcements: announcements,
		reports:       reports,
		config:        config,
		logger:        logger,
		now:           time.Now,
	}
}

// Divide bulk-inserts the canonical batch into AllAnnouncements (duplicate
// keys are benign skips) and derives per-category report rows with dense
// ordinal report ids.
func (s *Service) Divide(ctx context.Context, batch []*models.Announcement, watermark string) (interfaces.DivideResult, error) {
	inserted, err := s.announcements.InsertMany(ctx, batch, s.config.InsertBatch)
	result := interfaces.DivideResult{Announcements: inserted}
	if err != nil {
		return result, fmt.Errorf("failed to insert announcements: %w", err)
	}

	s.logger.Info().
		Int("inserted", inserted.Inserted).
		Int("skipped", inserted.Skipped).
		Msg("Canonical announcements inserted")

	reports, err := s.divideReports(ctx, batch, watermark)
	result.Reports = reports
	if err != nil {
		return result, err
	}
	return result, nil
}

// Recheck re-drives the report pass from stored announcements with
// Tradedate >= since, repairing report rows missed by earlier crashed runs.
func (s *Service) Recheck(ctx context.Context, since time.Time) (int, error) {
	watermark := since.Format(models.TradedateCanonicalLayout)
	stored, err := s.announcements.ListSince(ctx, watermark)
	if err != nil {
		return 0, fmt.Errorf("failed to load announcements for recheck: %w", err)
	}

	inserted, err := s.divideReports(ctx, stored, watermark)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("since", watermark).
		Int("candidates", len(stored)).
		Int("repaired", inserted).
		Msg("Report recheck complete")

	return inserted, nil
}

// divideReports runs the per-category report pass over a canonical batch.
func (s *Service) divideReports(ctx context.Context, batch []*models.Announcement, watermark string) (int, error) {
	totalInserted := 0
	for _, category := range reportCategories {
		existing, err := s.reports.NewsIDsByTypeSince(ctx, category, watermark)
		if err != nil {
			return totalInserted, fmt.Errorf("failed to load existing %s report ids: %w", category, err)
		}

		var candidates []*models.Announcement
		for _, ann := range batch {
			if ann.Category != category {
				continue
			}
			if _, seen := existing[ann.NewsID]; seen {
				continue
			}
			candidates = append(candidates, ann)
		}
		if len(candidates) == 0 {
			continue
		}

		docs, err := s.buildReports(ctx, category, candidates)
		if err != nil {
			return totalInserted, err
		}

		result, err := s.reports.InsertMany(ctx, docs, s.config.InsertBatch)
		if err != nil {
			return totalInserted, fmt.Errorf("failed to insert %s reports: %w", category, err)
		}
		totalInserted += result.Inserted

		s.logger.Info().
			Str("category", category).
			Int("inserted", result.Inserted).
			Int("skipped", result.Skipped).
			Msg("Report rows inserted")
	}
	return totalInserted, nil
}

// reportCandidate pairs an announcement with its parsed trade time and
// arrival index for stable ordering.
type reportCandidate struct {
	ann       *models.Announcement
	tradeTime time.Time
	arrival   int
}

// buildReports groups candidates by report partition, looks up the current
// partition occupancy, and assigns dense ordinals in Tradedate-ascending
// order (ties broken by arrival order).
func (s *Service) buildReports(ctx context.Context, category string, candidates []*models.Announcement) ([]*models.Report, error) {
	shortCode := models.CategoryShortCodes[category]

	groups := make(map[string][]reportCandidate)
	order := make([]string, 0)
	for i, ann := range candidates {
		tradeTime, err := ann.TradeTime()
		if err != nil {
			s.logger.Debug().Err(err).Str("news_id", ann.NewsID).Msg("Skipping report candidate with bad tradedate")
			continue
		}
		year, qtr := FiscalQuarter(tradeTime)
		baseID := models.ReportBaseID(ann.Company, shortCode, year, qtr)
		if _, seen := groups[baseID]; !seen {
			order = append(order, baseID)
		}
		groups[baseID] = append(groups[baseID], reportCandidate{ann: ann, tradeTime: tradeTime, arrival: i})
	}

	documentDate := s.now()
	var docs []*models.Report
	for _, baseID := range order {
		group := groups[baseID]
		first := group[0]
		year, qtr := FiscalQuarter(first.tradeTime)

		start, err := s.reports.CountPartition(ctx, first.ann.Company, category, year, qtr)
		if err != nil {
			return nil, fmt.Errorf("failed to count partition %s: %w", baseID, err)
		}

		sort.SliceStable(group, func(i, j int) bool {
			if group[i].tradeTime.Equal(group[j].tradeTime) {
				return group[i].arrival < group[j].arrival
			}
			return group[i].tradeTime.Before(group[j].tradeTime)
		})

		for i, cand := range group {
			count := start + i + 1
			docs = append(docs, &models.Report{
				ReportID:     fmt.Sprintf("%s_%d", baseID, count),
				Company:      cand.ann.Company,
				Symbolmap:    cand.ann.Symbolmap,
				NewsID:       cand.ann.NewsID,
				ReportType:   category,
				Year:         year,
				Qtr:          qtr,
				Datecode:     cand.tradeTime.Format("20060102"),
				DtTm:         cand.ann.Tradedate,
				URL:          cand.ann.AttachmentURL,
				ReportLine:   cand.ann.NewsBody,
				Count:        count,
				DocumentDate: documentDate,
			})
		}
	}
	return docs, nil
}
