// Package dashboard formats enriched news rows into dashboard entries,
// embeds them, and inserts them with near-duplicate handling per source.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

const financialResultsCategory = "Financial Results"
const boardMeetingSubCategory = "Outcome of Board Meeting"

// DocEmbedder fills embeddings on dashboard entries in place.
type DocEmbedder interface {
	EmbedDocs(ctx context.Context, entries []*models.DashboardEntry) error
}

// Service drives enriched rows into the Dashboard collection.
type Service struct {
	dashboards    interfaces.DashboardStorage
	announcements interfaces.AnnouncementStorage
	embedder      DocEmbedder
	dedup         interfaces.Deduplicator
	events        interfaces.EventPublisher
	logger        arbor.ILogger
	insertBatch   int
	now           func() time.Time

	dedupWG sync.WaitGroup
}

// SetEvents attaches an optional progress event publisher.
func (s *Service) SetEvents(events interfaces.EventPublisher) {
	s.events = events
}

func NewService(dashboards interfaces.DashboardStorage, announcements interfaces.AnnouncementStorage,
	embedder DocEmbedder, dedup interfaces.Deduplicator, insertBatch int, logger arbor.ILogger) *Service {
	return &Service{
		dashboards:    dashboards,
		announcements: announcements,
		embedder:      embedder,
		dedup:         dedup,
		logger:        logger,
		insertBatch:   insertBatch,
		now:           time.Now,
	}
}

// Ingest formats, embeds, and inserts enriched rows from one source. Rows
// without a selected stock or with an unparseable timestamp are skipped.
// Livesquack rows are filtered against existing entries before insert; BSE
// inserts trigger an asynchronous duplicate-marking pass over the affected
// companies.
func (s *Service) Ingest(ctx context.Context, source string, items []*models.EnrichedItem) (interfaces.InsertResult, error) {
	entries := s.format(source, items)
	if len(entries) == 0 {
		return interfaces.InsertResult{}, nil
	}

	if err := s.embedder.EmbedDocs(ctx, entries); err != nil {
		return interfaces.InsertResult{}, fmt.Errorf("failed to embed dashboard entries: %w", err)
	}

	if source == models.SourceLivesquack {
		survivors, err := s.dedup.FilterUnique(ctx, entries)
		if err != nil {
			return interfaces.InsertResult{}, fmt.Errorf("pre-insert filter failed: %w", err)
		}
		entries = survivors
	}
	if len(entries) == 0 {
		return interfaces.InsertResult{}, nil
	}

	result, err := s.dashboards.InsertMany(ctx, entries, s.insertBatch)
	if err != nil {
		return result, fmt.Errorf("failed to insert dashboard entries: %w", err)
	}
	s.logger.Info().Str("source", source).Int("inserted", result.Inserted).Int("skipped", result.Skipped).Msg("Dashboard entries ingested")

	if source == models.SourceBSE && result.Inserted > 0 {
		companies := affectedCompanies(entries)
		s.dedupWG.Add(1)
		go func() {
			defer s.dedupWG.Done()
			marked, err := s.dedup.MarkDuplicates(context.Background(), companies)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Post-insert duplicate marking failed")
				return
			}
			if marked > 0 {
				s.logger.Info().Int("marked", marked).Msg("Dashboard duplicates marked")
				if s.events != nil {
					s.events.Publish(models.PipelineEvent{
						Type:      models.EventDuplicates,
						Count:     marked,
						Timestamp: time.Now(),
					})
				}
			}
		}()
	}
	return result, nil
}

// Wait blocks until in-flight post-insert dedup passes finish. Called on
// shutdown and by tests.
func (s *Service) Wait() {
	s.dedupWG.Wait()
}

// format maps enriched rows to dashboard entries, applying the per-source
// field mapping.
func (s *Service) format(source string, items []*models.EnrichedItem) []*models.DashboardEntry {
	entries := make([]*models.DashboardEntry, 0, len(items))
	for _, item := range items {
		if item.Symbolmap.Selected == "" {
			s.logger.Debug().Str("news_id", item.NewsID).Msg("Skipping row without selected stock")
			continue
		}
		dtTm, err := time.Parse(models.TradedateCanonicalLayout, item.DtTm)
		if err != nil {
			s.logger.Warn().Str("news_id", item.NewsID).Str("dt_tm", item.DtTm).Msg("Skipping row with unparseable timestamp")
			continue
		}

		entry := &models.DashboardEntry{
			NewsID:       item.NewsID,
			Company:      item.Company,
			Stock:        item.Symbolmap.Selected,
			DtTm:         dtTm,
			Category:     item.Category,
			Source:       source,
			Impact:       item.Impact,
			ImpactScore:  item.ImpactScore,
			Sentiment:    item.Sentiment,
			ShortSummary: item.ShortSummary,
			Summary:      item.Summary,
			Symbolmap:    item.Symbolmap,
			Duplicate:    false,
			DocumentDate: s.now(),
		}

		switch source {
		case models.SourceBSE:
			entry.NewsLink = item.PDFLinkLive
			if item.Category == financialResultsCategory && item.SubCategory != "" && item.SubCategory != boardMeetingSubCategory {
				entry.Category = item.SubCategory
			}
		default:
			entry.NewsLink = item.NewsLink
		}
		entries = append(entries, entry)
	}
	return entries
}

func affectedCompanies(entries []*models.DashboardEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	companies := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.Company]; ok {
			continue
		}
		seen[entry.Company] = struct{}{}
		companies = append(companies, entry.Company)
	}
	return companies
}
