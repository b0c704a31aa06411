package dashboard

import (
	"context"
	"fmt"

	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

// BackfillMissing finds stored announcements from the last `days` days that
// have no dashboard entry yet and drives them through Ingest. The headline
// stands in for the short summary until an enrichment pass rewrites it.
func (s *Service) BackfillMissing(ctx context.Context, days int) (interfaces.InsertResult, error) {
	cutoff := s.now().AddDate(0, 0, -days).Format(models.TradedateCanonicalLayout)
	announcements, err := s.announcements.ListSince(ctx, cutoff)
	if err != nil {
		return interfaces.InsertResult{}, fmt.Errorf("failed to list recent announcements: %w", err)
	}
	if len(announcements) == 0 {
		return interfaces.InsertResult{}, nil
	}

	byNewsID := make(map[string]*models.Announcement, len(announcements))
	newsIDs := make([]string, 0, len(announcements))
	for _, ann := range announcements {
		byNewsID[ann.NewsID] = ann
		newsIDs = append(newsIDs, ann.NewsID)
	}

	missing, err := s.dashboards.MissingNewsIDs(ctx, newsIDs)
	if err != nil {
		return interfaces.InsertResult{}, fmt.Errorf("failed to find missing dashboard entries: %w", err)
	}
	if len(missing) == 0 {
		return interfaces.InsertResult{}, nil
	}
	s.logger.Info().Int("missing", len(missing)).Int("window_days", days).Msg("Backfilling dashboard entries")

	items := make([]*models.EnrichedItem, 0, len(missing))
	for _, newsID := range missing {
		ann := byNewsID[newsID]
		items = append(items, &models.EnrichedItem{
			NewsID:       ann.NewsID,
			Company:      ann.Company,
			Symbolmap:    ann.Symbolmap,
			DtTm:         ann.Tradedate,
			Category:     ann.Category,
			SubCategory:  ann.SubCategory,
			ShortSummary: ann.HeadLine,
			Summary:      ann.NewsBody,
			PDFLinkLive:  ann.AttachmentURL,
		})
	}
	return s.Ingest(ctx, models.SourceBSE, items)
}
