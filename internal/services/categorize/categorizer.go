// Package categorize filters raw announcements against the company reference
// set, assigns categories and de-duplicates against previously ingested ids.
package categorize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

// Service implements the Categorizer interface.
type Service struct {
	reference interfaces.ReferenceSet
	storage   interfaces.AnnouncementStorage
	rules     []Rule
	ruleNames map[string]struct{}
	logger    arbor.ILogger
	now       func() time.Time
}

// NewService creates a categorizer over the immutable reference set and the
// announcements collection. Rules are precompiled once at startup.
func NewService(reference interfaces.ReferenceSet, storage interfaces.AnnouncementStorage, rules []Rule, logger arbor.ILogger) *Service {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Service{
		reference: reference,
		storage:   storage,
		rules:     rules,
		ruleNames: categoryNames(rules),
		logger:    logger,
		now:       time.Now,
	}
}

// Run filters the raw batch and produces canonical announcements for records
// not yet ingested since the watermark. The existing-id set is extended as
// records are accepted, so intra-batch duplicates are dropped too.
func (s *Service) Run(ctx context.Context, raw []models.RawAnnouncement, watermark string) ([]*models.Announcement, error) {
	existing, err := s.storage.NewsIDsSince(ctx, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing news ids: %w", err)
	}

	batch := make([]*models.Announcement, 0, len(raw))
	skipped := 0
	for i := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ann, ok := s.categorizeRecord(&raw[i], existing)
		if !ok {
			skipped++
			continue
		}
		existing[ann.NewsID] = struct{}{}
		batch = append(batch, ann)
	}

	s.logger.Info().
		Int("raw", len(raw)).
		Int("categorized", len(batch)).
		Int("skipped", skipped).
		Msg("Categorized announcement batch")

	return batch, nil
}

// categorizeRecord applies the per-record filter and category assignment.
func (s *Service) categorizeRecord(raw *models.RawAnnouncement, existing map[string]struct{}) (*models.Announcement, bool) {
	newsID := raw.NewsID()
	if newsID == "" {
		s.logger.Debug().Str("attachment", raw.AttachmentName).Msg("Skipping record without pdf attachment")
		return nil, false
	}
	if _, seen := existing[newsID]; seen {
		return nil, false
	}

	ref, ok := s.reference.Lookup(raw.ScripCode)
	if !ok {
		s.logger.Debug().Str("scrip_cd", raw.ScripCode).Str("news_id", newsID).Msg("Skipping record with unknown scrip code")
		return nil, false
	}

	tradeTime, err := time.Parse(models.TradedateWireLayout, strings.TrimSpace(raw.Tradedate))
	if err != nil {
		s.logger.Debug().Str("news_id", newsID).Str("tradedate", raw.Tradedate).Msg("Skipping record with unparseable tradedate")
		return nil, false
	}

	return &models.Announcement{
		NewsID:         newsID,
		Company:        ref.Company,
		Symbolmap:      ref.Symbolmap,
		Tradedate:      tradeTime.Format(models.TradedateCanonicalLayout),
		Category:       s.assignCategory(raw),
		ScripCode:      strings.TrimSpace(raw.ScripCode),
		AttachmentName: strings.TrimSpace(raw.AttachmentName),
		HeadLine:       raw.HeadLine,
		NewsBody:       raw.NewsBody,
		Descriptor:     raw.Descriptor,
		AttachmentURL:  raw.AttachmentURL,
		SubCategory:    raw.SubCategory,
		Extra:          raw.Extra,
		DocumentDate:   s.now(),
	}, true
}

// assignCategory picks the first matching category: an exact Descriptor hit,
// then the ordered regex rules, else General.
func (s *Service) assignCategory(raw *models.RawAnnouncement) string {
	descriptor := strings.TrimSpace(raw.Descriptor)
	if _, ok := s.ruleNames[descriptor]; ok {
		return descriptor
	}

	for _, rule := range s.rules {
		if rule.HeadLine != nil && rule.HeadLine.MatchString(raw.HeadLine) {
			return rule.Category
		}
		if rule.NewsBody != nil && rule.NewsBody.MatchString(raw.NewsBody) {
			return rule.Category
		}
	}
	return models.CategoryGeneral
}
