package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AnnouncementStorage implements the AllAnnouncements collection on Badger
type AnnouncementStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAnnouncementStorage creates a new AnnouncementStorage instance
func NewAnnouncementStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AnnouncementStorage {
	return &AnnouncementStorage{
		db:     db,
		logger: logger,
	}
}

// InsertMany inserts canonical announcements in chunks of batchSize.
// Duplicate keys are counted as skips; other errors end the current chunk
// and processing continues with the next one.
func (s *AnnouncementStorage) InsertMany(ctx context.Context, docs []*models.Announcement, batchSize int) (interfaces.InsertResult, error) {
	var result interfaces.InsertResult
	if batchSize <= 0 {
		batchSize = 1000
	}

	for start := 0; start < len(docs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := min(start+batchSize, len(docs))

		for i := start; i < end; i++ {
			doc := docs[i]
			if doc.NewsID == "" {
				return result, fmt.Errorf("announcement news_id is required")
			}
			err := s.db.Store().Insert(doc.NewsID, doc)
			switch {
			case err == nil:
				result.Inserted++
			case isDuplicateKey(err):
				result.Skipped++
			default:
				s.logger.Warn().Err(err).Int("chunk_start", start).Msg("Announcement insert failed, skipping chunk")
				i = end // Abandon this chunk, continue with the next
			}
		}
	}

	return result, nil
}

// NewsIDsSince returns the set of news ids with Tradedate >= watermark
func (s *AnnouncementStorage) NewsIDsSince(ctx context.Context, watermark string) (map[string]struct{}, error) {
	docs, err := s.ListSince(ctx, watermark)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		ids[doc.NewsID] = struct{}{}
	}
	return ids, nil
}

// ListSince returns announcements with Tradedate >= watermark. An empty
// watermark returns the whole collection.
func (s *AnnouncementStorage) ListSince(ctx context.Context, watermark string) ([]*models.Announcement, error) {
	var docs []models.Announcement
	query := &badgerhold.Query{}
	if watermark != "" {
		query = badgerhold.Where("Tradedate").Ge(watermark)
	}
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}

	result := make([]*models.Announcement, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

// Get fetches one announcement by news id
func (s *AnnouncementStorage) Get(ctx context.Context, newsID string) (*models.Announcement, error) {
	var doc models.Announcement
	if err := s.db.Store().Get(newsID, &doc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("announcement not found: %s", newsID)
		}
		return nil, fmt.Errorf("failed to get announcement: %w", err)
	}
	return &doc, nil
}

// Count returns the total number of stored announcements
func (s *AnnouncementStorage) Count(ctx context.Context) (int, error) {
	n, err := s.db.Store().Count(&models.Announcement{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count announcements: %w", err)
	}
	return int(n), nil
}

// isDuplicateKey reports whether an insert failed on an existing key or a
// unique index violation. Both are benign skips for idempotent inserts.
func isDuplicateKey(err error) bool {
	return errors.Is(err, badgerhold.ErrKeyExists) || errors.Is(err, badgerhold.ErrUniqueExists)
}
