package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DashboardStorage implements the Dashboard collection on Badger
type DashboardStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDashboardStorage creates a new DashboardStorage instance
func NewDashboardStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DashboardStorage {
	return &DashboardStorage{
		db:     db,
		logger: logger,
	}
}

// InsertMany inserts dashboard entries with duplicate-key skips
func (s *DashboardStorage) InsertMany(ctx context.Context, docs []*models.DashboardEntry, batchSize int) (interfaces.InsertResult, error) {
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
				return result, fmt.Errorf("dashboard news_id is required")
			}
			err := s.db.Store().Insert(doc.NewsID, doc)
			switch {
			case err == nil:
				result.Inserted++
			case isDuplicateKey(err):
				result.Skipped++
			default:
				s.logger.Warn().Err(err).Int("chunk_start", start).Msg("Dashboard insert failed, skipping chunk")
				i = end
			}
		}
	}

	return result, nil
}

// FindEligible returns entries of the given companies eligible for duplicate
// marking: recent, of the given source, not already duplicate, carrying an
// embedding, and not in a skipped category.
func (s *DashboardStorage) FindEligible(ctx context.Context, companies []string, since time.Time, source string, skipCategories []string) ([]*models.DashboardEntry, error) {
	companyKeys := make([]interface{}, len(companies))
	for i, c := range companies {
		companyKeys[i] = c
	}

	var docs []models.DashboardEntry
	query := badgerhold.Where("Company").In(companyKeys...).
		And("DtTm").Ge(since).
		And("Source").Eq(source).
		And("Duplicate").Eq(false)
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to query dashboard entries: %w", err)
	}

	result := make([]*models.DashboardEntry, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		if len(doc.Embedding) == 0 {
			continue
		}
		if slices.Contains(skipCategories, doc.Category) {
			continue
		}
		result = append(result, doc)
	}
	return result, nil
}

// MarkDuplicates flips Duplicate to true for the given news ids and returns
// the number of entries updated.
func (s *DashboardStorage) MarkDuplicates(ctx context.Context, newsIDs []string) (int, error) {
	updated := 0
	for _, id := range newsIDs {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		var doc models.DashboardEntry
		if err := s.db.Store().Get(id, &doc); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return updated, fmt.Errorf("failed to load dashboard entry %s: %w", id, err)
		}
		if doc.Duplicate {
			continue
		}
		doc.Duplicate = true
		if err := s.db.Store().Update(id, &doc); err != nil {
			return updated, fmt.Errorf("failed to mark duplicate %s: %w", id, err)
		}
		updated++
	}
	return updated, nil
}

// MissingNewsIDs returns the subset of newsIDs not present in the collection
func (s *DashboardStorage) MissingNewsIDs(ctx context.Context, newsIDs []string) ([]string, error) {
	var missing []string
	for _, id := range newsIDs {
		var doc models.DashboardEntry
		err := s.db.Store().Get(id, &doc)
		if errors.Is(err, badgerhold.ErrNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check dashboard entry %s: %w", id, err)
		}
	}
	return missing, nil
}

// Get fetches one dashboard entry by news id
func (s *DashboardStorage) Get(ctx context.Context, newsID string) (*models.DashboardEntry, error) {
	var doc models.DashboardEntry
	if err := s.db.Store().Get(newsID, &doc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("dashboard entry not found: %s", newsID)
		}
		return nil, fmt.Errorf("failed to get dashboard entry: %w", err)
	}
	return &doc, nil
}
