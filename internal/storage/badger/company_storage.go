package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

// CompanyStorage implements the CompanyMaster collection on Badger.
// It caches the last successfully loaded reference set so the pipeline can
// start when the reference source is unreachable.
type CompanyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCompanyStorage creates a new CompanyStorage instance
func NewCompanyStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CompanyStorage {
	return &CompanyStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceAll replaces the cached company master with the given records
func (s *CompanyStorage) ReplaceAll(ctx context.Context, records []*models.CompanyRecord) error {
	if err := s.db.Store().DeleteMatching(&models.CompanyRecord{}, nil); err != nil {
		return fmt.Errorf("failed to clear company master: %w", err)
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.BSECode == "" {
			continue
		}
		if err := s.db.Store().Upsert(rec.BSECode, rec); err != nil {
			return fmt.Errorf("failed to store company %s: %w", rec.BSECode, err)
		}
	}
	s.logger.Debug().Int("count", len(records)).Msg("Company master cached")
	return nil
}

// All returns the cached company master
func (s *CompanyStorage) All(ctx context.Context) ([]*models.CompanyRecord, error) {
	var docs []models.CompanyRecord
	if err := s.db.Store().Find(&docs, nil); err != nil {
		return nil, fmt.Errorf("failed to load company master: %w", err)
	}
	result := make([]*models.CompanyRecord, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}
