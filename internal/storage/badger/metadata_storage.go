package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// MetadataStorage implements the MetaDataLastUpdates collection on Badger
type MetadataStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMetadataStorage creates a new MetadataStorage instance
func NewMetadataStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MetadataStorage {
	return &MetadataStorage{
		db:     db,
		logger: logger,
	}
}

// Get fetches pipeline metadata by name; nil when absent
func (s *MetadataStorage) Get(ctx context.Context, name string) (*models.PipelineMeta, error) {
	var meta models.PipelineMeta
	if err := s.db.Store().Get(name, &meta); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get metadata %s: %w", name, err)
	}
	return &meta, nil
}

// Upsert writes pipeline metadata
func (s *MetadataStorage) Upsert(ctx context.Context, meta *models.PipelineMeta) error {
	if meta.Name == "" {
		return fmt.Errorf("metadata name is required")
	}
	meta.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(meta.Name, meta); err != nil {
		return fmt.Errorf("failed to upsert metadata %s: %w", meta.Name, err)
	}
	return nil
}
