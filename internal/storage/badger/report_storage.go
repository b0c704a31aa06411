package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReportStorage implements the AllReports collection on Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

// InsertMany inserts report rows in chunks of batchSize with duplicate-key
// skips, mirroring the announcement insert policy.
func (s *ReportStorage) InsertMany(ctx context.Context, docs []*models.Report, batchSize int) (interfaces.InsertResult, error) {
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
			if doc.ReportID == "" {
				return result, fmt.Errorf("report_id is required")
			}
			err := s.db.Store().Insert(doc.ReportID, doc)
			switch {
			case err == nil:
				result.Inserted++
			case isDuplicateKey(err):
				result.Skipped++
			default:
				s.logger.Warn().Err(err).Int("chunk_start", start).Msg("Report insert failed, skipping chunk")
				i = end
			}
		}
	}

	return result, nil
}

// NewsIDsByTypeSince returns the news ids of reports of the given type with
// DtTm >= watermark.
func (s *ReportStorage) NewsIDsByTypeSince(ctx context.Context, reportType, watermark string) (map[string]struct{}, error) {
	var docs []models.Report
	query := badgerhold.Where("ReportType").Eq(reportType)
	if watermark != "" {
		query = query.And("DtTm").Ge(watermark)
	}
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}

	ids := make(map[string]struct{}, len(docs))
	for i := range docs {
		ids[docs[i].NewsID] = struct{}{}
	}
	return ids, nil
}

// CountPartition returns the current occupancy of one
// (company, type, fiscal year, quarter) partition.
func (s *ReportStorage) CountPartition(ctx context.Context, company, reportType string, year int, qtr string) (int, error) {
	n, err := s.db.Store().Count(&models.Report{},
		badgerhold.Where("Company").Eq(company).
			And("ReportType").Eq(reportType).
			And("Year").Eq(year).
			And("Qtr").Eq(qtr))
	if err != nil {
		return 0, fmt.Errorf("failed to count report partition: %w", err)
	}
	return int(n), nil
}

// ListByCompany returns all reports of one company
func (s *ReportStorage) ListByCompany(ctx context.Context, company string) ([]*models.Report, error) {
	var docs []models.Report
	if err := s.db.Store().Find(&docs, badgerhold.Where("Company").Eq(company)); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	result := make([]*models.Report, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

// Count returns the total number of stored reports
func (s *ReportStorage) Count(ctx context.Context) (int, error) {
	n, err := s.db.Store().Count(&models.Report{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return int(n), nil
}
