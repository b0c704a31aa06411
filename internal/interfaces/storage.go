package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/bsewire/internal/models"
)

// InsertResult reports the outcome of a bulk insert where duplicate keys are
// benign skips.
type InsertResult struct {
	Inserted int
	Skipped  int
}

// AnnouncementStorage is the AllAnnouncements collection. Unique on NewsID,
// indexed on Tradedate.
type AnnouncementStorage interface {
	InsertMany(ctx context.Context, docs []*models.Announcement, batchSize int) (InsertResult, error)
	NewsIDsSince(ctx context.Context, watermark string) (map[string]struct{}, error)
	ListSince(ctx context.Context, watermark string) ([]*models.Announcement, error)
	Get(ctx context.Context, newsID string) (*models.Announcement, error)
	Count(ctx context.Context) (int, error)
}

// ReportStorage is the AllReports collection. Unique on ReportID.
type ReportStorage interface {
	InsertMany(ctx context.Context, docs []*models.Report, batchSize int) (InsertResult, error)
	NewsIDsByTypeSince(ctx context.Context, reportType, watermark string) (map[string]struct{}, error)
	CountPartition(ctx context.Context, company, reportType string, year int, qtr string) (int, error)
	ListByCompany(ctx context.Context, company string) ([]*models.Report, error)
	Count(ctx context.Context) (int, error)
}

// DashboardStorage is the Dashboard collection. Unique on NewsID, indexed on
// Company and DtTm.
type DashboardStorage interface {
	InsertMany(ctx context.Context, docs []*models.DashboardEntry, batchSize int) (InsertResult, error)
	FindEligible(ctx context.Context, companies []string, since time.Time, source string, skipCategories []string) ([]*models.DashboardEntry, error)
	MarkDuplicates(ctx context.Context, newsIDs []string) (int, error)
	MissingNewsIDs(ctx context.Context, newsIDs []string) ([]string, error)
	Get(ctx context.Context, newsID string) (*models.DashboardEntry, error)
}

// CompanyStorage is the CompanyMaster collection, a cache of the last
// successfully loaded reference set.
type CompanyStorage interface {
	ReplaceAll(ctx context.Context, records []*models.CompanyRecord) error
	All(ctx context.Context) ([]*models.CompanyRecord, error)
}

// MetadataStorage is the MetaDataLastUpdates collection.
type MetadataStorage interface {
	Get(ctx context.Context, name string) (*models.PipelineMeta, error)
	Upsert(ctx context.Context, meta *models.PipelineMeta) error
}

// StorageManager owns the document store and exposes typed collections.
type StorageManager interface {
	AnnouncementStorage() AnnouncementStorage
	ReportStorage() ReportStorage
	DashboardStorage() DashboardStorage
	CompanyStorage() CompanyStorage
	MetadataStorage() MetadataStorage
	Close() error
}
