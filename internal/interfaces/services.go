package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/bsewire/internal/models"
)

// DayResult is the outcome of one per-day upstream request.
type DayResult struct {
	Tradedt string // YYYYMMDD
	Records []models.RawAnnouncement
}

// Fetcher retrieves raw announcements from the upstream API.
type Fetcher interface {
	// FetchHistorical fetches all trading days in [from, to] inclusive,
	// clamped to the configured historical range; from > to swaps.
	FetchHistorical(ctx context.Context, from, to time.Time) ([]models.RawAnnouncement, error)

	// FetchLive fetches the rolling live window, starting at lastSeen's day
	// when it lies within the window.
	FetchLive(ctx context.Context, lastSeen time.Time) ([]models.RawAnnouncement, error)
}

// ReferenceSet is the immutable company reference map loaded at startup.
type ReferenceSet interface {
	// Lookup resolves a trimmed BSE scrip code.
	Lookup(bseCode string) (models.CompanyRef, bool)

	// Companies returns all ISINs in the reference set.
	Companies() []string

	Len() int
}

// Categorizer filters raw announcements and assigns categories.
type Categorizer interface {
	// Run produces the canonical batch for raw records newer than watermark.
	Run(ctx context.Context, raw []models.RawAnnouncement, watermark string) ([]*models.Announcement, error)
}

// DivideResult reports both halves of a divide pass.
type DivideResult struct {
	Announcements InsertResult
	Reports       int
}

// Divider writes canonical announcements and their per-category reports.
type Divider interface {
	Divide(ctx context.Context, batch []*models.Announcement, watermark string) (DivideResult, error)

	// Recheck re-drives the report pass from stored announcements since the
	// cutoff, repairing report rows missed by earlier crashed runs.
	Recheck(ctx context.Context, since time.Time) (int, error)
}

// Embedder turns texts into unit-norm vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Deduplicator marks near-duplicate dashboard entries.
type Deduplicator interface {
	// MarkDuplicates clusters recent entries of the given companies and marks
	// all but the earliest of each cluster as duplicate.
	MarkDuplicates(ctx context.Context, companies []string) (int, error)

	// FilterUnique drops incoming entries whose embedding is too similar to
	// an existing entry of the same company (pre-insert path).
	FilterUnique(ctx context.Context, incoming []*models.DashboardEntry) ([]*models.DashboardEntry, error)
}

// Notifier is a write-only notification sink.
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// EventPublisher receives pipeline progress events.
type EventPublisher interface {
	Publish(event models.PipelineEvent)
}
