package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/ternarybob/bsewire/internal/services/dedup"
	badgerstore "github.com/ternarybob/bsewire/internal/storage/badger"
	"github.com/ternarybob/bsewire/internal/vectors"
)

// stubEmbedder assigns each distinct summary its own one-hot unit vector, so
// identical summaries collide at similarity 1 and distinct ones are
// orthogonal.
type stubEmbedder struct {
	mu   sync.Mutex
	axes map[string]int
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{axes: make(map[string]int)}
}

func (e *stubEmbedder) EmbedDocs(_ context.Context, entries []*models.DashboardEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		axis, ok := e.axes[entry.ShortSummary]
		if !ok {
			axis = len(e.axes)
			e.axes[entry.ShortSummary] = axis
		}
		v := make([]float32, 32)
		v[axis%32] = 1
		entry.Embedding = v
	}
	return nil
}

func newTestService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	manager, err := badgerstore.NewManager(common.GetLogger(), &common.StorageConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	deduper := dedup.NewService(manager.DashboardStorage(), &common.DedupConfig{
		DashboardThreshold:  0.80,
		LivesquackThreshold: 0.70,
		DaysWindow:          2,
		TopK:                50,
	}, common.GetLogger())

	svc := NewService(manager.DashboardStorage(), manager.AnnouncementStorage(),
		newStubEmbedder(), deduper, 1000, common.GetLogger())
	return svc, manager
}

// recentDtTm formats a timestamp inside the dedup window.
func recentDtTm(offset time.Duration) string {
	return time.Now().UTC().Add(-time.Hour + offset).Format(models.TradedateCanonicalLayout)
}

func enrichedItem(newsID string, offset time.Duration) *models.EnrichedItem {
	return &models.EnrichedItem{
		NewsID:       newsID,
		Company:      "INE000A01010",
		Symbolmap:    models.Symbolmap{NSE: "TEST", BSE: 500001, Selected: "TEST"},
		DtTm:         recentDtTm(offset),
		Category:     models.CategoryGeneral,
		ShortSummary: "summary for " + newsID,
		PDFLinkLive:  "https://example.com/" + newsID + ".pdf",
	}
}

func TestIngestFormatsAndInserts(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	noStock := enrichedItem("no-stock", 0)
	noStock.Symbolmap.Selected = ""
	badTime := enrichedItem("bad-time", 0)
	badTime.DtTm = "10/04/2025 09:00:00"

	result, err := svc.Ingest(ctx, models.SourceBSE, []*models.EnrichedItem{
		enrichedItem("good", 0),
		noStock,
		badTime,
	})
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, 1, result.Inserted)

	entry, err := manager.DashboardStorage().Get(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "TEST", entry.Stock)
	assert.Equal(t, models.SourceBSE, entry.Source)
	assert.Equal(t, "https://example.com/good.pdf", entry.NewsLink)
	assert.False(t, entry.Duplicate)
	assert.InDelta(t, 1.0, vectors.Norm(entry.Embedding), 1e-4)

	_, err = manager.DashboardStorage().Get(ctx, "no-stock")
	assert.Error(t, err)
	_, err = manager.DashboardStorage().Get(ctx, "bad-time")
	assert.Error(t, err)
}

func TestIngestFinancialResultsRemap(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	remapped := enrichedItem("remapped", 0)
	remapped.Category = financialResultsCategory
	remapped.SubCategory = "Quarterly Results"

	boardMeeting := enrichedItem("board", 5*time.Minute)
	boardMeeting.Category = financialResultsCategory
	boardMeeting.SubCategory = boardMeetingSubCategory

	_, err := svc.Ingest(ctx, models.SourceBSE, []*models.EnrichedItem{remapped, boardMeeting})
	require.NoError(t, err)
	svc.Wait()

	entry, err := manager.DashboardStorage().Get(ctx, "remapped")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Results", entry.Category)

	entry, err = manager.DashboardStorage().Get(ctx, "board")
	require.NoError(t, err)
	assert.Equal(t, financialResultsCategory, entry.Category)
}

func TestIngestLivesquackFiltersNearDuplicates(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	seed := enrichedItem("bse-seed", 0)
	_, err := svc.Ingest(ctx, models.SourceBSE, []*models.EnrichedItem{seed})
	require.NoError(t, err)
	svc.Wait()

	// Same summary collides with the seed vector; a distinct one is orthogonal
	duplicate := enrichedItem("ls-dup", time.Hour)
	duplicate.ShortSummary = "summary for bse-seed"
	duplicate.NewsLink = "https://news.example.com/ls-dup"
	fresh := enrichedItem("ls-fresh", time.Hour)
	fresh.ShortSummary = "something else entirely"
	fresh.NewsLink = "https://news.example.com/ls-fresh"

	result, err := svc.Ingest(ctx, models.SourceLivesquack, []*models.EnrichedItem{duplicate, fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	_, err = manager.DashboardStorage().Get(ctx, "ls-dup")
	assert.Error(t, err)

	entry, err := manager.DashboardStorage().Get(ctx, "ls-fresh")
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com/ls-fresh", entry.NewsLink)
	assert.Equal(t, models.SourceLivesquack, entry.Source)
}

func TestIngestMarksDuplicatesAcrossBatches(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	first := enrichedItem("first", 0)
	first.ShortSummary = "identical text"
	_, err := svc.Ingest(ctx, models.SourceBSE, []*models.EnrichedItem{first})
	require.NoError(t, err)
	svc.Wait()

	second := enrichedItem("second", time.Hour)
	second.ShortSummary = "identical text"
	_, err = svc.Ingest(ctx, models.SourceBSE, []*models.EnrichedItem{second})
	require.NoError(t, err)
	svc.Wait()

	// Earlier entry stays canonical, later one is flagged
	entry, err := manager.DashboardStorage().Get(ctx, "first")
	require.NoError(t, err)
	assert.False(t, entry.Duplicate)

	entry, err = manager.DashboardStorage().Get(ctx, "second")
	require.NoError(t, err)
	assert.True(t, entry.Duplicate)
}

func TestBackfillMissing(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	ann := &models.Announcement{
		NewsID:        "backlog",
		Company:       "INE000A01010",
		Symbolmap:     models.Symbolmap{NSE: "TEST", BSE: 500001, Selected: "TEST"},
		Tradedate:     recentDtTm(0),
		Category:      models.CategoryGeneral,
		HeadLine:      "Allotment of equity shares",
		NewsBody:      "full text",
		AttachmentURL: "https://example.com/backlog.pdf",
	}
	present := &models.Announcement{
		NewsID:    "present",
		Company:   "INE000A01010",
		Symbolmap: models.Symbolmap{Selected: "TEST"},
		Tradedate: recentDtTm(time.Hour),
		Category:  models.CategoryGeneral,
		HeadLine:  "Already on the dashboard",
	}
	_, err := manager.AnnouncementStorage().InsertMany(ctx, []*models.Announcement{ann, present}, 1000)
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, models.SourceBSE, []*models.EnrichedItem{{
		NewsID:       "present",
		Company:      "INE000A01010",
		Symbolmap:    models.Symbolmap{Selected: "TEST"},
		DtTm:         present.Tradedate,
		Category:     models.CategoryGeneral,
		ShortSummary: "Already on the dashboard",
	}})
	require.NoError(t, err)
	svc.Wait()

	result, err := svc.BackfillMissing(ctx, 3)
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, 1, result.Inserted)

	entry, err := manager.DashboardStorage().Get(ctx, "backlog")
	require.NoError(t, err)
	assert.Equal(t, "Allotment of equity shares", entry.ShortSummary)
	assert.Equal(t, "https://example.com/backlog.pdf", entry.NewsLink)

	// Nothing left to backfill
	result, err = svc.BackfillMissing(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
}
