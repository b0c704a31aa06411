package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	badgerstore "github.com/ternarybob/bsewire/internal/storage/badger"
	"github.com/ternarybob/bsewire/internal/vectors"
)

func newTestDedup(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	manager, err := badgerstore.NewManager(common.GetLogger(), &common.StorageConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	svc := NewService(manager.DashboardStorage(), &common.DedupConfig{
		DashboardThreshold:  0.80,
		LivesquackThreshold: 0.70,
		DaysWindow:          2,
		TopK:                50,
		SkipCategories:      []string{models.CategoryInvestorPresentation},
	}, common.GetLogger())
	svc.now = func() time.Time { return time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC) }
	return svc, manager
}

func unit(v []float32) []float32 {
	vectors.Normalize(v)
	return v
}

func bseEntry(newsID string, dtTm time.Time, embedding []float32) *models.DashboardEntry {
	return &models.DashboardEntry{
		NewsID:       newsID,
		Company:      "INE000A01010",
		DtTm:         dtTm,
		Category:     models.CategoryGeneral,
		Source:       models.SourceBSE,
		ShortSummary: "summary " + newsID,
		Embedding:    embedding,
	}
}

func TestMarkDuplicatesTransitiveCluster(t *testing.T) {
	svc, manager := newTestDedup(t)
	ctx := context.Background()

	// cos(a,b)=0.92, cos(b,c)=0.90, cos(a,c)=0.70: the a-c edge is below
	// threshold but b bridges the cluster
	a := unit([]float32{1, 0, 0})
	b := unit([]float32{0.92, 0.39192, 0})
	c := unit([]float32{0.70, 0.65319, 0.28868})

	base := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	_, err := manager.DashboardStorage().InsertMany(ctx, []*models.DashboardEntry{
		bseEntry("a", base, a),
		bseEntry("b", base.Add(time.Hour), b),
		bseEntry("c", base.Add(2*time.Hour), c),
	}, 100)
	require.NoError(t, err)

	marked, err := svc.MarkDuplicates(ctx, []string{"INE000A01010"})
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	// Earliest entry stays canonical
	canonical, err := manager.DashboardStorage().Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, canonical.Duplicate)

	for _, id := range []string{"b", "c"} {
		entry, err := manager.DashboardStorage().Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, entry.Duplicate, id)
	}
}

func TestMarkDuplicatesBelowThresholdNotJoined(t *testing.T) {
	svc, manager := newTestDedup(t)
	ctx := context.Background()

	// cos ~0.75 stays below the 0.80 threshold
	a := unit([]float32{1, 0})
	b := unit([]float32{0.75, 0.66144})

	base := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	_, err := manager.DashboardStorage().InsertMany(ctx, []*models.DashboardEntry{
		bseEntry("a", base, a),
		bseEntry("b", base.Add(time.Hour), b),
	}, 100)
	require.NoError(t, err)

	marked, err := svc.MarkDuplicates(ctx, []string{"INE000A01010"})
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestMarkDuplicatesSkipsCategoriesAndStaleEntries(t *testing.T) {
	svc, manager := newTestDedup(t)
	ctx := context.Background()

	v := unit([]float32{1, 0})
	base := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

	skipped := bseEntry("presentation", base, v)
	skipped.Category = models.CategoryInvestorPresentation

	stale := bseEntry("stale", base.AddDate(0, 0, -5), v)

	_, err := manager.DashboardStorage().InsertMany(ctx, []*models.DashboardEntry{
		bseEntry("fresh", base, v),
		skipped,
		stale,
	}, 100)
	require.NoError(t, err)

	// Identical vectors, but the skipped category and the out-of-window entry
	// never enter a cluster, leaving fewer than two comparable entries
	marked, err := svc.MarkDuplicates(ctx, []string{"INE000A01010"})
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestFilterUniqueDropsAtThreshold(t *testing.T) {
	svc, manager := newTestDedup(t)
	ctx := context.Background()

	existing := bseEntry("existing", time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC), unit([]float32{1, 0}))
	_, err := manager.DashboardStorage().InsertMany(ctx, []*models.DashboardEntry{existing}, 100)
	require.NoError(t, err)

	atThreshold := bseEntry("at", time.Date(2025, 4, 10, 10, 0, 0, 0, time.UTC), unit([]float32{0.70, 0.71414}))
	atThreshold.Source = models.SourceLivesquack
	below := bseEntry("below", time.Date(2025, 4, 10, 10, 0, 0, 0, time.UTC), unit([]float32{0.50, 0.86603}))
	below.Source = models.SourceLivesquack
	noVector := bseEntry("novec", time.Date(2025, 4, 10, 10, 0, 0, 0, time.UTC), nil)
	noVector.Source = models.SourceLivesquack

	kept, err := svc.FilterUnique(ctx, []*models.DashboardEntry{atThreshold, below, noVector})
	require.NoError(t, err)

	ids := make([]string, 0, len(kept))
	for _, entry := range kept {
		ids = append(ids, entry.NewsID)
	}
	// 0.70 similarity drops, 0.50 passes, missing embedding passes
	assert.ElementsMatch(t, []string{"below", "novec"}, ids)
}

func TestFilterUniqueIgnoresIneligibleEntries(t *testing.T) {
	svc, manager := newTestDedup(t)
	ctx := context.Background()

	v := unit([]float32{1, 0})
	base := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

	// Identical vectors, but none of these may block the incoming doc:
	// already marked duplicate, outside the window, or in a skip category
	marked := bseEntry("marked", base, v)
	marked.Duplicate = true
	stale := bseEntry("stale", base.AddDate(0, 0, -5), v)
	skipped := bseEntry("presentation", base, v)
	skipped.Category = models.CategoryInvestorPresentation

	_, err := manager.DashboardStorage().InsertMany(ctx, []*models.DashboardEntry{marked, stale, skipped}, 100)
	require.NoError(t, err)

	fresh := bseEntry("fresh", base.Add(time.Hour), unit([]float32{1, 0}))
	fresh.Source = models.SourceLivesquack

	kept, err := svc.FilterUnique(ctx, []*models.DashboardEntry{fresh})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "fresh", kept[0].NewsID)

	// An eligible identical entry still blocks it
	_, err = manager.DashboardStorage().InsertMany(ctx, []*models.DashboardEntry{bseEntry("live", base, v)}, 100)
	require.NoError(t, err)

	kept, err = svc.FilterUnique(ctx, []*models.DashboardEntry{fresh})
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(3, 4)
	uf.union(1, 3)

	assert.Equal(t, uf.find(0), uf.find(4))
	assert.NotEqual(t, uf.find(0), uf.find(2))

	components := uf.components()
	sizes := make([]int, 0, len(components))
	for _, members := range components {
		sizes = append(sizes, len(members))
	}
	assert.ElementsMatch(t, []int{4, 1}, sizes)
}
