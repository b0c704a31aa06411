// Package dedup finds near-duplicate dashboard entries by cosine similarity
// and keeps the earliest of each duplicate cluster.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/ternarybob/bsewire/internal/vectors"
)

// Service implements the Deduplicator interface over dashboard storage.
type Service struct {
	storage interfaces.DashboardStorage
	config  *common.DedupConfig
	logger  arbor.ILogger
	now     func() time.Time
}

func NewService(storage interfaces.DashboardStorage, config *common.DedupConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// MarkDuplicates clusters recent non-duplicate BSE entries of the given
// companies. Within each company, entries whose cosine similarity exceeds the
// dashboard threshold are joined into clusters; every cluster keeps its
// earliest entry and the rest are flipped to duplicate. Returns how many
// entries were marked.
func (s *Service) MarkDuplicates(ctx context.Context, companies []string) (int, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	since := s.now().AddDate(0, 0, -s.config.DaysWindow)
	eligible, err := s.storage.FindEligible(ctx, companies, since, models.SourceBSE, s.config.SkipCategories)
	if err != nil {
		return 0, fmt.Errorf("failed to load eligible entries: %w", err)
	}

	byCompany := make(map[string][]*models.DashboardEntry)
	for _, entry := range eligible {
		byCompany[entry.Company] = append(byCompany[entry.Company], entry)
	}

	var toMark []string
	for company, entries := range byCompany {
		if len(entries) < 2 {
			continue
		}
		marked := s.clusterCompany(entries)
		if len(marked) > 0 {
			s.logger.Debug().Str("company", company).Int("marked", len(marked)).Msg("Duplicate cluster members found")
			toMark = append(toMark, marked...)
		}
	}

	if len(toMark) == 0 {
		return 0, nil
	}
	marked, err := s.storage.MarkDuplicates(ctx, toMark)
	if err != nil {
		return marked, fmt.Errorf("failed to mark duplicates: %w", err)
	}
	return marked, nil
}

// clusterCompany returns the news_ids of all cluster members except each
// cluster's earliest entry. Entries are compared against their top-k nearest
// neighbors; an edge joins two entries when similarity strictly exceeds the
// threshold.
func (s *Service) clusterCompany(entries []*models.DashboardEntry) []string {
	vecs := make([][]float32, len(entries))
	for i, entry := range entries {
		v := make([]float32, len(entry.Embedding))
		copy(v, entry.Embedding)
		vectors.Normalize(v)
		vecs[i] = v
	}

	uf := newUnionFind(len(entries))
	k := min(s.config.TopK, len(entries))
	for i := range entries {
		for _, j := range s.topNeighbors(vecs, i, k) {
			if vectors.Cosine(vecs[i], vecs[j]) > s.config.DashboardThreshold {
				uf.union(i, j)
			}
		}
	}

	var marked []string
	for _, members := range uf.components() {
		if len(members) < 2 {
			continue
		}
		keep := members[0]
		for _, m := range members[1:] {
			if entries[m].DtTm.Before(entries[keep].DtTm) {
				keep = m
			}
		}
		for _, m := range members {
			if m != keep {
				marked = append(marked, entries[m].NewsID)
			}
		}
	}
	return marked
}

// topNeighbors returns the indices of the k most similar entries to i,
// excluding i itself. Ties resolve to the lower index.
func (s *Service) topNeighbors(vecs [][]float32, i, k int) []int {
	type scored struct {
		idx int
		sim float64
	}
	candidates := make([]scored, 0, len(vecs)-1)
	for j := range vecs {
		if j == i {
			continue
		}
		candidates = append(candidates, scored{idx: j, sim: vectors.Cosine(vecs[i], vecs[j])})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].sim != candidates[b].sim {
			return candidates[a].sim > candidates[b].sim
		}
		return candidates[a].idx < candidates[b].idx
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]int, k)
	for n := 0; n < k; n++ {
		out[n] = candidates[n].idx
	}
	return out
}

// FilterUnique drops incoming entries whose embedding matches an eligible
// existing entry of the same company at or above the pre-insert threshold.
// Comparison targets are the same population duplicate marking sees: recent
// BSE entries, not already duplicate, outside the skip categories. Entries
// without an embedding pass through.
func (s *Service) FilterUnique(ctx context.Context, incoming []*models.DashboardEntry) ([]*models.DashboardEntry, error) {
	companies := make([]string, 0, len(incoming))
	seen := make(map[string]struct{}, len(incoming))
	for _, entry := range incoming {
		if len(entry.Embedding) == 0 {
			continue
		}
		if _, ok := seen[entry.Company]; ok {
			continue
		}
		seen[entry.Company] = struct{}{}
		companies = append(companies, entry.Company)
	}

	existingByCompany := make(map[string][]*models.DashboardEntry)
	if len(companies) > 0 {
		since := s.now().AddDate(0, 0, -s.config.DaysWindow)
		eligible, err := s.storage.FindEligible(ctx, companies, since, models.SourceBSE, s.config.SkipCategories)
		if err != nil {
			return nil, fmt.Errorf("failed to load eligible entries: %w", err)
		}
		for _, entry := range eligible {
			existingByCompany[entry.Company] = append(existingByCompany[entry.Company], entry)
		}
	}

	kept := make([]*models.DashboardEntry, 0, len(incoming))
	for _, entry := range incoming {
		if len(entry.Embedding) == 0 {
			kept = append(kept, entry)
			continue
		}
		if match, sim := s.closestMatch(entry, existingByCompany[entry.Company]); sim >= s.config.LivesquackThreshold {
			s.logger.Debug().
				Str("news_id", entry.NewsID).
				Str("match", match).
				Str("similarity", fmt.Sprintf("%.3f", sim)).
				Msg("Dropping near-duplicate incoming entry")
			continue
		}
		kept = append(kept, entry)
	}
	return kept, nil
}

func (s *Service) closestMatch(entry *models.DashboardEntry, existing []*models.DashboardEntry) (string, float64) {
	best := -1.0
	bestID := ""
	for _, other := range existing {
		if len(other.Embedding) == 0 || other.NewsID == entry.NewsID {
			continue
		}
		if sim := vectors.Cosine(entry.Embedding, other.Embedding); sim > best {
			best = sim
			bestID = other.NewsID
		}
	}
	return bestID, best
}
