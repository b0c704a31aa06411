// Package reference loads the company master at startup and holds the
// BSE code -> {ISIN, symbolmap} mapping, optionally reloading it on a
// configured schedule.
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

var (
	partlyPaidRe = regexp.MustCompile(`(?i)partly\s?paid`)
	isinIN9Re    = regexp.MustCompile(`IN9`)
)

// Set is the loaded reference mapping. Immutable after construction; shared
// by read-only reference with no locking.
type Set struct {
	byBSE     map[string]models.CompanyRef
	companies []string
}

// Lookup resolves a trimmed BSE scrip code.
func (s *Set) Lookup(bseCode string) (models.CompanyRef, bool) {
	ref, ok := s.byBSE[strings.TrimSpace(bseCode)]
	return ref, ok
}

// Companies returns all ISINs in the set.
func (s *Set) Companies() []string {
	return s.companies
}

// Len returns the number of mapped companies.
func (s *Set) Len() int {
	return len(s.byBSE)
}

// Handle is a swappable reference set. Each loaded Set stays immutable; the
// refresh schedule replaces the whole pointer, so readers never see a partial
// mapping.
type Handle struct {
	set atomic.Pointer[Set]
}

func (h *Handle) Lookup(bseCode string) (models.CompanyRef, bool) {
	return h.set.Load().Lookup(bseCode)
}

func (h *Handle) Companies() []string {
	return h.set.Load().Companies()
}

func (h *Handle) Len() int {
	return h.set.Load().Len()
}

// Loader pulls the company master from the reference source, caching each
// successful load so the pipeline can start while the source is unreachable.
type Loader struct {
	config     *common.ReferenceConfig
	storage    interfaces.CompanyStorage
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewLoader creates a reference loader.
func NewLoader(config *common.ReferenceConfig, storage interfaces.CompanyStorage, httpClient *http.Client, logger arbor.ILogger) *Loader {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Loader{
		config:     config,
		storage:    storage,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Load pulls the master from the HTTP source, falling back to the cached
// CompanyMaster collection, and builds the filtered reference set.
func (l *Loader) Load(ctx context.Context) (*Set, error) {
	records, err := l.fetch(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Reference source unreachable, falling back to cached company master")
		records, err = l.storage.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load company master: %w", err)
		}
	} else if storeErr := l.storage.ReplaceAll(ctx, records); storeErr != nil {
		l.logger.Warn().Err(storeErr).Msg("Failed to cache company master")
	}

	set := BuildSet(records)
	if set.Len() == 0 {
		return nil, fmt.Errorf("company reference set is empty")
	}

	l.logger.Info().Int("companies", set.Len()).Msg("Company reference set loaded")
	return set, nil
}

// LoadHandle performs the initial load and, when refresh_cron is configured,
// starts a cron that reloads the master and swaps the set in place. A failed
// refresh keeps the previous set. The cron stops when ctx is cancelled.
func (l *Loader) LoadHandle(ctx context.Context) (*Handle, error) {
	set, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	handle := &Handle{}
	handle.set.Store(set)

	if l.config.RefreshCron == "" {
		return handle, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(l.config.RefreshCron, func() {
		fresh, err := l.Load(ctx)
		if err != nil {
			l.logger.Warn().Err(err).Msg("Reference refresh failed, keeping previous set")
			return
		}
		handle.set.Store(fresh)
	}); err != nil {
		return nil, fmt.Errorf("invalid reference refresh schedule: %w", err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	l.logger.Info().Str("schedule", l.config.RefreshCron).Msg("Reference refresh scheduled")
	return handle, nil
}

// fetch pulls the company master from the configured HTTP source.
func (l *Loader) fetch(ctx context.Context) ([]*models.CompanyRecord, error) {
	if l.config.URL == "" {
		return nil, fmt.Errorf("reference url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var records []*models.CompanyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode company master: %w", err)
	}
	return records, nil
}

// BuildSet filters master records and builds the immutable mapping. Records
// are kept when the BSE code is present, market cap is positive, the ISIN
// does not match IN9 and the name is not a partly-paid listing.
func BuildSet(records []*models.CompanyRecord) *Set {
	byBSE := make(map[string]models.CompanyRef, len(records))
	var companies []string

	for _, rec := range records {
		bseCode := strings.TrimSpace(rec.BSECode)
		if bseCode == "" {
			continue
		}
		if rec.MarketCap <= 0 {
			continue
		}
		if isinIN9Re.MatchString(rec.ISIN) {
			continue
		}
		if partlyPaidRe.MatchString(rec.CompanyName) {
			continue
		}

		bseNum, _ := strconv.Atoi(bseCode)
		nse := strings.TrimSpace(rec.NSECode)
		selected := nse
		if selected == "" {
			selected = bseCode
		}

		byBSE[bseCode] = models.CompanyRef{
			Company: rec.ISIN,
			Symbolmap: models.Symbolmap{
				NSE:         nse,
				BSE:         bseNum,
				CompanyName: rec.CompanyName,
				Selected:    selected,
			},
		}
		companies = append(companies, rec.ISIN)
	}

	return &Set{byBSE: byBSE, companies: companies}
}
