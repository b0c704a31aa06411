package orchestrator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/models"
)

// Exporter appends categorized batches to a JSONL file with a news_id index
// sidecar so restarts do not re-append rows already on disk.
type Exporter struct {
	mu     sync.Mutex
	dir    string
	logger arbor.ILogger
	seen   map[string]struct{}
	loaded bool
}

func NewExporter(dir string, logger arbor.ILogger) *Exporter {
	return &Exporter{
		dir:    dir,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// AppendAnnouncements writes batch members not yet in the index and extends
// the index. Errors are logged, never returned: the export is best-effort.
func (e *Exporter) AppendAnnouncements(batch []*models.Announcement) {
	if len(batch) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.loadIndex(); err != nil {
		e.logger.Warn().Err(err).Msg("JSONL index load failed, skipping export")
		return
	}

	dataPath := filepath.Join(e.dir, "announcements.jsonl")
	indexPath := dataPath + ".index"

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		e.logger.Warn().Err(err).Str("dir", e.dir).Msg("JSONL export dir unavailable")
		return
	}

	dataFile, err := os.OpenFile(dataPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.logger.Warn().Err(err).Msg("JSONL export open failed")
		return
	}
	defer dataFile.Close()

	indexFile, err := os.OpenFile(indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.logger.Warn().Err(err).Msg("JSONL index open failed")
		return
	}
	defer indexFile.Close()

	appended := 0
	for _, ann := range batch {
		if _, ok := e.seen[ann.NewsID]; ok {
			continue
		}
		line, err := json.Marshal(ann)
		if err != nil {
			e.logger.Warn().Err(err).Str("news_id", ann.NewsID).Msg("JSONL marshal failed")
			continue
		}
		if _, err := fmt.Fprintf(dataFile, "%s\n", line); err != nil {
			e.logger.Warn().Err(err).Msg("JSONL append failed")
			return
		}
		if _, err := fmt.Fprintln(indexFile, ann.NewsID); err != nil {
			e.logger.Warn().Err(err).Msg("JSONL index append failed")
			return
		}
		e.seen[ann.NewsID] = struct{}{}
		appended++
	}
	if appended > 0 {
		e.logger.Debug().Int("appended", appended).Str("file", dataPath).Msg("JSONL export updated")
	}
}

// loadIndex reads the sidecar once per process.
func (e *Exporter) loadIndex() error {
	if e.loaded {
		return nil
	}
	indexPath := filepath.Join(e.dir, "announcements.jsonl.index")
	f, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			e.loaded = true
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := scanner.Text(); id != "" {
			e.seen[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	e.loaded = true
	return nil
}
