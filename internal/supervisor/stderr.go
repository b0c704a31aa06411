package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/interfaces"
)

// pendingLimit bounds the undigested error queue so a crash-looping child
// cannot grow memory without bound.
const pendingLimit = 1000

// Stderr line levels.
const (
	levelError = "ERROR"
	levelWarn  = "WARN"
	levelInfo  = "INFO"
)

// StderrMonitor scans the child's stderr, keeps a bounded tail for crash
// reports, and periodically digests error and warning lines into a
// notification, fuzzy-collapsing near-identical lines.
type StderrMonitor struct {
	notifier       interfaces.Notifier
	logger         arbor.ILogger
	tailSize       int
	fuzzyThreshold float64

	mu      sync.Mutex
	tail    []string
	pending []string
}

func NewStderrMonitor(notifier interfaces.Notifier, tailSize int, fuzzyThreshold float64, logger arbor.ILogger) *StderrMonitor {
	return &StderrMonitor{
		notifier:       notifier,
		logger:         logger,
		tailSize:       tailSize,
		fuzzyThreshold: fuzzyThreshold,
	}
}

// Attach consumes one stderr stream until EOF. Runs in its own goroutine per
// child process; safe to call again after a restart.
func (m *StderrMonitor) Attach(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		m.record(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		m.logger.Debug().Err(err).Msg("Stderr scanner closed")
	}
}

func (m *StderrMonitor) record(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	level := classifyLine(line)

	m.mu.Lock()
	m.tail = append(m.tail, line)
	if len(m.tail) > m.tailSize {
		m.tail = m.tail[len(m.tail)-m.tailSize:]
	}
	if (level == levelError || level == levelWarn) && len(m.pending) < pendingLimit {
		m.pending = append(m.pending, line)
	}
	m.mu.Unlock()

	switch level {
	case levelError:
		m.logger.Warn().Str("stderr", line).Msg("Child error output")
	case levelWarn:
		m.logger.Debug().Str("stderr", line).Msg("Child warning output")
	}
}

// Run sends a digest of accumulated error and warning lines every interval.
func (m *StderrMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.flush(ctx)
		case <-ctx.Done():
			m.flush(context.Background())
			return
		}
	}
}

// flush collapses and sends the pending lines, if any.
func (m *StderrMonitor) flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	digest := m.collapse(pending)
	var b strings.Builder
	fmt.Fprintf(&b, "Worker reported %d error/warning line(s):\n", len(pending))
	for _, group := range digest {
		fmt.Fprintf(&b, "%dx %s\n", group.count, group.line)
	}
	if err := m.notifier.Send(ctx, strings.TrimRight(b.String(), "\n")); err != nil {
		m.logger.Warn().Err(err).Msg("Stderr digest notification failed")
	}
}

type digestGroup struct {
	line  string
	key   string
	count int
}

// collapse groups lines whose token-sort similarity meets the threshold. The
// first line of a group is its representative.
func (m *StderrMonitor) collapse(lines []string) []digestGroup {
	metric := metrics.NewSorensenDice()
	var groups []digestGroup
	for _, line := range lines {
		key := tokenSortKey(line)
		matched := false
		for i := range groups {
			if strutil.Similarity(key, groups[i].key, metric) >= m.fuzzyThreshold {
				groups[i].count++
				matched = true
				break
			}
		}
		if !matched {
			groups = append(groups, digestGroup{line: line, key: key, count: 1})
		}
	}
	return groups
}

// Tail returns a copy of the retained stderr tail.
func (m *StderrMonitor) Tail() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tail))
	copy(out, m.tail)
	return out
}

// classifyLine maps a stderr line to a level by its leading level token, the
// format both the worker's own logs and Go runtime panics produce.
func classifyLine(line string) string {
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "ERR") || strings.HasPrefix(upper, "FATAL") ||
		strings.HasPrefix(upper, "PANIC") || strings.Contains(upper, "| ERR") ||
		strings.Contains(upper, "LEVEL=ERROR"):
		return levelError
	case strings.HasPrefix(upper, "WRN") || strings.HasPrefix(upper, "WARN") ||
		strings.Contains(upper, "| WRN") || strings.Contains(upper, "LEVEL=WARN"):
		return levelWarn
	default:
		return levelInfo
	}
}

// tokenSortKey normalizes a line for fuzzy comparison: lowercase tokens in
// sorted order, so reordered fields still collapse.
func tokenSortKey(line string) string {
	tokens := strings.Fields(strings.ToLower(line))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
