package models

import "time"

// Dashboard entry sources.
const (
	SourceBSE        = "BSE"
	SourceLivesquack = "Livesquack"
)

// EnrichedItem is a summarized news row arriving from an enrichment source,
// not yet formatted for the dashboard.
type EnrichedItem struct {
	NewsID       string
	Company      string // ISIN
	Symbolmap    Symbolmap
	DtTm         string // YYYY-MM-DD HH:MM:SS
	Category     string
	SubCategory  string
	Impact       string
	ImpactScore  float64
	Sentiment    string
	ShortSummary string
	Summary      string
	PDFLinkLive  string // BSE attachment link
	NewsLink     string // Livesquack article link
}

// DashboardEntry is a de-duplicated, embedded news event for downstream
// consumers. Mutated only by the deduplicator flipping Duplicate false->true.
type DashboardEntry struct {
	NewsID       string    `badgerhold:"unique"`
	Company      string    `badgerholdIndex:"Company"`
	Stock        string    // Symbolmap.Selected
	DtTm         time.Time `badgerholdIndex:"DtTm"`
	Category     string
	Source       string
	Impact       string
	ImpactScore  float64
	Sentiment    string
	ShortSummary string
	Summary      string
	NewsLink     string
	Symbolmap    Symbolmap
	Embedding    []float32 // Unit-norm vector over ShortSummary
	Duplicate    bool
	DocumentDate time.Time
}
