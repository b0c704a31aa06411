package models

import "time"

// PipelineMeta persists per-pipeline state (the live watermark) across
// restarts in the MetaDataLastUpdates collection.
type PipelineMeta struct {
	Name      string `badgerhold:"unique"`
	LastRun   time.Time
	Watermark string // Canonical Tradedate cutoff
	UpdatedAt time.Time
}
