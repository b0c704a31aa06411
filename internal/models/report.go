package models

import (
	"fmt"
	"time"
)

// Report is one per-category report row derived from a canonical announcement.
// ReportID is {company}_{IP|AR|CR|ECT}_FY{year}{Q1..Q4}_{n} where n is a dense
// ordinal within the (company, type, fiscal year, quarter) partition assigned
// in Tradedate-ascending order.
type Report struct {
	ReportID     string `badgerhold:"unique"`
	Company      string `badgerholdIndex:"Company"`
	Symbolmap    Symbolmap
	NewsID       string `badgerholdIndex:"NewsID"`
	ReportType   string `badgerholdIndex:"ReportType"`
	Year         int    // Fiscal year (Indian FY, ends March 31)
	Qtr          string // Q1..Q4
	Datecode     string // YYYYMMDD
	DtTm         string // Canonical Tradedate
	URL          string
	ReportLine   string
	Count        int
	DocumentDate time.Time
}

// ReportBaseID builds the partition prefix of a report id
func ReportBaseID(company, shortCode string, year int, qtr string) string {
	return fmt.Sprintf("%s_%s_FY%d%s", company, shortCode, year, qtr)
}
