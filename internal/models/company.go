package models

// CompanyRecord is one row of the company master as pulled from the
// reference source.
type CompanyRecord struct {
	BSECode     string  `json:"bsecode"`
	NSECode     string  `json:"nsecode"`
	ISIN        string  `json:"isin"`
	CompanyName string  `json:"companyname"`
	MarketCap   float64 `json:"mcap"`
}

// CompanyRef is the filtered reference entry held in memory, keyed by BSE code.
// The map is immutable after load and shared by read-only reference.
type CompanyRef struct {
	Company   string // ISIN
	Symbolmap Symbolmap
}
