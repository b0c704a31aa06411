package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wire and canonical timestamp layouts for announcement trade dates.
const (
	TradedateWireLayout      = "02/01/2006 15:04:05"
	TradedateCanonicalLayout = "2006-01-02 15:04:05"
)

// Announcement categories (closed set).
const (
	CategoryInvestorPresentation = "Investor Presentation"
	CategoryAnnualReport         = "Annual Report"
	CategoryCreditRating         = "Credit Rating"
	CategoryEarningsCall         = "Earnings Call Transcript"
	CategoryGeneral              = "General"
)

// CategoryShortCodes maps report-bearing categories to their report_id segment.
var CategoryShortCodes = map[string]string{
	CategoryInvestorPresentation: "IP",
	CategoryAnnualReport:         "AR",
	CategoryCreditRating:         "CR",
	CategoryEarningsCall:         "ECT",
}

// Symbolmap identifies a company across exchanges.
// Selected is the NSE code when present, otherwise the BSE code as a string.
type Symbolmap struct {
	NSE         string `json:"NSE"`
	BSE         int    `json:"BSE"`
	CompanyName string `json:"Company_Name"`
	Selected    string `json:"SELECTED"`
}

// RawAnnouncement is an announcement record as received from the upstream API.
// Fields the pipeline does not interpret are preserved in Extra.
type RawAnnouncement struct {
	ScripCode      string         `json:"SCRIP_CD"`
	AttachmentName string         `json:"AttachmentName"`
	HeadLine       string         `json:"HeadLine"`
	NewsBody       string         `json:"NewsBody"`
	Descriptor     string         `json:"Descriptor"`
	Tradedate      string         `json:"Tradedate"` // DD/MM/YYYY HH:MM:SS
	AttachmentURL  string         `json:"ATTACHMENTURL"`
	SubCategory    string         `json:"SUBCATNAME"`
	Extra          map[string]any `json:"-"`
}

// UnmarshalJSON decodes a raw announcement with tolerant types:
// SCRIP_CD may arrive as a JSON number or string, and unknown fields
// are captured in Extra.
func (r *RawAnnouncement) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	known := map[string]*string{
		"AttachmentName": &r.AttachmentName,
		"HeadLine":       &r.HeadLine,
		"NewsBody":       &r.NewsBody,
		"Descriptor":     &r.Descriptor,
		"Tradedate":      &r.Tradedate,
		"ATTACHMENTURL":  &r.AttachmentURL,
		"SUBCATNAME":     &r.SubCategory,
	}

	for key, raw := range fields {
		if key == "SCRIP_CD" {
			r.ScripCode = decodeScripCode(raw)
			continue
		}
		if dst, ok := known[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				*dst = s
				continue
			}
		}
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[key] = v
		}
	}
	return nil
}

// decodeScripCode normalizes a scrip code that may be a number or string.
// Numeric codes are formatted without a decimal part.
func decodeScripCode(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatInt(int64(f), 10)
	}
	return strings.TrimSpace(string(raw))
}

// NewsID derives the announcement's primary key from its attachment name.
// Returns empty when the attachment is not a PDF.
func (r *RawAnnouncement) NewsID() string {
	name := strings.TrimSpace(r.AttachmentName)
	if len(name) <= 4 || !strings.EqualFold(name[len(name)-4:], ".pdf") {
		return ""
	}
	return name[:len(name)-4]
}

// Announcement is the canonical form stored in AllAnnouncements.
// Created once by the categorizer and never mutated.
type Announcement struct {
	NewsID         string `badgerhold:"unique"`
	Company        string // ISIN from the reference set
	Symbolmap      Symbolmap
	Tradedate      string `badgerholdIndex:"Tradedate"` // YYYY-MM-DD HH:MM:SS
	Category       string
	ScripCode      string
	AttachmentName string
	HeadLine       string
	NewsBody       string
	Descriptor     string
	AttachmentURL  string
	SubCategory    string
	Extra          map[string]any
	DocumentDate   time.Time
}

// TradeTime parses the canonical Tradedate
func (a *Announcement) TradeTime() (time.Time, error) {
	t, err := time.Parse(TradedateCanonicalLayout, a.Tradedate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid tradedate %q: %w", a.Tradedate, err)
	}
	return t, nil
}
