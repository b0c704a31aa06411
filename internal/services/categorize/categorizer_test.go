package categorize

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/ternarybob/bsewire/internal/services/reference"
)

// fakeAnnouncementStorage serves a fixed existing-id set.
type fakeAnnouncementStorage struct {
	interfaces.AnnouncementStorage
	existing map[string]struct{}
}

func (f *fakeAnnouncementStorage) NewsIDsSince(ctx context.Context, watermark string) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(f.existing))
	for id := range f.existing {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func testReference() interfaces.ReferenceSet {
	return reference.BuildSet([]*models.CompanyRecord{
		{BSECode: "500325", NSECode: "RELIANCE", ISIN: "INE002A01018", CompanyName: "Reliance Industries", MarketCap: 1000},
	})
}

func newTestService(existing ...string) *Service {
	store := &fakeAnnouncementStorage{existing: map[string]struct{}{}}
	for _, id := range existing {
		store.existing[id] = struct{}{}
	}
	return NewService(testReference(), store, DefaultRules(), common.GetLogger())
}

func rawRecord(attachment, headline, body, descriptor string) models.RawAnnouncement {
	return models.RawAnnouncement{
		ScripCode:      "500325",
		AttachmentName: attachment,
		HeadLine:       headline,
		NewsBody:       body,
		Descriptor:     descriptor,
		Tradedate:      "05/04/2025 10:30:00",
	}
}

func TestRunFiltersAndCanonicalizes(t *testing.T) {
	svc := newTestService()

	raw := []models.RawAnnouncement{
		rawRecord("doc1.pdf", "Investor meet", "", ""),
		rawRecord("doc2.txt", "Not a pdf", "", ""),
		{ScripCode: "999999", AttachmentName: "doc3.pdf", HeadLine: "Unknown scrip", Tradedate: "05/04/2025 10:30:00"},
		{ScripCode: "500325", AttachmentName: "doc4.pdf", HeadLine: "Bad date", Tradedate: "2025-04-05"},
	}

	batch, err := svc.Run(context.Background(), raw, "")
	require.NoError(t, err)
	require.Len(t, batch, 1)

	ann := batch[0]
	assert.Equal(t, "doc1", ann.NewsID)
	assert.Equal(t, "INE002A01018", ann.Company)
	assert.Equal(t, "RELIANCE", ann.Symbolmap.Selected)
	assert.Equal(t, "2025-04-05 10:30:00", ann.Tradedate)
}

func TestRunSkipsExistingAndIntraBatchDuplicates(t *testing.T) {
	svc := newTestService("already-seen")

	raw := []models.RawAnnouncement{
		rawRecord("already-seen.pdf", "Seen before", "", ""),
		rawRecord("fresh.pdf", "New", "", ""),
		rawRecord("fresh.pdf", "Same attachment again", "", ""),
	}

	batch, err := svc.Run(context.Background(), raw, "2025-04-01 00:00:00")
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "fresh", batch[0].NewsID)
}

func TestRunIdempotentOverSameState(t *testing.T) {
	raw := []models.RawAnnouncement{rawRecord("doc1.pdf", "Quarterly presentation", "", "")}

	svc := newTestService()
	first, err := svc.Run(context.Background(), raw, "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same batch against store state that now contains the first run's ids
	svc = newTestService("doc1")
	second, err := svc.Run(context.Background(), raw, "")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestAssignCategory(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name     string
		headline string
		body     string
		desc     string
		want     string
	}{
		{"descriptor wins", "anything", "", models.CategoryAnnualReport, models.CategoryAnnualReport},
		{"presentation headline", "Investor Presentation Q4", "", "", models.CategoryInvestorPresentation},
		{"presentation case insensitive", "INVESTOR PRESENTATION", "", "", models.CategoryInvestorPresentation},
		{"annual report", "Annual Report FY25", "", "", models.CategoryAnnualReport},
		{"credit rating", "Credit Rating update by CRISIL", "", "", models.CategoryCreditRating},
		{"earnings call", "Earnings Call invite", "", "", models.CategoryEarningsCall},
		{"conference call", "Conference Call schedule", "", "", models.CategoryEarningsCall},
		{"transcript", "Transcript of analyst meet", "", "", models.CategoryEarningsCall},
		{"concall in body", "Intimation", "Audio of the concall is available", "", models.CategoryEarningsCall},
		{"first rule wins", "Presentation on annual report", "", "", models.CategoryInvestorPresentation},
		{"unknown descriptor falls through", "Board meeting outcome", "", "Company Update", models.CategoryGeneral},
		{"general", "Intimation of record date", "", "", models.CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawRecord("x.pdf", tt.headline, tt.body, tt.desc)
			got := svc.assignCategory(&raw)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRawAnnouncementDecoding(t *testing.T) {
	data := []byte(`{
		"SCRIP_CD": 500325,
		"AttachmentName": "doc1.pdf",
		"HeadLine": "Results",
		"Tradedate": "05/04/2025 10:30:00",
		"ATTACHMENTURL": "https://example.com/doc1.pdf",
		"NSURL": "extra-value"
	}`)

	var raw models.RawAnnouncement
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "500325", raw.ScripCode)
	assert.Equal(t, "doc1.pdf", raw.AttachmentName)
	assert.Equal(t, "extra-value", raw.Extra["NSURL"])
	assert.Equal(t, "doc1", raw.NewsID())
}
