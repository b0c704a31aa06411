package reports

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFiscalQuarterAllMonths(t *testing.T) {
	tests := []struct {
		month    time.Month
		wantYear int
		wantQtr  string
	}{
		{time.January, 2024, "Q4"},
		{time.February, 2024, "Q4"},
		{time.March, 2024, "Q4"},
		{time.April, 2025, "Q1"},
		{time.May, 2025, "Q1"},
		{time.June, 2025, "Q1"},
		{time.July, 2025, "Q2"},
		{time.August, 2025, "Q2"},
		{time.September, 2025, "Q2"},
		{time.October, 2025, "Q3"},
		{time.November, 2025, "Q3"},
		{time.December, 2025, "Q3"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("month_%d", tt.month), func(t *testing.T) {
			year, qtr := FiscalQuarter(time.Date(2025, tt.month, 15, 12, 0, 0, 0, time.UTC))
			assert.Equal(t, tt.wantYear, year)
			assert.Equal(t, tt.wantQtr, qtr)
		})
	}
}

func TestFiscalQuarterBoundary(t *testing.T) {
	year, qtr := FiscalQuarter(time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, 2024, year)
	assert.Equal(t, "Q4", qtr)

	year, qtr = FiscalQuarter(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, year)
	assert.Equal(t, "Q1", qtr)
}
