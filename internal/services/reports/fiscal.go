package reports

import "time"

// FiscalQuarter maps a trade date to its Indian fiscal quarter and fiscal
// year. The fiscal year ends March 31: Q1=Apr-Jun, Q2=Jul-Sep, Q3=Oct-Dec,
// Q4=Jan-Mar (belonging to the previous fiscal year).
func FiscalQuarter(t time.Time) (year int, qtr string) {
	y := t.Year()
	switch t.Month() {
	case time.January, time.February, time.March:
		return y - 1, "Q4"
	case time.April, time.May, time.June:
		return y, "Q1"
	case time.July, time.August, time.September:
		return y, "Q2"
	default:
		return y, "Q3"
	}
}
