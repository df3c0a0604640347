package reward

import "time"

// DayKey identifies the UTC calendar day containing t.
func DayKey(t time.Time) string {
	return "D:" + t.UTC().Format("2006-01-02")
}

// MonthKey identifies the UTC calendar month containing t.
func MonthKey(t time.Time) string {
	return "M:" + t.UTC().Format("2006-01")
}
