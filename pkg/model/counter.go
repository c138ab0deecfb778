package model

import "time"

// CancelCounter tracks a student's cancellations for one calendar month.
// A new month is a new document; counters are never reset in place.
type CancelCounter struct {
	ID        string `json:"-" bson:"_id,omitempty"`
	StudentID string `json:"student_id" bson:"student_id"`
	YearMonth string `json:"year_month" bson:"year_month"`
	Count     int    `json:"count" bson:"count"`
}

// YearMonth renders the counter key for a point in time. The key is derived
// from the cancellation's own timestamp so late-arriving cancellations of
// past-dated courses attribute to the correct month.
func YearMonth(t time.Time) string {
	return t.Format("2006-01")
}
