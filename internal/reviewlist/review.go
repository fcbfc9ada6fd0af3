// Package reviewlist is the polling review list view: it fetches the
// current reviews on a fixed interval and renders them as a table.
package reviewlist

import (
	"time"
)

// TimestampPlaceholder is shown when a review has no usable timestamp
const TimestampPlaceholder = "-"

// DisplayTimeLayout formats timestamps like a US-English locale date-time
const DisplayTimeLayout = "1/2/2006, 3:04:05 PM"

// layouts accepted for created_at, tried in order; the last one covers
// timezone-less ISO-8601 values
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Review is one row of the list as served by GET /api/reviews.
// CreatedAt stays a string so an odd timestamp never fails the whole fetch.
type Review struct {
	ID            int64   `json:"id"`
	UserName      string  `json:"user_name"`
	ProductName   string  `json:"product_name"`
	ProductReview string  `json:"product_review"`
	CreatedAt     *string `json:"created_at,omitempty"`
}

// FormatTimestamp renders createdAt in loc, or the placeholder when it is
// absent or unparseable.
func FormatTimestamp(createdAt *string, loc *time.Location) string {
	if createdAt == nil || *createdAt == "" {
		return TimestampPlaceholder
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, *createdAt)
		if err == nil {
			return t.In(loc).Format(DisplayTimeLayout)
		}
	}
	return TimestampPlaceholder
}
