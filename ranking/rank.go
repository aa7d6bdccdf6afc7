package ranking

import (
	"time"
)

// A Rankable is anything that can appear on the ranked front page.
type Rankable interface {
	GetKarma() int
	Age() time.Time
}

// SortKey returns the timestamp a story sorts under on the ranked front
// page: its creation time shifted forward by one increment per karma
// point. Each karma point is worth a fixed amount of freshness, so a
// high-karma story stays competitive with newer low-karma ones, and two
// stories created at the same instant order by karma.
func SortKey(item Rankable, increment time.Duration) time.Time {
	return item.Age().Add(time.Duration(item.GetKarma()) * increment)
}

// Less reports whether a ranks below b, ie. whether a appears after b in a
// ranked listing.
func Less(a, b Rankable, increment time.Duration) bool {
	return SortKey(a, increment).Before(SortKey(b, increment))
}
