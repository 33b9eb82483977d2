package relay

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Dedup is a time-bounded seen-set for inbound relay events. Chat relays
// redeliver events (reconnects, retries, the bot coming back online), so each
// event id is processed at most once within the recency window. Entries
// expire on their own; there is no global state and no manual sweep.
type Dedup struct {
	seen   *expirable.LRU[string, time.Time]
	window time.Duration
}

// NewDedup creates a Dedup holding up to maxEntries ids for window each.
func NewDedup(maxEntries int, window time.Duration) *Dedup {
	return &Dedup{
		seen:   expirable.NewLRU[string, time.Time](maxEntries, nil, window),
		window: window,
	}
}

// Seen reports whether the event id was already marked within the window.
func (d *Dedup) Seen(eventID string) bool {
	return d.seen.Contains(eventID)
}

// Mark records the event id as processed.
func (d *Dedup) Mark(eventID string) {
	d.seen.Add(eventID, time.Now())
}

// TooOld reports whether an event timestamp falls outside the recency window.
// Events delivered after the window (e.g. replayed while the relay was down)
// are skipped rather than ingested late.
func (d *Dedup) TooOld(eventTime time.Time) bool {
	return time.Since(eventTime) > d.window
}
