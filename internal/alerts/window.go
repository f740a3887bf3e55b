package alerts

import "time"

type windowEntry struct {
	at    time.Time
	value float64
}

// slidingWindow is an append-ordered series of observations with lazy
// expiry and running aggregates. Add is O(1); reads pay only for the entries
// that expired since the last read, so evaluation cost is amortized across
// events instead of rescanning the live window each time.
type slidingWindow struct {
	retention time.Duration
	entries   []windowEntry
	start     int
	sum       float64
	count     int
}

func newSlidingWindow(retention time.Duration) *slidingWindow {
	return &slidingWindow{retention: retention}
}

// Add records one observation. The engine feeds observations at event time,
// so they arrive roughly in order.
func (w *slidingWindow) Add(at time.Time, value float64) {
	w.entries = append(w.entries, windowEntry{at: at, value: value})
	w.sum += value
	w.count++
}

// trim drops entries older than now-retention, adjusting the running
// aggregates, and compacts the backing slice once the dead prefix dominates.
func (w *slidingWindow) trim(now time.Time) {
	cutoff := now.Add(-w.retention)
	for w.start < len(w.entries) && !w.entries[w.start].at.After(cutoff) {
		w.sum -= w.entries[w.start].value
		w.count--
		w.start++
	}
	if w.start > 0 && w.start*2 >= len(w.entries) {
		w.entries = append([]windowEntry(nil), w.entries[w.start:]...)
		w.start = 0
	}
}

// Count returns the number of live observations.
func (w *slidingWindow) Count(now time.Time) int {
	w.trim(now)
	return w.count
}

// Sum returns the sum of live observation values.
func (w *slidingWindow) Sum(now time.Time) float64 {
	w.trim(now)
	return w.sum
}

// Mean returns the average live value, or 0 for an empty window.
func (w *slidingWindow) Mean(now time.Time) float64 {
	w.trim(now)
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}
