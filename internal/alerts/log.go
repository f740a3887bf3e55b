package alerts

import (
	"sync"

	"github.com/spec-kit/tweet-triage/internal/domain"
)

// Log is the append-only alert stream. Alerts are never mutated or deleted,
// so a cursor is simply an offset into the sequence: a consumer can page
// from any cursor it saw before, including after a reconnect.
type Log struct {
	mu     sync.RWMutex
	alerts []domain.Alert
	subs   map[chan domain.Alert]struct{}
}

// NewLog creates an empty alert log.
func NewLog() *Log {
	return &Log{subs: make(map[chan domain.Alert]struct{})}
}

// Append records an alert and fans it out to live subscribers. A subscriber
// with a full buffer misses the live push but can always catch up from its
// cursor.
func (l *Log) Append(alert domain.Alert) {
	l.mu.Lock()
	l.alerts = append(l.alerts, alert)
	for ch := range l.subs {
		select {
		case ch <- alert:
		default:
		}
	}
	l.mu.Unlock()
}

// Page returns up to limit alerts starting at cursor, plus the cursor to
// resume from.
func (l *Log) Page(cursor uint64, limit int) ([]domain.Alert, uint64) {
	if limit <= 0 {
		limit = 50
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cursor >= uint64(len(l.alerts)) {
		return []domain.Alert{}, uint64(len(l.alerts))
	}
	end := cursor + uint64(limit)
	if end > uint64(len(l.alerts)) {
		end = uint64(len(l.alerts))
	}
	page := make([]domain.Alert, end-cursor)
	copy(page, l.alerts[cursor:end])
	return page, end
}

// Len returns the current cursor high-water mark.
func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.alerts))
}

// Subscribe returns a channel receiving alerts appended from now on. The
// caller must Unsubscribe when done.
func (l *Log) Subscribe() chan domain.Alert {
	ch := make(chan domain.Alert, 64)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (l *Log) Unsubscribe(ch chan domain.Alert) {
	l.mu.Lock()
	delete(l.subs, ch)
	l.mu.Unlock()
	close(ch)
}
