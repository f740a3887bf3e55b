package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := newSlidingWindow(10 * time.Minute)

	w.Add(base, 4)
	w.Add(base.Add(2*time.Minute), 6)
	w.Add(base.Add(9*time.Minute), 2)

	now := base.Add(9 * time.Minute)
	assert.Equal(t, 3, w.Count(now))
	assert.Equal(t, 12.0, w.Sum(now))
	assert.Equal(t, 4.0, w.Mean(now))

	// base entry falls out at base+10m (boundary is inclusive-expire).
	now = base.Add(10 * time.Minute)
	assert.Equal(t, 2, w.Count(now))
	assert.Equal(t, 8.0, w.Sum(now))

	now = base.Add(time.Hour)
	assert.Equal(t, 0, w.Count(now))
	assert.Equal(t, 0.0, w.Sum(now))
	assert.Equal(t, 0.0, w.Mean(now))
}

func TestSlidingWindowCompaction(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := newSlidingWindow(time.Minute)

	for i := 0; i < 1000; i++ {
		w.Add(base.Add(time.Duration(i)*time.Second), 1)
	}
	// Everything older than the final minute is gone and the backing slice
	// has been compacted rather than growing a dead prefix forever.
	now := base.Add(1000 * time.Second)
	assert.Equal(t, 59, w.Count(now))
	assert.Less(t, len(w.entries), 200)
}
