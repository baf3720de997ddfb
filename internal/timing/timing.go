package timing

import (
	"sync"
	"time"
)

// Tracker records named durations for a single request. It is safe for
// concurrent use so parallel retrieval stages can report into one tracker.
type Tracker struct {
	mu    sync.Mutex
	spans map[string]time.Duration
	start time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		spans: make(map[string]time.Duration),
		start: time.Now(),
	}
}

// Track starts a named span and returns a function that stops it.
//
//	defer t.Track("classify")()
func (t *Tracker) Track(name string) func() {
	start := time.Now()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.spans[name] += time.Since(start)
	}
}

// Add records an externally measured duration under name.
func (t *Tracker) Add(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans[name] += d
}

// BreakdownMs returns all recorded spans in milliseconds plus a "total"
// entry measured from tracker creation.
func (t *Tracker) BreakdownMs() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64, len(t.spans)+1)
	for name, d := range t.spans {
		out[name] = d.Milliseconds()
	}
	out["total"] = time.Since(t.start).Milliseconds()
	return out
}
