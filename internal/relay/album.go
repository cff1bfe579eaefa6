package relay

import (
	"sync"
	"time"
)

// Aggregator reassembles media albums. The platform delivers an album as a
// burst of independent events sharing a group id and never signals the end
// of the group, so completion is inferred by quiescence: a timer keyed by
// group id is reset on every part and the buffered parts are flushed in
// arrival order when it finally fires.
//
// Correctness depends on the window exceeding the largest inter-part gap.
// That makes the window a tunable, not a guarantee: too small and an album
// is delivered in two pieces.
type Aggregator struct {
	mu     sync.Mutex
	window time.Duration
	groups map[string]*pendingAlbum
}

type pendingAlbum struct {
	parts []Content
	flush func(parts []Content)
	timer *time.Timer
}

// DefaultAlbumWindow covers the burst spacing observed in practice.
const DefaultAlbumWindow = 500 * time.Millisecond

// NewAggregator builds an aggregator with the given quiescence window.
// Non-positive means DefaultAlbumWindow.
func NewAggregator(window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultAlbumWindow
	}
	return &Aggregator{
		window: window,
		groups: make(map[string]*pendingAlbum),
	}
}

// Add buffers one part for the group and (re)starts its quiescence timer.
// flush is invoked exactly once per assembled group, from the timer
// goroutine, after the window elapses with no further parts.
func (a *Aggregator) Add(groupID string, part Content, flush func(parts []Content)) {
	a.mu.Lock()
	g, ok := a.groups[groupID]
	if !ok {
		g = &pendingAlbum{}
		a.groups[groupID] = g
		g.timer = time.AfterFunc(a.window, func() { a.complete(groupID) })
	} else {
		g.timer.Reset(a.window)
	}
	g.parts = append(g.parts, part)
	g.flush = flush
	a.mu.Unlock()
}

// Pending reports how many groups are currently buffered.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

func (a *Aggregator) complete(groupID string) {
	a.mu.Lock()
	g, ok := a.groups[groupID]
	if ok {
		delete(a.groups, groupID)
	}
	a.mu.Unlock()
	if !ok {
		// a concurrent completion already consumed the group
		return
	}
	g.flush(g.parts)
}
