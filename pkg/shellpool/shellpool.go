// Package shellpool provides a minimal fire-and-forget task spawner for bind
// and reverse shell workers (component E's shell escalation): one goroutine
// per payload template, never joined by the core.
package shellpool

import (
	"fmt"
	"sync"
)

// Handle identifies a spawned worker and exposes its completion channel for
// callers that want to observe it. The core itself never selects on Done.
type Handle struct {
	ID   string
	Done <-chan struct{}
}

var seq struct {
	mu sync.Mutex
	n  int
}

func nextID() string {
	seq.mu.Lock()
	defer seq.mu.Unlock()
	seq.n++
	return fmt.Sprintf("shell-worker-%d", seq.n)
}

// Spawn runs fn in its own goroutine and returns a Handle immediately. fn is
// expected to issue a single blocking call and return; panics inside fn are
// not recovered, matching the original's bare thread target.
func Spawn(fn func()) Handle {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return Handle{ID: nextID(), Done: done}
}
