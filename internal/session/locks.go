package session

import "sync"

// Locks serializes turns per conversation. Only one turn may run for a
// given conversation at a time; a second caller gets a busy rejection
// instead of queueing behind a slow turn.
type Locks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]struct{})}
}

// TryAcquire attempts to take the lock for convID. On success it
// returns a release function and true. On contention it returns false
// without blocking.
func (l *Locks) TryAcquire(convID string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[convID]; busy {
		return nil, false
	}
	l.held[convID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, convID)
			l.mu.Unlock()
		})
	}, true
}
