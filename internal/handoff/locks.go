package handoff

import "sync"

// convLocks serialises work per conversation id. Entries are dropped once no
// caller holds or waits on them.
type convLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{locks: make(map[string]*convLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *convLocks) lock(id string) func() {
	l.mu.Lock()
	c, ok := l.locks[id]
	if !ok {
		c = &convLock{}
		l.locks[id] = c
	}
	c.refs++
	l.mu.Unlock()

	c.Lock()
	return func() {
		c.Unlock()
		l.mu.Lock()
		c.refs--
		if c.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *convLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
