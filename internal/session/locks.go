package session

import "sync"

// filterLocks serialises broker operations per filter so that the
// zero-to-one and one-to-zero transitions of a filter reach the broker in
// the order they happened locally.
type filterLocks struct {
	mu    sync.Mutex
	locks map[string]*filterLock
}

type filterLock struct {
	mu   sync.Mutex
	refs int
}

func newFilterLocks() *filterLocks {
	return &filterLocks{locks: make(map[string]*filterLock)}
}

// lock acquires the lock for filter and returns its release function.
func (fl *filterLocks) lock(filter string) func() {
	fl.mu.Lock()
	l, ok := fl.locks[filter]
	if !ok {
		l = &filterLock{}
		fl.locks[filter] = l
	}
	l.refs++
	fl.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		fl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(fl.locks, filter)
		}
		fl.mu.Unlock()
	}
}
