package bidding

import "sync"

// lockTable hands out one mutex per auction id. Entries are reference
// counted and removed once no goroutine holds or waits for them, so the
// table only grows with the number of auctions under contention.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyedLock)}
}

// lock blocks until the caller holds the auction's mutex and returns the
// function that releases it.
func (t *lockTable) lock(key string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyedLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

// size reports how many auctions currently have a lock entry
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
