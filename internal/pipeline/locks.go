package pipeline

import (
	"sync"
)

// urlLocks enforces at-most-one in-flight job per target URL. Acquisition is
// non-blocking: a second job for the same URL is rejected and stays queued
// rather than running concurrently.
type urlLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newURLLocks() *urlLocks {
	return &urlLocks{held: make(map[string]bool)}
}

// TryAcquire reports whether the URL was free and is now held.
func (l *urlLocks) TryAcquire(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[url] {
		return false
	}
	l.held[url] = true
	return true
}

func (l *urlLocks) Release(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, url)
}

// entityLocks serializes compare-then-persist for a logical truck entity so
// two concurrent ingestions of the same real-world truck cannot race
// duplicate resolution. Keys are resolved entity ids, or a normalized name
// key when no id is known yet.
type entityLocks struct {
	mu      sync.Mutex
	entries map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{entries: make(map[string]*entityLock)}
}

// Lock blocks until the key's lock is held and returns the unlock function.
func (l *entityLocks) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entityLock{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
