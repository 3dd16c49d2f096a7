package locking

import (
	"context"
	"fmt"
	"sync"
)

type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process keyed lock. Entries are dropped once no goroutine holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}

	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)

		return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
	}

	var once sync.Once

	return func(context.Context) error {
		once.Do(func() {
			<-entry.sem
			l.release(key, entry)
		})

		return nil
	}, nil
}

func (l *Local) release(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
