// Package keyedmutex provides mutual exclusion per string key.
package keyedmutex

import (
	"context"
	"sync"
)

// KeyedMutex is a set of locks indexed by a key.
//
// Zero value is ready to use. Locks of different keys do not block each other.
type KeyedMutex struct {
	m     sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Lock takes the lock for the key.
//
// It blocks until the lock is taken or ctx is done.
// The returned function releases the lock. It can be called many times.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.m.Lock()
	if k.locks == nil {
		k.locks = map[string]*entry{}
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs += 1
	k.m.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.forget(key, e)
		return nil, ctx.Err()
	}

	once := new(sync.Once)
	return func() {
		once.Do(func() {
			<-e.sem
			k.forget(key, e)
		})
	}, nil
}

func (k *KeyedMutex) forget(key string, e *entry) {
	k.m.Lock()
	defer k.m.Unlock()
	e.refs -= 1
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys locked or waited for.
func (k *KeyedMutex) Len() int {
	k.m.Lock()
	defer k.m.Unlock()
	return len(k.locks)
}
