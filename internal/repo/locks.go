// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package repo

import "sync"

// keyedLocks hands out one mutex per key so compound read-modify-write
// sequences on the same record serialize without blocking the rest of
// the repository. Locks are never reclaimed; the key space is bounded by
// the number of records in the collection.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}
