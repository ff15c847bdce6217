package service

import "sync"

// keyedMutex hands out one mutex per key so trades against different pools or
// markets proceed in parallel while trades against the same entity serialize.
// Mutexes are never evicted; the key space (pool, market and wallet ids) is
// small and long-lived.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}

// EntityLocks holds the in-process mutual-exclusion domains of the engine.
// Lock ordering is fixed: pool or market first, then user wallets in
// ascending order. Every code path that takes more than one lock follows
// that order, which rules out deadlock.
type EntityLocks struct {
	pools   keyedMutex
	markets keyedMutex
	users   keyedMutex
}

// NewEntityLocks creates an empty lock registry shared by all services.
func NewEntityLocks() *EntityLocks {
	return &EntityLocks{}
}

// LockPool serializes access to one pool.
func (e *EntityLocks) LockPool(id string) func() {
	return e.pools.lock(id)
}

// LockMarket serializes access to one market.
func (e *EntityLocks) LockMarket(id string) func() {
	return e.markets.lock(id)
}

// LockUser serializes balance mutation for one wallet. Callers holding a pool
// or market lock must acquire it before any user lock.
func (e *EntityLocks) LockUser(wallet string) func() {
	return e.users.lock(wallet)
}

// LockUsers acquires several wallet locks in ascending key order and returns
// a single unlock for all of them. Duplicate wallets are locked once.
func (e *EntityLocks) LockUsers(wallets ...string) func() {
	uniq := make([]string, 0, len(wallets))
	seen := make(map[string]bool, len(wallets))
	for _, w := range wallets {
		if !seen[w] {
			seen[w] = true
			uniq = append(uniq, w)
		}
	}
	// Ascending order keeps concurrent multi-user operations deadlock-free.
	for i := 1; i < len(uniq); i++ {
		for j := i; j > 0 && uniq[j] < uniq[j-1]; j-- {
			uniq[j], uniq[j-1] = uniq[j-1], uniq[j]
		}
	}
	unlocks := make([]func(), 0, len(uniq))
	for _, w := range uniq {
		unlocks = append(unlocks, e.users.lock(w))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
