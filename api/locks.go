package api

import "sync"

// lockRegistry hands out one mutex per conference. Command processing is a
// read-modify-append cycle over a shared aggregate, so concurrent commands
// against the same conference must be serialized inside the process;
// different conferences proceed in parallel.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: map[string]*sync.Mutex{}}
}

// acquire blocks until the conference lock is held and returns the release
// func.
func (r *lockRegistry) acquire(conferenceID string) func() {
	r.mu.Lock()
	l, ok := r.locks[conferenceID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[conferenceID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
