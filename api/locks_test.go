package api

import (
	"sync"
	"testing"
)

func TestLocksSerializeSameConference(t *testing.T) {
	locks := newLockRegistry()

	const workers = 50
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			unlock := locks.acquire("socrates-2026")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected %d increments, got %d", workers, counter)
	}
}

func TestLocksReuseMutexPerConference(t *testing.T) {
	locks := newLockRegistry()

	unlock := locks.acquire("a")
	unlock()
	unlock = locks.acquire("a")
	unlock()

	if len(locks.locks) != 1 {
		t.Fatalf("expected one mutex for conference a, got %d", len(locks.locks))
	}
}
