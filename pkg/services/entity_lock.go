package services

import "sync"

// entityLocks serializes mutations per remote entity. Two workers acting
// on different ad sets proceed in parallel; two acting on the same ad set
// queue up, so read-compute-write budget math never interleaves.
type entityLocks struct {
	locks sync.Map // entity id -> *sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{}
}

// Lock acquires the mutex for key and returns its unlock function.
func (e *entityLocks) Lock(key string) func() {
	mu, _ := e.locks.LoadOrStore(key, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
