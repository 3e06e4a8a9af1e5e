package stampede

import "sync"

// Mutex is the synchronization capability required by Lock for electing the
// creator of a value. The default is an in-process exclusive lock, but any
// primitive with acquire/release semantics can be injected with WithMutex,
// e.g. a file lock or a lock backed by a shared store.
//
// Lock may fail if the implementation imposes its own timeout; such a failure
// is surfaced by Lock.Acquire as "lock unavailable" and never retried.
// TryLock never blocks. Unlock must be safe to call after any successful
// acquisition, including from a different goroutine.
type Mutex interface {
	Lock() error
	TryLock() (bool, error)
	Unlock()
}

// localMutex adapts sync.Mutex to the Mutex interface.
type localMutex struct {
	mu sync.Mutex
}

func (m *localMutex) Lock() error {
	m.mu.Lock()
	return nil
}

func (m *localMutex) TryLock() (bool, error) {
	return m.mu.TryLock(), nil
}

func (m *localMutex) Unlock() {
	m.mu.Unlock()
}
