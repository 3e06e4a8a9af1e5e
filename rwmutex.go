package stampede

import "sync"

// ReadWriteMutex lets any number of readers proceed concurrently while a
// single writer phase is deferred until all readers have exited. It is used by
// SyncReader to let a regeneration step swap in new data without corrupting
// in-flight readers.
//
// Unlike sync.RWMutex it is deliberately built from plain exclusive locks: a
// writer token that also gates new readers, a mutex guarding the reader count,
// and a drain lock held as long as any reader is inside. A writer acquires the
// token - blocking new readers from that moment on - and then waits for the
// reader count to drain to zero. No FIFO ordering is guaranteed between
// waiting readers and writers, and a writer may starve under continuous
// reader arrival.
//
// The zero value for ReadWriteMutex is ready to be used. Deadlock is a caller
// error (e.g. a reader taking the write phase on the same goroutine without
// releasing first) and is not detected.
type ReadWriteMutex struct {
	writer  sync.Mutex // the writer token: held from request to release, gates new readers
	reading sync.Mutex // guards the reader count
	drain   sync.Mutex // held while readers are inside; a writer waits on it
	readers int
}

// RLock acquires the read lock. It blocks while a writer holds or awaits the
// write phase.
func (m *ReadWriteMutex) RLock() {
	m.writer.Lock()
	m.writer.Unlock()

	m.reading.Lock()
	defer m.reading.Unlock()
	m.readers++
	if m.readers == 1 {
		m.drain.Lock()
	}
}

// RUnlock releases the read lock. It panics if the mutex is not read-locked.
func (m *ReadWriteMutex) RUnlock() {
	m.reading.Lock()
	defer m.reading.Unlock()
	if m.readers <= 0 {
		panic("stampede: RUnlock of unlocked ReadWriteMutex")
	}
	m.readers--
	if m.readers == 0 {
		m.drain.Unlock()
	}
}

// Lock acquires the write lock: it blocks new readers, waits until all
// in-flight readers have called RUnlock and then holds exclusively.
func (m *ReadWriteMutex) Lock() {
	m.writer.Lock()
	m.drain.Lock()
}

// Unlock releases the write lock, admitting readers and other writers again.
func (m *ReadWriteMutex) Unlock() {
	m.drain.Unlock()
	m.writer.Unlock()
}
