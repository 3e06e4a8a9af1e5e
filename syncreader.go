package stampede

import (
	"sync"

	"github.com/eluv-io/utc-go"

	"github.com/eluv-io/common-go/format/duration"
)

// Unlocker is the interface to unlock a locked mutex.
type Unlocker interface {
	Unlock()
}

// SyncCreator produces a new value like a Creator, but additionally receives
// the write lock guarding the value. It generates the new data without any
// synchronization and takes the lock only for the critical moment of swapping
// the new data in: once Lock() returns, all readers that were in flight have
// exited, and no reader can observe a half-swapped state until Unlock().
type SyncCreator[V any] func(swap sync.Locker) (V, utc.UTC, error)

// SyncReader combines a Lock with a ReadWriteMutex so that the caller's
// entire scoped usage of the value is bracketed by a read lock. It is meant
// for resources that are regenerated by swapping data in place, e.g. a
// rewritten datafile.
//
// The synchronization between readers and the swap is process-local only,
// even when the creation mutex is backed by a distributed lock.
type SyncReader[V any] struct {
	lock *Lock[V]
	rw   ReadWriteMutex
}

// NewSyncReader creates a new SyncReader with the given expiration interval
// (0 = never expires).
func NewSyncReader[V any](expiry duration.Spec) *SyncReader[V] {
	return &SyncReader[V]{lock: New[V](expiry)}
}

// WithMutex replaces the creation mutex of the underlying Lock.
func (s *SyncReader[V]) WithMutex(m Mutex) *SyncReader[V] {
	s.lock.WithMutex(m)
	return s
}

// WithName sets a name used in logs and trace spans.
func (s *SyncReader[V]) WithName(name string) *SyncReader[V] {
	s.lock.WithName(name)
	return s
}

// WithInitialized marks the value as created "now", suppressing the forced
// synchronous creation on the first Acquire.
func (s *SyncReader[V]) WithInitialized() *SyncReader[V] {
	s.lock.WithInitialized()
	return s
}

// Acquire runs the same decision procedure as Lock.Acquire - the creator
// additionally receives the write lock, see SyncCreator - and then takes the
// read lock for the caller's scoped usage of the value. The caller must call
// Unlock on the returned Unlocker when done with the value:
//
//	value, scope, err := s.Acquire(creator, getter)
//	if err != nil {
//		return err
//	}
//	defer scope.Unlock()
//	... use value ...
//
// On error, no read lock is held and the returned Unlocker is nil.
func (s *SyncReader[V]) Acquire(creator SyncCreator[V], getter Getter[V]) (V, Unlocker, error) {
	var wrapped Creator[V]
	if creator != nil {
		wrapped = func() (V, utc.UTC, error) {
			return creator(s.WriteLocker())
		}
	}
	v, err := s.lock.Acquire(wrapped, getter)
	if err != nil {
		var zero V
		return zero, nil, err
	}
	s.rw.RLock()
	return v, readScope{&s.rw}, nil
}

// WriteLocker returns the write lock guarding the value, mutexed against all
// readers. It is handed to the creator during regeneration, but can also be
// used directly to swap the value outside of a creation cycle.
func (s *SyncReader[V]) WriteLocker() sync.Locker {
	return writeScope{&s.rw}
}

type readScope struct {
	rw *ReadWriteMutex
}

func (s readScope) Unlock() {
	s.rw.RUnlock()
}

type writeScope struct {
	rw *ReadWriteMutex
}

func (s writeScope) Lock() {
	s.rw.Lock()
}

func (s writeScope) Unlock() {
	s.rw.Unlock()
}
