package stampede

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/eluv-io/common-go/util/syncutil"
)

// All N readers must be able to hold the read lock simultaneously: each
// reader blocks inside the critical section until all others have arrived.
func TestConcurrentReaders(t *testing.T) {
	rw := &ReadWriteMutex{}

	numReaders := 8
	inside := atomic.NewInt64(0)
	allInside := make(chan struct{})

	wg := &sync.WaitGroup{}
	wg.Add(numReaders)
	for i := 0; i < numReaders; i++ {
		go func() {
			defer wg.Done()
			rw.RLock()
			defer rw.RUnlock()
			if inside.Add(1) == int64(numReaders) {
				close(allInside)
			}
			<-allInside
		}()
	}

	require.False(t, syncutil.WaitTimeout(wg, 3*time.Second))
	require.Equal(t, int64(numReaders), inside.Load())
}

func TestWriterWaitsForReaders(t *testing.T) {
	rw := &ReadWriteMutex{}

	rw.RLock() // reader in flight

	writerHolds := atomic.NewBool(false)
	releaseWriter := make(chan struct{})
	writerDone := &sync.WaitGroup{}
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		rw.Lock()
		writerHolds.Store(true)
		<-releaseWriter
		rw.Unlock()
	}()

	// the writer must not proceed while the reader is inside
	time.Sleep(50 * time.Millisecond)
	require.False(t, writerHolds.Load())

	// a reader requested while the writer is waiting is blocked as well
	lateReaderDone := &sync.WaitGroup{}
	lateReaderDone.Add(1)
	lateReaderIn := atomic.NewBool(false)
	go func() {
		defer lateReaderDone.Done()
		rw.RLock()
		lateReaderIn.Store(true)
		rw.RUnlock()
	}()
	time.Sleep(50 * time.Millisecond)
	require.False(t, lateReaderIn.Load())

	// last reader leaves: the writer proceeds, the late reader still waits
	rw.RUnlock()
	require.Eventually(t, writerHolds.Load, time.Second, time.Millisecond)
	require.False(t, lateReaderIn.Load())

	// writer releases: the late reader gets in
	close(releaseWriter)
	require.False(t, syncutil.WaitTimeout(writerDone, 3*time.Second))
	require.False(t, syncutil.WaitTimeout(lateReaderDone, 3*time.Second))
	require.True(t, lateReaderIn.Load())
}

func TestWritersAreExclusive(t *testing.T) {
	rw := &ReadWriteMutex{}

	numWriters := 4
	inside := atomic.NewInt64(0)
	maxInside := atomic.NewInt64(0)

	wg := &sync.WaitGroup{}
	wg.Add(numWriters)
	for i := 0; i < numWriters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				rw.Lock()
				if n := inside.Add(1); n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				rw.Unlock()
			}
		}()
	}

	require.False(t, syncutil.WaitTimeout(wg, 10*time.Second))
	require.Equal(t, int64(1), maxInside.Load())
}

func TestRUnlockOfUnlockedMutex(t *testing.T) {
	rw := &ReadWriteMutex{}
	require.Panics(t, func() { rw.RUnlock() })
}
