// Package stampede prevents "dogpiles" or "stampedes": many concurrent
// callers simultaneously discovering that an expensive, shared resource is
// missing or stale and all racing to regenerate it.
//
// The central type is Lock, which elects a single caller as the creator of a
// new value while all other callers either wait (on the very first creation,
// when no previous value exists) or continue to use the previous value without
// blocking:
//
//	l := stampede.New[string](duration.Spec(time.Hour))
//
//	value, err := l.Acquire(createValue, getValue)
//
// The creation function is only ever run by one caller at a time. Once the
// expiration interval has elapsed, the next caller to notice wins a
// non-blocking race for the creation mutex and regenerates the value; the
// losers return the stale value immediately. The value itself is owned by the
// caller: the lock only sequences when the creation function runs, it never
// stores the value. An optional getter retrieves the value and its creation
// time from an external source (e.g. a cache) and may signal with
// NeedRegeneration that no usable value exists, in which case the lock behaves
// as if the value had expired.
//
// SyncReader extends Lock for resources that are swapped in place, such as a
// rewritten datafile: callers hold a read lock for the duration of their
// scoped usage, and the creation function receives a write lock that it takes
// only for the critical moment of the swap, once all in-flight readers have
// exited.
//
// Registry hands out one lock instance per logical key to any number of
// concurrent callers. Instances are created lazily, shared while referenced
// and discarded as soon as the last holder releases them, so an unbounded key
// space does not accumulate unbounded lock state.
//
// The creation mutex is injectable via the Mutex interface: any primitive with
// blocking acquire, non-blocking acquire and release semantics can back a
// Lock, including file locks or store-backed distributed locks. Everything
// else in this package synchronizes within a single process only.
package stampede
