package stampede

import (
	"sync"
	"time"

	"github.com/eluv-io/errors-go"
	elog "github.com/eluv-io/log-go"
	"github.com/eluv-io/utc-go"

	"github.com/eluv-io/common-go/format/duration"
	"github.com/eluv-io/common-go/util/traceutil"
)

var log = elog.Get("/eluvio/stampede")

// NeedRegeneration returns the error with which a Getter signals that no
// usable value is currently available and the value must be (re-)created. The
// lock treats it exactly like an expired value. It is a control flow signal,
// not a defect, and hence carries no stack trace.
func NeedRegeneration() error {
	return errors.NoTrace("get value", errors.K.NotExist, "reason", "need regeneration")
}

// IsNeedRegeneration reports whether err is a NeedRegeneration signal. Any
// "not exist" error qualifies, so a Getter may also return e.g. a cache miss
// unchanged.
func IsNeedRegeneration(err error) bool {
	return errors.IsNotExist(err)
}

// Creator produces a new value - or refreshes a backing store as a side
// effect. It is only ever invoked with the exclusive creation right: no two
// invocations for the same Lock run concurrently. The returned creation time
// is recorded for subsequent staleness checks; if it is utc.Zero, the current
// time is recorded instead.
type Creator[V any] func() (V, utc.UTC, error)

// Getter retrieves the current value and its creation time from an external
// source such as a cache. It returns a NeedRegeneration error if no usable
// value exists. The returned creation time supersedes the creation time
// tracked by the Lock itself, which allows a fresh Lock instance to pick up
// where a previous one left off.
type Getter[V any] func() (V, utc.UTC, error)

// Lock elects at most one concurrent caller as the creator of a value while
// all other callers continue with the previous value. See Acquire for the
// decision procedure and the package documentation for usage.
//
// A Lock is created once per logical resource with New, or per key via a
// Registry. It must not be copied after first use.
type Lock[V any] struct {
	mutex   Mutex  // creation mutex: held by the elected creator
	expiry  time.Duration
	name    string
	refresh bool

	mu          sync.Mutex // guards createdTime
	createdTime utc.UTC
}

// New creates a new stampede lock for values that expire after the given
// interval. An expiry of 0 means the value never expires: once created, it is
// only ever regenerated when a Getter signals NeedRegeneration.
func New[V any](expiry duration.Spec) *Lock[V] {
	return &Lock[V]{
		mutex:  &localMutex{},
		expiry: expiry.Duration(),
	}
}

// WithMutex replaces the default in-process creation mutex, e.g. with a file
// lock or a store-backed distributed lock.
func (l *Lock[V]) WithMutex(m Mutex) *Lock[V] {
	l.mutex = m
	return l
}

// WithName sets a name used in logs and trace spans.
func (l *Lock[V]) WithName(name string) *Lock[V] {
	l.name = name
	return l
}

// WithInitialized marks the value as created "now", suppressing the forced
// synchronous creation on the first Acquire.
func (l *Lock[V]) WithInitialized() *Lock[V] {
	l.advanceCreatedTime(utc.Now())
	return l
}

// WithBackgroundRefresh regenerates expired values on a separate goroutine:
// the caller that wins the creation race returns the stale value immediately
// like everybody else, and the new value becomes visible through the Getter
// once regeneration completes. Creator errors are logged, not propagated. The
// forced first creation remains synchronous, since no stale value exists yet
// that could be returned.
func (l *Lock[V]) WithBackgroundRefresh() *Lock[V] {
	l.refresh = true
	return l
}

// Acquire returns the current value, regenerating it if needed:
//
//   - If no value was ever created (and WithInitialized was not used), the
//     caller blocks on the creation mutex, runs the creator and returns the
//     new value. Concurrent callers block on the same mutex and return the
//     freshly created value once it is released.
//   - Otherwise, if the value is not expired - according to the getter's
//     creation time if a getter is supplied, the lock's own otherwise - the
//     value is returned immediately without any locking.
//   - If the value is expired, the caller tries to take the creation mutex
//     without blocking. The winner re-checks staleness under the mutex (the
//     value may have been refreshed concurrently, e.g. by another process
//     sharing the backing store), runs the creator if still needed and
//     returns the new value. All losers return the stale value immediately:
//     callers never wait for an in-progress regeneration.
//
// Errors from the creator or getter are returned unchanged; the creation
// mutex is released on every exit path. Without a getter the returned value
// is the zero value of V unless this caller ran the creator - this is the
// "null resource" pattern, where the creator refreshes a resource that lives
// entirely outside the lock.
func (l *Lock[V]) Acquire(creator Creator[V], getter Getter[V]) (V, error) {
	var zero V
	if creator == nil {
		return zero, errors.E("stampede.acquire", errors.K.Invalid, "reason", "creator is nil", "name", l.name)
	}

	if getter == nil {
		v, _, err := l.enterCreate(creator)
		return v, err
	}

	var value V
	haveValue := false
	v, ts, err := getter()
	switch {
	case err == nil:
		value = v
		haveValue = true
		l.advanceCreatedTime(ts)
	case IsNeedRegeneration(err):
		if log.IsDebug() {
			log.Debug("getter needs regeneration", "name", l.name)
		}
		l.clearCreatedTime()
	default:
		return zero, err
	}

	created, ok, err := l.enterCreate(creator)
	if err != nil {
		return zero, err
	}
	if ok {
		return created, nil
	}
	if haveValue {
		return value, nil
	}

	// the getter had no value and another caller performed the creation: the
	// getter must see the freshly created value now
	v, ts, err = getter()
	if err != nil {
		if IsNeedRegeneration(err) {
			return zero, errors.E("stampede.acquire", errors.K.Invalid, "name", l.name,
				"reason", "getter reports no value right after creation")
		}
		return zero, err
	}
	l.advanceCreatedTime(ts)
	return v, nil
}

// enterCreate implements the creation race. It returns the new value and true
// if this caller ran the creator, the zero value and false if the existing
// value is still usable or regeneration is in progress elsewhere.
func (l *Lock[V]) enterCreate(creator Creator[V]) (v V, created bool, err error) {
	var zero V
	e := errors.Template("stampede.create", "name", l.name)

	if !l.isExpired() {
		return zero, false, nil
	}

	background := false
	hasValue := l.hasValue()
	if hasValue {
		acquired, err := l.mutex.TryLock()
		if err != nil {
			return zero, false, e(errors.K.Unavailable, err)
		}
		if !acquired {
			if log.IsDebug() {
				log.Debug("creation in progress elsewhere, returning stale value", "name", l.name)
			}
			return zero, false, nil
		}
	} else {
		if log.IsDebug() {
			log.Debug("no value, waiting for creation lock", "name", l.name)
		}
		if err := l.mutex.Lock(); err != nil {
			return zero, false, e(errors.K.Unavailable, err)
		}
	}
	defer func() {
		if !background {
			l.mutex.Unlock()
		}
	}()

	// re-check under the mutex: another caller - or another process, when the
	// creation time is sourced externally - may have refreshed the value
	// between the staleness check and the lock acquisition
	if !l.isExpired() {
		if log.IsDebug() {
			log.Debug("value regenerated concurrently", "name", l.name)
		}
		return zero, false, nil
	}

	if l.refresh && hasValue {
		// a stale value exists for the caller to use right away: regenerate
		// in the background and hand mutex release off to the goroutine
		background = true
		go l.createInBackground(creator)
		return zero, false, nil
	}

	v, err = l.create(creator)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (l *Lock[V]) create(creator Creator[V]) (V, error) {
	span := traceutil.StartSpan("stampede.Lock.create")
	defer span.End()
	if span.IsRecording() {
		span.Attribute("name", l.name)
	}

	v, ts, err := creator()
	if err != nil {
		var zero V
		return zero, err
	}
	if ts.IsZero() {
		ts = utc.Now()
	}
	l.advanceCreatedTime(ts)
	return v, nil
}

func (l *Lock[V]) createInBackground(creator Creator[V]) {
	defer l.mutex.Unlock()
	if _, err := l.create(creator); err != nil {
		log.Warn("background regeneration failed", "name", l.name, "err", err)
	}
}

func (l *Lock[V]) hasValue() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.createdTime.IsZero()
}

func (l *Lock[V]) isExpired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createdTime.IsZero() {
		return true
	}
	return l.expiry > 0 && utc.Now().Sub(l.createdTime) > l.expiry
}

// advanceCreatedTime records ts as the new creation time. The creation time
// only ever moves forward.
func (l *Lock[V]) advanceCreatedTime(ts utc.UTC) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts.After(l.createdTime) {
		l.createdTime = ts
	}
}

func (l *Lock[V]) clearCreatedTime() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.createdTime = utc.Zero
}
