package stampede

import (
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"go.uber.org/atomic"

	"github.com/eluv-io/common-go/util/jsonutil"
	"github.com/eluv-io/common-go/util/stringutil"
	"github.com/eluv-io/common-go/util/traceutil"
)

// Releaser is the interface to release a held registry entry.
type Releaser interface {
	Release()
}

// NewRegistry creates a new Registry using the given factory to create the
// per-key instance on first use. Additional per-key creation arguments are
// closed over by the factory.
func NewRegistry[K comparable, T any](factory func(key K) T) *Registry[K, T] {
	return &Registry[K, T]{
		factory: factory,
		active:  make(map[K]*regEntry[T]),
	}
}

// Registry hands out one instance - typically a *Lock or *SyncReader - per
// key to any number of concurrent callers. Instances are created lazily on
// first Get, shared by all concurrent holders of the same key and discarded
// when the last holder calls Release. This bounds the registry's memory to
// the currently in-flight keys rather than all keys ever seen, which matters
// when the key space is unbounded (e.g. remote cache keys).
//
// Two concurrent Get calls for the same key never create two distinct
// instances: creation happens under the registry's single mapping guard.
//
// Usage:
//
//	reg := stampede.NewRegistry(func(key string) *stampede.Lock[string] {
//		return stampede.New[string](expiry).WithName(key)
//	})
//
//	l, held := reg.Get("my-key")
//	defer held.Release()
//	...
type Registry[K comparable, T any] struct {
	factory func(K) T
	mutex   sync.Mutex     // guards active, idle and metrics
	active  map[K]*regEntry[T]
	idle    *simplelru.LRU // optional second tier for released entries
	metrics Metrics
}

type regEntry[T any] struct {
	instance T
	refCount int
}

// WithName sets a name used in logs, metrics and trace spans.
func (r *Registry[K, T]) WithName(name string) *Registry[K, T] {
	r.metrics.Name = name
	return r
}

// WithIdleCache retains up to maxSize released instances in an LRU instead of
// discarding them immediately. A subsequent Get revives the instance with its
// creation timestamp intact. Without an idle cache (the default), an entry
// exists if and only if it has at least one holder.
func (r *Registry[K, T]) WithIdleCache(maxSize int) *Registry[K, T] {
	if maxSize > 0 {
		r.idle, _ = simplelru.NewLRU(maxSize, r.onEvict)
		r.metrics.Config.MaxIdle = maxSize
	}
	return r
}

// Get returns the instance for the given key, creating it with the factory if
// no holder and no idle entry exists. The caller must call Release on the
// returned Releaser when done with the instance; Release is safe to call at
// most once, duplicates are logged and ignored.
func (r *Registry[K, T]) Get(key K) (T, Releaser) {
	span := traceutil.StartSpan("stampede.Registry.Get")
	defer span.End()
	if span.IsRecording() {
		span.Attribute("registry", r.metrics.Name)
		span.Attribute("key", stringutil.ToString(key))
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	ent, found := r.active[key]
	if found {
		ent.refCount++
		r.metrics.Hit()
	} else {
		if r.idle != nil {
			if val, ok := r.idle.Get(key); ok {
				// revive from the idle tier: the entry stays in the LRU and
				// is only discarded once gone from both tiers (see onEvict)
				ent = val.(*regEntry[T])
				r.metrics.Hit()
			}
		}
		if ent == nil {
			ent = &regEntry[T]{instance: r.factory(key)}
			r.metrics.Add()
			r.metrics.Miss()
		}
		ent.refCount = 1
		r.active[key] = ent
	}
	return ent.instance, &releaser[K, T]{registry: r, key: key}
}

// Len returns the number of entries with at least one current holder.
func (r *Registry[K, T]) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.active)
}

// Metrics returns a copy of the registry's runtime properties.
func (r *Registry[K, T]) Metrics() Metrics {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.metrics
}

// CollectMetrics returns a copy of the registry's runtime properties.
func (r *Registry[K, T]) CollectMetrics() jsonutil.GenericMarshaler {
	m := r.Metrics()
	return &m
}

func (r *Registry[K, T]) release(key K) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ent, found := r.active[key]
	if !found {
		log.Warn("stampede.Registry: release called for unknown key",
			"registry", r.metrics.Name, "key", key)
		return
	}

	ent.refCount--
	if ent.refCount > 0 {
		// still in use
		return
	}

	delete(r.active, key)
	if r.idle != nil {
		r.idle.Add(key, ent)
	} else {
		r.metrics.Remove()
	}
}

func (r *Registry[K, T]) onEvict(key interface{}, _ interface{}) {
	// always called holding r.mutex. The entry is only gone for good if it is
	// absent from the active map as well.
	if _, found := r.active[key.(K)]; !found {
		r.metrics.Remove()
	}
}

type releaser[K comparable, T any] struct {
	registry *Registry[K, T]
	key      K
	released atomic.Bool
}

func (h *releaser[K, T]) Release() {
	if !h.released.CAS(false, true) {
		log.Warn("stampede.Registry: duplicate release",
			"registry", h.registry.metrics.Name, "key", h.key)
		return
	}
	h.registry.release(h.key)
}
