package registry

import (
	"sort"
	"sync"

	"github.com/gammazero/deque"

	"github.com/BaSui01/streambridge/types"
)

// DefaultRetiredCapacity 默认记住的已退役 ID 数量
const DefaultRetiredCapacity = 1024

// Releaser is implemented by entries that hold resources which must be
// released exactly once when the entry leaves the registry.
type Releaser interface {
	Release()
}

// Handle 指向 arena 中的槽位；槽位复用时 generation 递增，旧 Handle 失效
type Handle struct {
	index      uint32
	generation uint32
}

// Valid reports whether h was issued by a registry. The zero Handle is invalid.
func (h Handle) Valid() bool {
	return h.generation != 0
}

type slot[E any] struct {
	id         string
	entry      E
	generation uint32
	live       bool
}

type options struct {
	retiredCapacity int
}

// Option configures a Registry.
type Option func(*options)

// WithRetiredCapacity sets how many recently retired IDs are remembered for
// late-message diagnosis. Zero disables the history.
func WithRetiredCapacity(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retiredCapacity = n
		}
	}
}

// Registry 关联 ID 到流条目的映射，每个通道端一个实例。
// 锁只保护映射本身，条目内部状态由条目自己的锁保护。
type Registry[E any] struct {
	mu    sync.Mutex
	slots []slot[E]
	free  []uint32
	index map[string]Handle

	retired         *deque.Deque[string]
	retiredCount    map[string]int
	retiredCapacity int

	closed bool
}

// New creates an empty registry.
func New[E any](opts ...Option) *Registry[E] {
	o := options{retiredCapacity: DefaultRetiredCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[E]{
		index:           make(map[string]Handle),
		retired:         deque.New[string](),
		retiredCount:    make(map[string]int),
		retiredCapacity: o.retiredCapacity,
	}
}

// Register adds entry under id. It fails with ALREADY_REGISTERED while id is
// live and with STREAM_CLOSED after Close.
func (r *Registry[E]) Register(id string, entry E) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Handle{}, types.NewError(types.ErrStreamClosed, "registry closed").WithStreamID(id)
	}
	if _, ok := r.index[id]; ok {
		return Handle{}, types.AlreadyRegistered(id)
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot[E]{})
		idx = uint32(len(r.slots) - 1)
	}

	s := &r.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.id = id
	s.entry = entry
	s.live = true

	h := Handle{index: idx, generation: s.generation}
	r.index[id] = h
	return h, nil
}

// Lookup returns the live entry for id or NOT_FOUND.
func (r *Registry[E]) Lookup(id string) (E, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.index[id]
	if !ok {
		var zero E
		return zero, types.NotFound(id)
	}
	return r.slots[h.index].entry, nil
}

// Get resolves a handle. Stale handles (slot since freed or reused) miss.
func (r *Registry[E]) Get(h Handle) (E, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero E
	if !h.Valid() || int(h.index) >= len(r.slots) {
		return zero, false
	}
	s := &r.slots[h.index]
	if !s.live || s.generation != h.generation {
		return zero, false
	}
	return s.entry, true
}

// Unregister removes id and releases its entry. Only the call that actually
// removes the entry returns true; repeated calls are no-ops.
func (r *Registry[E]) Unregister(id string) bool {
	r.mu.Lock()
	entry, ok := r.removeLocked(id)
	r.mu.Unlock()

	if ok {
		release(entry)
	}
	return ok
}

// Retired reports whether id was recently unregistered and is not live again.
func (r *Registry[E]) Retired(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.index[id]; live {
		return false
	}
	return r.retiredCount[id] > 0
}

// Len returns the number of live entries.
func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

// IDs returns the live IDs in sorted order.
func (r *Registry[E]) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.index))
	for id := range r.index {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Close unregisters every live entry and rejects further registrations.
// It returns the entries removed, already released.
func (r *Registry[E]) Close() []E {
	r.mu.Lock()
	r.closed = true
	removed := make([]E, 0, len(r.index))
	for id := range r.index {
		if entry, ok := r.removeLocked(id); ok {
			removed = append(removed, entry)
		}
	}
	r.mu.Unlock()

	for _, entry := range removed {
		release(entry)
	}
	return removed
}

func (r *Registry[E]) removeLocked(id string) (E, bool) {
	h, ok := r.index[id]
	if !ok {
		var zero E
		return zero, false
	}
	delete(r.index, id)

	s := &r.slots[h.index]
	entry := s.entry
	var zero E
	s.entry = zero
	s.id = ""
	s.live = false
	r.free = append(r.free, h.index)

	r.retireLocked(id)
	return entry, true
}

// retireLocked 记录到有界 FIFO，超出容量淘汰最早的
func (r *Registry[E]) retireLocked(id string) {
	if r.retiredCapacity == 0 {
		return
	}
	r.retired.PushBack(id)
	r.retiredCount[id]++
	for r.retired.Len() > r.retiredCapacity {
		old := r.retired.PopFront()
		if n := r.retiredCount[old]; n <= 1 {
			delete(r.retiredCount, old)
		} else {
			r.retiredCount[old] = n - 1
		}
	}
}

func release(entry any) {
	if rel, ok := entry.(Releaser); ok {
		rel.Release()
	}
}
