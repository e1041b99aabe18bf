// Package pool implements object pooling for the per-frame allocation hot
// path. Pools hand out objects by value plus an opaque Handle; a Handle
// carries a slot index and a generation counter so foreign, stale and
// double releases are detected instead of corrupting the free list.
//
// Pools are explicitly constructed and owned by a session context. Nothing
// here is process-global.
package pool

import (
	"math"
	"time"

	"github.com/anchorlight/framekit/internal/monitoring"
	"github.com/anchorlight/framekit/internal/timeutil"
)

// Poolable is the contract pooled objects satisfy: Reset restores the
// object to its post-construction state before it is handed out again.
type Poolable interface {
	Reset()
}

// Handle addresses an acquired object. The zero Handle is never issued and
// always fails Release/Get.
type Handle struct {
	slot int
	gen  uint32
}

// Valid reports whether the handle could have been issued by a pool. It
// does not check liveness; use Pool.Get for that.
func (h Handle) Valid() bool {
	return h.gen != 0
}

// Config tunes pool capacity management. Zero fields take defaults.
type Config struct {
	InitialSize         int           // slots preallocated at construction (default 50)
	MaxSize             int           // hard capacity ceiling (default 1000)
	GrowthFactor        float64       // grow by ceil(size*factor) when exhausted (default 2.0)
	ShrinkFactor        float64       // shrink toward size*factor (default 0.5)
	ShrinkThreshold     float64       // shrink when inUse/size falls below (default 0.25)
	ShrinkCheckInterval time.Duration // at most one shrink check per interval (default 60s)
}

// DefaultConfig returns the standard pool tuning.
func DefaultConfig() Config {
	return Config{
		InitialSize:         50,
		MaxSize:             1000,
		GrowthFactor:        2.0,
		ShrinkFactor:        0.5,
		ShrinkThreshold:     0.25,
		ShrinkCheckInterval: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialSize <= 0 {
		c.InitialSize = d.InitialSize
	}
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.InitialSize > c.MaxSize {
		c.InitialSize = c.MaxSize
	}
	if c.GrowthFactor <= 1 {
		c.GrowthFactor = d.GrowthFactor
	}
	if c.ShrinkFactor <= 0 || c.ShrinkFactor > 1 {
		c.ShrinkFactor = d.ShrinkFactor
	}
	if c.ShrinkThreshold <= 0 || c.ShrinkThreshold > 1 {
		c.ShrinkThreshold = d.ShrinkThreshold
	}
	if c.ShrinkCheckInterval <= 0 {
		c.ShrinkCheckInterval = d.ShrinkCheckInterval
	}
	return c
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Name        string  `json:"name"`
	Size        int     `json:"size"`
	Available   int     `json:"available"`
	InUse       int     `json:"in_use"`
	MaxSize     int     `json:"max_size"`
	Utilization float64 `json:"utilization"`

	Acquired        uint64 `json:"acquired"`
	Released        uint64 `json:"released"`
	Grown           uint64 `json:"grown"`
	Shrunk          uint64 `json:"shrunk"`
	Exhausted       uint64 `json:"exhausted"`
	ForeignReleases uint64 `json:"foreign_releases"`
}

type slot[T Poolable] struct {
	obj     T
	gen     uint32
	inUse   bool
	retired bool
}

// Pool hands out objects of type T. It is not safe for concurrent use; the
// frame path that owns it is single-threaded.
type Pool[T Poolable] struct {
	name    string
	factory func() T
	cfg     Config
	clock   timeutil.Clock

	slots   []slot[T]
	free    []int // available live slot indices
	retired []int // shrunk slots, resurrected before fresh allocation
	inUse   int

	lastShrinkCheck time.Time

	acquired        uint64
	released        uint64
	grown           uint64
	shrunk          uint64
	exhausted       uint64
	foreignReleases uint64
}

// New constructs a pool seeded with cfg.InitialSize objects from factory.
// The clock gates shrink checks; pass timeutil.RealClock{} outside tests.
func New[T Poolable](name string, factory func() T, cfg Config, clock timeutil.Clock) *Pool[T] {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	p := &Pool[T]{
		name:            name,
		factory:         factory,
		cfg:             cfg.withDefaults(),
		clock:           clock,
		lastShrinkCheck: clock.Now(),
	}
	p.addSlots(p.cfg.InitialSize)
	return p
}

// Size is the live slot count (allocated minus retired).
func (p *Pool[T]) Size() int { return len(p.slots) - len(p.retired) }

// Available is the number of objects ready to acquire.
func (p *Pool[T]) Available() int { return len(p.free) }

// InUse is the number of outstanding objects.
func (p *Pool[T]) InUse() int { return p.inUse }

// Acquire hands out an object. When the free list is empty and the pool is
// below MaxSize it grows by ceil(size×GrowthFactor), capped at MaxSize. At
// capacity it logs a warning and returns ok=false with a zero T, the
// caller-visible exhaustion sentinel. Never blocks, never panics.
func (p *Pool[T]) Acquire() (T, Handle, bool) {
	if len(p.free) == 0 && p.Size() < p.cfg.MaxSize {
		p.grow()
	}
	if len(p.free) == 0 {
		p.exhausted++
		monitoring.Logf("pool %s: at capacity (size=%d max=%d), acquire refused",
			p.name, p.Size(), p.cfg.MaxSize)
		var zero T
		return zero, Handle{}, false
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	s := &p.slots[idx]
	s.inUse = true
	p.inUse++
	p.acquired++
	return s.obj, Handle{slot: idx, gen: s.gen}, true
}

// Release returns the object addressed by h. A handle that does not match a
// live in-use slot (foreign pool, stale generation, double release) logs a
// misuse warning and no-ops, returning false. A successful release resets
// the object, bumps the slot generation so outstanding copies of h die, and
// runs the shrink check.
func (p *Pool[T]) Release(h Handle) bool {
	if h.slot < 0 || h.slot >= len(p.slots) {
		p.rejectRelease(h, "unknown slot")
		return false
	}
	s := &p.slots[h.slot]
	switch {
	case s.retired:
		p.rejectRelease(h, "retired slot")
		return false
	case !s.inUse:
		p.rejectRelease(h, "slot not in use")
		return false
	case s.gen != h.gen:
		p.rejectRelease(h, "stale generation")
		return false
	}

	s.obj.Reset()
	s.gen++
	s.inUse = false
	p.inUse--
	p.free = append(p.free, h.slot)
	p.released++

	p.maybeShrink()
	return true
}

func (p *Pool[T]) rejectRelease(h Handle, reason string) {
	p.foreignReleases++
	monitoring.Logf("pool %s: release of foreign handle (slot=%d gen=%d): %s",
		p.name, h.slot, h.gen, reason)
}

// Get resolves a live handle to its object.
func (p *Pool[T]) Get(h Handle) (T, bool) {
	if h.slot >= 0 && h.slot < len(p.slots) {
		s := &p.slots[h.slot]
		if s.inUse && !s.retired && s.gen == h.gen {
			return s.obj, true
		}
	}
	var zero T
	return zero, false
}

// Reset returns every in-use object to the free list, resetting each.
// Idempotent; the size invariant holds throughout.
func (p *Pool[T]) Reset() {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.inUse || s.retired {
			continue
		}
		s.obj.Reset()
		s.gen++
		s.inUse = false
		p.free = append(p.free, i)
	}
	p.inUse = 0
}

// Clear empties the pool entirely. The next Acquire re-seeds it at
// InitialSize.
func (p *Pool[T]) Clear() {
	p.slots = nil
	p.free = nil
	p.retired = nil
	p.inUse = 0
}

// Stats snapshots the pool counters.
func (p *Pool[T]) Stats() Stats {
	size := p.Size()
	util := 0.0
	if size > 0 {
		util = float64(p.inUse) / float64(size)
	}
	return Stats{
		Name:            p.name,
		Size:            size,
		Available:       len(p.free),
		InUse:           p.inUse,
		MaxSize:         p.cfg.MaxSize,
		Utilization:     util,
		Acquired:        p.acquired,
		Released:        p.released,
		Grown:           p.grown,
		Shrunk:          p.shrunk,
		Exhausted:       p.exhausted,
		ForeignReleases: p.foreignReleases,
	}
}

// grow raises the live size by ceil(size×GrowthFactor), capped at MaxSize.
// An emptied pool (after Clear) re-seeds at InitialSize. Retired slots are
// resurrected before any fresh allocation.
func (p *Pool[T]) grow() {
	size := p.Size()
	target := size + int(math.Ceil(float64(size)*p.cfg.GrowthFactor))
	if size == 0 {
		target = p.cfg.InitialSize
	}
	if target > p.cfg.MaxSize {
		target = p.cfg.MaxSize
	}
	if target <= size {
		return
	}
	p.addSlots(target - size)
	p.grown++
}

func (p *Pool[T]) addSlots(n int) {
	for i := 0; i < n; i++ {
		if len(p.retired) > 0 {
			idx := p.retired[len(p.retired)-1]
			p.retired = p.retired[:len(p.retired)-1]
			s := &p.slots[idx]
			s.retired = false
			p.free = append(p.free, idx)
			continue
		}
		p.slots = append(p.slots, slot[T]{obj: p.factory(), gen: 1})
		p.free = append(p.free, len(p.slots)-1)
	}
}

// maybeShrink retires free slots when the pool has been underutilized, at
// most once per ShrinkCheckInterval. The size floor is
// max(InitialSize, size×ShrinkFactor).
func (p *Pool[T]) maybeShrink() {
	now := p.clock.Now()
	if now.Sub(p.lastShrinkCheck) < p.cfg.ShrinkCheckInterval {
		return
	}
	p.lastShrinkCheck = now

	size := p.Size()
	if size <= p.cfg.InitialSize {
		return
	}
	if float64(p.inUse)/float64(size) >= p.cfg.ShrinkThreshold {
		return
	}

	target := int(float64(size) * p.cfg.ShrinkFactor)
	if target < p.cfg.InitialSize {
		target = p.cfg.InitialSize
	}

	retiredAny := false
	for p.Size() > target && len(p.free) > 0 {
		idx := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		s := &p.slots[idx]
		s.retired = true
		s.gen++
		p.retired = append(p.retired, idx)
		retiredAny = true
	}
	if retiredAny {
		p.shrunk++
		monitoring.Logf("pool %s: shrank to %d slots (in use %d)", p.name, p.Size(), p.inUse)
	}
}
