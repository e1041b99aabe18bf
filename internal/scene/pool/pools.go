package pool

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/anchorlight/framekit/internal/timeutil"
)

// PooledVec3 is a pooled scratch vector. Reset zeroes it.
type PooledVec3 struct {
	V mgl32.Vec3
}

func (v *PooledVec3) Reset() { v.V = mgl32.Vec3{} }

// PooledQuat is a pooled scratch quaternion. Reset restores identity.
type PooledQuat struct {
	Q mgl32.Quat
}

func (q *PooledQuat) Reset() { q.Q = mgl32.QuatIdent() }

// PooledMat4 is a pooled scratch matrix. Reset restores identity.
type PooledMat4 struct {
	M mgl32.Mat4
}

func (m *PooledMat4) Reset() { m.M = mgl32.Ident4() }

// MathPools bundles the vector/quaternion/matrix scratch pools one session
// shares across its optimization components. Construct one per session and
// pass it by reference; the inner pools come up lazily on first use.
type MathPools struct {
	cfg   Config
	clock timeutil.Clock

	vec3 *Pool[*PooledVec3]
	quat *Pool[*PooledQuat]
	mat4 *Pool[*PooledMat4]
}

// NewMathPools returns an empty bundle; no slots are allocated until a pool
// is first requested.
func NewMathPools(cfg Config, clock timeutil.Clock) *MathPools {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &MathPools{cfg: cfg, clock: clock}
}

// Vec3 returns the shared vector pool.
func (m *MathPools) Vec3() *Pool[*PooledVec3] {
	if m.vec3 == nil {
		m.vec3 = New("vec3", func() *PooledVec3 { return &PooledVec3{} }, m.cfg, m.clock)
	}
	return m.vec3
}

// Quat returns the shared quaternion pool.
func (m *MathPools) Quat() *Pool[*PooledQuat] {
	if m.quat == nil {
		m.quat = New("quat", func() *PooledQuat { return &PooledQuat{Q: mgl32.QuatIdent()} }, m.cfg, m.clock)
	}
	return m.quat
}

// Mat4 returns the shared matrix pool.
func (m *MathPools) Mat4() *Pool[*PooledMat4] {
	if m.mat4 == nil {
		m.mat4 = New("mat4", func() *PooledMat4 { return &PooledMat4{M: mgl32.Ident4()} }, m.cfg, m.clock)
	}
	return m.mat4
}

// Reset returns all outstanding objects in every constructed pool.
func (m *MathPools) Reset() {
	if m.vec3 != nil {
		m.vec3.Reset()
	}
	if m.quat != nil {
		m.quat.Reset()
	}
	if m.mat4 != nil {
		m.mat4.Reset()
	}
}

// Clear empties every constructed pool.
func (m *MathPools) Clear() {
	if m.vec3 != nil {
		m.vec3.Clear()
	}
	if m.quat != nil {
		m.quat.Clear()
	}
	if m.mat4 != nil {
		m.mat4.Clear()
	}
}

// Stats snapshots the constructed pools.
func (m *MathPools) Stats() []Stats {
	var out []Stats
	if m.vec3 != nil {
		out = append(out, m.vec3.Stats())
	}
	if m.quat != nil {
		out = append(out, m.quat.Stats())
	}
	if m.mat4 != nil {
		out = append(out, m.mat4.Stats())
	}
	return out
}

// KeyedPool maintains one pool per string key: geometry:material signatures
// for mesh shells, template names for particle systems. Pools are created on
// first use of a key.
type KeyedPool[T Poolable] struct {
	name    string
	factory func(key string) T
	cfg     Config
	clock   timeutil.Clock
	pools   map[string]*Pool[T]
}

// NewKeyedPool constructs an empty keyed pool set.
func NewKeyedPool[T Poolable](name string, factory func(key string) T, cfg Config, clock timeutil.Clock) *KeyedPool[T] {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &KeyedPool[T]{
		name:    name,
		factory: factory,
		cfg:     cfg,
		clock:   clock,
		pools:   make(map[string]*Pool[T]),
	}
}

// ForKey returns the pool for key, creating it on first use.
func (k *KeyedPool[T]) ForKey(key string) *Pool[T] {
	p, ok := k.pools[key]
	if !ok {
		p = New(k.name+":"+key, func() T { return k.factory(key) }, k.cfg, k.clock)
		k.pools[key] = p
	}
	return p
}

// Acquire pulls from the pool for key.
func (k *KeyedPool[T]) Acquire(key string) (T, Handle, bool) {
	return k.ForKey(key).Acquire()
}

// Release returns h to the pool for key. Releasing against a key that has
// never been acquired from counts as a foreign release on a fresh pool.
func (k *KeyedPool[T]) Release(key string, h Handle) bool {
	return k.ForKey(key).Release(h)
}

// Keys lists the instantiated pool keys, sorted.
func (k *KeyedPool[T]) Keys() []string {
	out := make([]string, 0, len(k.pools))
	for key := range k.pools {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Reset returns outstanding objects in every per-key pool.
func (k *KeyedPool[T]) Reset() {
	for _, p := range k.pools {
		p.Reset()
	}
}

// Clear drops every per-key pool.
func (k *KeyedPool[T]) Clear() {
	k.pools = make(map[string]*Pool[T])
}

// Stats snapshots every per-key pool.
func (k *KeyedPool[T]) Stats() map[string]Stats {
	out := make(map[string]Stats, len(k.pools))
	for key, p := range k.pools {
		out[key] = p.Stats()
	}
	return out
}
