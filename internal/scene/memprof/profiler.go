// Package memprof samples host heap usage and renderer resource counters on
// a timer, keeps a bounded snapshot history, raises warning/critical signals
// on heap pressure, and runs a windowed leak heuristic over the history.
// Sampling runs on its own goroutine and interleaves with the frame loop, so
// every shared structure here is mutex-guarded.
package memprof

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anchorlight/framekit/internal/monitoring"
	"github.com/anchorlight/framekit/internal/scene/render"
	"github.com/anchorlight/framekit/internal/timeutil"
	"github.com/anchorlight/framekit/internal/units"
)

// Rough per-unit GPU byte estimates for renderer resources. The renderer
// only reports counts, so snapshot byte figures are order-of-magnitude
// estimates, not measurements.
const (
	GeometryByteEstimate = 512 << 10 // mid-size indexed mesh with attributes
	TextureByteEstimate  = 4 << 20   // 1024×1024 RGBA
	ProgramByteEstimate  = 64 << 10  // compiled program + uniforms
)

// Recommendation thresholds evaluated against the latest snapshot.
const (
	recHeapPercent = 70.0
	recTextures    = 40
	recGeometries  = 500
	recPrograms    = 32
)

// Config controls sampling cadence, history depth, and thresholds.
type Config struct {
	// Interval is the sampling cadence. Defaults to 1s.
	Interval time.Duration
	// HistoryLimit bounds the snapshot ring. Defaults to 100.
	HistoryLimit int
	// WarningThreshold and CriticalThreshold are heap-usage fractions in
	// (0, 1]. Defaults 0.8 and 0.95.
	WarningThreshold  float64
	CriticalThreshold float64
	// LeakGrowthPercent is the relative used-heap growth between leak
	// windows that flags a heap leak. Defaults to 10.
	LeakGrowthPercent float64
}

// DefaultConfig mirrors the tuning-file defaults.
func DefaultConfig() Config {
	return Config{
		Interval:          time.Second,
		HistoryLimit:      100,
		WarningThreshold:  0.8,
		CriticalThreshold: 0.95,
		LeakGrowthPercent: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = d.WarningThreshold
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = d.CriticalThreshold
	}
	if c.LeakGrowthPercent <= 0 {
		c.LeakGrowthPercent = d.LeakGrowthPercent
	}
	return c
}

// Snapshot is one point-in-time reading. Consumers treat it as immutable.
type Snapshot struct {
	TakenAt time.Time `json:"taken_at"`

	HeapUsed  uint64 `json:"heap_used"`
	HeapTotal uint64 `json:"heap_total"`
	HeapLimit uint64 `json:"heap_limit"`
	// HeapPercent is HeapUsed over HeapLimit, in [0, 100].
	HeapPercent float64 `json:"heap_percent"`

	Geometries int `json:"geometries"`
	Textures   int `json:"textures"`
	Programs   int `json:"programs"`
	// EstimatedGPUBytes applies the per-unit byte estimates to the counts.
	EstimatedGPUBytes int64 `json:"estimated_gpu_bytes"`

	Custom map[string]float64 `json:"custom,omitempty"`
}

// LeakKind names what a leak report is about.
type LeakKind string

const (
	LeakHeap     LeakKind = "heap"
	LeakGeometry LeakKind = "geometry"
	LeakTexture  LeakKind = "texture"
)

// Leak is one finding from DetectLeaks.
type Leak struct {
	Kind          LeakKind `json:"kind"`
	GrowthPercent float64  `json:"growth_percent"`
	Detail        string   `json:"detail"`
}

// Profiler samples on an injected-clock ticker. Construct with New, then
// Start/Stop or call Sample manually.
type Profiler struct {
	cfg    Config
	clock  timeutil.Clock
	source render.InfoSource // nil when no renderer is attached
	// heapReader fills the host-heap fields; swapped out in tests.
	heapReader func(*Snapshot)

	mu         sync.Mutex
	custom     map[string]func() float64
	history    []Snapshot
	onWarning  []func(Snapshot)
	onCritical []func(Snapshot)
	cancel     context.CancelFunc
	done       chan struct{}
}

// New returns a profiler reading renderer counts from source (which may be
// nil). A nil clock selects the real one.
func New(cfg Config, source render.InfoSource, clock timeutil.Clock) *Profiler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Profiler{
		cfg:        cfg.withDefaults(),
		clock:      clock,
		source:     source,
		heapReader: readHeap,
		custom:     make(map[string]func() float64),
	}
}

// RegisterMetric adds a named gauge sampled alongside the built-in readings.
// Re-registering a name replaces the previous function.
func (p *Profiler) RegisterMetric(name string, fn func() float64) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.custom[name] = fn
}

// UnregisterMetric removes a named gauge.
func (p *Profiler) UnregisterMetric(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.custom, name)
}

// OnWarning registers a callback for snapshots above the warning threshold.
func (p *Profiler) OnWarning(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onWarning = append(p.onWarning, fn)
}

// OnCritical registers a callback for snapshots above the critical
// threshold. Critical snapshots also fire the warning callbacks.
func (p *Profiler) OnCritical(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCritical = append(p.onCritical, fn)
}

// Start spawns the sampling goroutine. It returns an error if the profiler
// is already running.
func (p *Profiler) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return errors.New("memprof: profiler already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	ticker := p.clock.NewTicker(p.cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				p.Sample()
			}
		}
	}()
	monitoring.Logf("memprof: sampling every %s", p.cfg.Interval)
	return nil
}

// Stop cancels the sampling goroutine and waits for it to exit. Stopping a
// profiler that is not running is a no-op.
func (p *Profiler) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sample takes one snapshot, appends it to the history, and fires threshold
// callbacks. Callbacks run on the caller's goroutine, outside the lock.
func (p *Profiler) Sample() Snapshot {
	p.mu.Lock()
	gauges := make(map[string]func() float64, len(p.custom))
	for name, fn := range p.custom {
		gauges[name] = fn
	}
	p.mu.Unlock()

	snap := Snapshot{TakenAt: p.clock.Now()}
	p.heapReader(&snap)
	if p.source != nil {
		info := p.source.Info()
		snap.Geometries = info.Geometries
		snap.Textures = info.Textures
		snap.Programs = info.Programs
		snap.EstimatedGPUBytes = int64(info.Geometries)*GeometryByteEstimate +
			int64(info.Textures)*TextureByteEstimate +
			int64(info.Programs)*ProgramByteEstimate
	}
	if len(gauges) > 0 {
		snap.Custom = make(map[string]float64, len(gauges))
		for name, fn := range gauges {
			snap.Custom[name] = fn()
		}
	}

	p.mu.Lock()
	p.history = append(p.history, snap)
	if over := len(p.history) - p.cfg.HistoryLimit; over > 0 {
		p.history = p.history[over:]
	}
	warning := snap.HeapPercent >= p.cfg.WarningThreshold*100
	critical := snap.HeapPercent >= p.cfg.CriticalThreshold*100
	var warnFns, critFns []func(Snapshot)
	if warning {
		warnFns = append(warnFns, p.onWarning...)
	}
	if critical {
		critFns = append(critFns, p.onCritical...)
	}
	p.mu.Unlock()

	if critical {
		monitoring.Logf("memprof: critical memory pressure, heap at %.1f%% (%s used)",
			snap.HeapPercent, units.HumanBytes(int64(snap.HeapUsed)))
	} else if warning {
		monitoring.Logf("memprof: memory warning, heap at %.1f%% (%s used)",
			snap.HeapPercent, units.HumanBytes(int64(snap.HeapUsed)))
	}
	for _, fn := range warnFns {
		fn(snap)
	}
	for _, fn := range critFns {
		fn(snap)
	}
	return snap
}

// readHeap fills the host-heap fields. The limit is the runtime soft memory
// limit when one is set, otherwise the reserved heap.
func readHeap(snap *Snapshot) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapUsed = ms.HeapAlloc
	snap.HeapTotal = ms.HeapSys
	snap.HeapLimit = ms.HeapSys
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		snap.HeapLimit = uint64(limit)
	}
	if snap.HeapLimit > 0 {
		snap.HeapPercent = float64(snap.HeapUsed) / float64(snap.HeapLimit) * 100
	}
}

// History returns a copy of the retained snapshots, oldest first.
func (p *Profiler) History() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Snapshot, len(p.history))
	copy(out, p.history)
	return out
}

// Latest returns the most recent snapshot, if any.
func (p *Profiler) Latest() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return Snapshot{}, false
	}
	return p.history[len(p.history)-1], true
}

// DetectLeaks compares the most recent five snapshots against the five
// before them. It needs at least ten snapshots of history; with fewer it
// reports nothing.
func (p *Profiler) DetectLeaks() []Leak {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) < 10 {
		return nil
	}

	recent := p.history[len(p.history)-5:]
	prior := p.history[len(p.history)-10 : len(p.history)-5]

	var leaks []Leak
	if growth, ok := relativeGrowth(meanOf(prior, heapUsed), meanOf(recent, heapUsed)); ok && growth > p.cfg.LeakGrowthPercent {
		leaks = append(leaks, Leak{
			Kind:          LeakHeap,
			GrowthPercent: growth,
			Detail:        fmt.Sprintf("used heap grew %.1f%% across the last %d samples", growth, len(recent)+len(prior)),
		})
	}
	if growth, ok := relativeGrowth(meanOf(prior, geometryCount), meanOf(recent, geometryCount)); ok && growth > 50 {
		leaks = append(leaks, Leak{
			Kind:          LeakGeometry,
			GrowthPercent: growth,
			Detail:        fmt.Sprintf("geometry count grew %.1f%%, dispose unused geometries", growth),
		})
	}
	if growth, ok := relativeGrowth(meanOf(prior, textureCount), meanOf(recent, textureCount)); ok && growth > 50 {
		leaks = append(leaks, Leak{
			Kind:          LeakTexture,
			GrowthPercent: growth,
			Detail:        fmt.Sprintf("texture count grew %.1f%%, release or reuse textures", growth),
		})
	}
	return leaks
}

func heapUsed(s Snapshot) float64      { return float64(s.HeapUsed) }
func geometryCount(s Snapshot) float64 { return float64(s.Geometries) }
func textureCount(s Snapshot) float64  { return float64(s.Textures) }

func meanOf(window []Snapshot, value func(Snapshot) float64) float64 {
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range window {
		sum += value(s)
	}
	return sum / float64(len(window))
}

// relativeGrowth returns the percentage growth from prior to recent. The
// second return is false when prior is zero, which would make the ratio
// meaningless.
func relativeGrowth(prior, recent float64) (float64, bool) {
	if prior <= 0 {
		return 0, false
	}
	return (recent - prior) / prior * 100, true
}

// Recommendations inspects the latest snapshot and suggests the standard
// remediations for whichever budgets it exceeds.
func (p *Profiler) Recommendations() []string {
	snap, ok := p.Latest()
	if !ok {
		return nil
	}
	var recs []string
	if snap.HeapPercent >= recHeapPercent {
		recs = append(recs, "heap pressure is high: pool frequently churned objects instead of reallocating per frame")
	}
	if snap.Textures > recTextures {
		recs = append(recs, fmt.Sprintf("%d textures resident: reduce texture resolution or combine them into atlases", snap.Textures))
	}
	if snap.Geometries > recGeometries {
		recs = append(recs, fmt.Sprintf("%d geometries resident: dispose unused geometries or merge static meshes", snap.Geometries))
	}
	if snap.Programs > recPrograms {
		recs = append(recs, fmt.Sprintf("%d shader programs active: share materials (and instance repeated meshes) to cut program count", snap.Programs))
	}
	return recs
}

// Dispose stops sampling and drops history and callbacks.
func (p *Profiler) Dispose() {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
	p.onWarning = nil
	p.onCritical = nil
	p.custom = make(map[string]func() float64)
}
