package memprof

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorlight/framekit/internal/scene/render"
	"github.com/anchorlight/framekit/internal/timeutil"
)

type stubSource struct {
	mu   sync.Mutex
	info render.Info
}

func (s *stubSource) Info() render.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *stubSource) set(info render.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
}

// fixedHeap returns a reader reporting a constant usage against a 1000-byte
// limit, so HeapPercent equals used/10.
func fixedHeap(used uint64) func(*Snapshot) {
	return func(s *Snapshot) {
		s.HeapUsed = used
		s.HeapTotal = 1000
		s.HeapLimit = 1000
		s.HeapPercent = float64(used) / 10
	}
}

// scriptedHeap replays the given usage values, repeating the last one.
func scriptedHeap(used []uint64) func(*Snapshot) {
	i := 0
	return func(s *Snapshot) {
		u := used[i]
		if i < len(used)-1 {
			i++
		}
		fixedHeap(u)(s)
	}
}

func testProfiler(cfg Config, source render.InfoSource) (*Profiler, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(1756300000, 0))
	return New(cfg, source, clock), clock
}

func TestSampleReadsHeapAndRenderer(t *testing.T) {
	t.Parallel()

	source := &stubSource{info: render.Info{Geometries: 3, Textures: 2, Programs: 1}}
	p, clock := testProfiler(Config{}, source)

	snap := p.Sample()

	assert.Equal(t, clock.Now(), snap.TakenAt)
	assert.Greater(t, snap.HeapUsed, uint64(0))
	assert.Greater(t, snap.HeapTotal, uint64(0))
	assert.Greater(t, snap.HeapLimit, uint64(0))
	assert.GreaterOrEqual(t, snap.HeapPercent, 0.0)
	assert.LessOrEqual(t, snap.HeapPercent, 100.0)

	assert.Equal(t, 3, snap.Geometries)
	assert.Equal(t, 2, snap.Textures)
	assert.Equal(t, 1, snap.Programs)
	want := int64(3*GeometryByteEstimate + 2*TextureByteEstimate + 1*ProgramByteEstimate)
	assert.Equal(t, want, snap.EstimatedGPUBytes)

	require.Len(t, p.History(), 1)
	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, snap, latest)
}

func TestSampleWithoutRenderer(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{}, nil)
	snap := p.Sample()
	assert.Zero(t, snap.Geometries)
	assert.Zero(t, snap.EstimatedGPUBytes)
}

func TestCustomMetrics(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{}, nil)
	inUse := 7.0
	p.RegisterMetric("pool_in_use", func() float64 { return inUse })
	p.RegisterMetric("nil is ignored", nil)

	snap := p.Sample()
	require.Contains(t, snap.Custom, "pool_in_use")
	assert.Equal(t, 7.0, snap.Custom["pool_in_use"])
	assert.NotContains(t, snap.Custom, "nil is ignored")

	inUse = 9
	assert.Equal(t, 9.0, p.Sample().Custom["pool_in_use"])

	p.UnregisterMetric("pool_in_use")
	assert.Empty(t, p.Sample().Custom)
}

func TestHistoryBoundedFIFO(t *testing.T) {
	t.Parallel()

	p, clock := testProfiler(Config{HistoryLimit: 5}, nil)
	base := clock.Now()
	for i := 0; i < 8; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		p.Sample()
	}

	hist := p.History()
	require.Len(t, hist, 5)
	assert.Equal(t, base.Add(3*time.Second), hist[0].TakenAt, "oldest three dropped")
	assert.Equal(t, base.Add(7*time.Second), hist[4].TakenAt)
}

func TestWarningAndCriticalSignals(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{}, nil)
	var warnings, criticals []Snapshot
	p.OnWarning(func(s Snapshot) { warnings = append(warnings, s) })
	p.OnCritical(func(s Snapshot) { criticals = append(criticals, s) })

	p.heapReader = fixedHeap(500)
	p.Sample()
	assert.Empty(t, warnings)
	assert.Empty(t, criticals)

	p.heapReader = fixedHeap(850)
	p.Sample()
	require.Len(t, warnings, 1)
	assert.Empty(t, criticals)
	assert.Equal(t, 85.0, warnings[0].HeapPercent, "callback carries the triggering snapshot")

	p.heapReader = fixedHeap(960)
	p.Sample()
	assert.Len(t, warnings, 2, "critical snapshots also pass the warning threshold")
	require.Len(t, criticals, 1)
	assert.Equal(t, 96.0, criticals[0].HeapPercent)
}

func TestCustomThresholds(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{WarningThreshold: 0.5, CriticalThreshold: 0.6}, nil)
	fired := 0
	p.OnCritical(func(Snapshot) { fired++ })

	p.heapReader = fixedHeap(550)
	p.Sample()
	assert.Zero(t, fired)

	p.heapReader = fixedHeap(650)
	p.Sample()
	assert.Equal(t, 1, fired)
}

func TestStartSamplesOnTicker(t *testing.T) {
	t.Parallel()

	p, clock := testProfiler(Config{Interval: time.Second}, nil)
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "second start while running")

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Second)
		want := i
		require.Eventually(t, func() bool { return len(p.History()) >= want },
			2*time.Second, time.Millisecond)
	}

	p.Stop()
	p.Stop() // idempotent

	// No more samples arrive after Stop.
	got := len(p.History())
	clock.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, got, len(p.History()))

	// The profiler can be started again.
	require.NoError(t, p.Start(context.Background()))
	p.Stop()
}

func TestStartHonorsContextCancel(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{Interval: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	// Stop must not hang: the goroutine exits on ctx cancellation.
	p.Stop()
}

func TestDetectLeaksHeapGrowth(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{}, nil)
	p.heapReader = scriptedHeap([]uint64{100, 100, 100, 100, 100, 120, 120, 120, 120, 120})

	for i := 0; i < 9; i++ {
		p.Sample()
	}
	assert.Nil(t, p.DetectLeaks(), "needs ten snapshots")

	p.Sample()
	leaks := p.DetectLeaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, LeakHeap, leaks[0].Kind)
	assert.InDelta(t, 20, leaks[0].GrowthPercent, 1e-9)
	assert.Contains(t, leaks[0].Detail, "used heap")
}

func TestDetectLeaksBelowThreshold(t *testing.T) {
	t.Parallel()

	// 5% growth stays under the default 10% trigger.
	p, _ := testProfiler(Config{}, nil)
	p.heapReader = scriptedHeap([]uint64{100, 100, 100, 100, 100, 105, 105, 105, 105, 105})
	for i := 0; i < 10; i++ {
		p.Sample()
	}
	assert.Empty(t, p.DetectLeaks())
}

func TestDetectLeaksResourceGrowth(t *testing.T) {
	t.Parallel()

	source := &stubSource{info: render.Info{Geometries: 10, Textures: 4}}
	p, _ := testProfiler(Config{}, source)
	p.heapReader = fixedHeap(100)

	for i := 0; i < 5; i++ {
		p.Sample()
	}
	source.set(render.Info{Geometries: 25, Textures: 5})
	for i := 0; i < 5; i++ {
		p.Sample()
	}

	leaks := p.DetectLeaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, LeakGeometry, leaks[0].Kind)
	assert.InDelta(t, 150, leaks[0].GrowthPercent, 1e-9)
}

func TestDetectLeaksConfigurableGrowth(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{LeakGrowthPercent: 30}, nil)
	p.heapReader = scriptedHeap([]uint64{100, 100, 100, 100, 100, 120, 120, 120, 120, 120})
	for i := 0; i < 10; i++ {
		p.Sample()
	}
	assert.Empty(t, p.DetectLeaks(), "20% growth under a 30% trigger")
}

func TestRecommendations(t *testing.T) {
	t.Parallel()

	t.Run("no history", func(t *testing.T) {
		t.Parallel()
		p, _ := testProfiler(Config{}, nil)
		assert.Nil(t, p.Recommendations())
	})

	t.Run("healthy snapshot", func(t *testing.T) {
		t.Parallel()
		source := &stubSource{info: render.Info{Geometries: 10, Textures: 4, Programs: 2}}
		p, _ := testProfiler(Config{}, source)
		p.heapReader = fixedHeap(300)
		p.Sample()
		assert.Empty(t, p.Recommendations())
	})

	t.Run("everything over budget", func(t *testing.T) {
		t.Parallel()
		source := &stubSource{info: render.Info{Geometries: 600, Textures: 50, Programs: 40}}
		p, _ := testProfiler(Config{}, source)
		p.heapReader = fixedHeap(750)
		p.Sample()

		recs := p.Recommendations()
		require.Len(t, recs, 4)
		joined := ""
		for _, r := range recs {
			joined += r + "\n"
		}
		assert.Contains(t, joined, "pool")
		assert.Contains(t, joined, "atlases")
		assert.Contains(t, joined, "dispose unused geometries")
		assert.Contains(t, joined, "share materials")
	})
}

func TestDisposeClearsState(t *testing.T) {
	t.Parallel()

	p, _ := testProfiler(Config{Interval: time.Second}, nil)
	p.heapReader = fixedHeap(850)
	fired := 0
	p.OnWarning(func(Snapshot) { fired++ })

	require.NoError(t, p.Start(context.Background()))
	p.Sample()
	assert.Equal(t, 1, fired)

	p.Dispose()
	assert.Empty(t, p.History())
	_, ok := p.Latest()
	assert.False(t, ok)

	// Dropped callbacks stay dropped; sampling still works.
	p.Sample()
	assert.Equal(t, 1, fired)
	assert.Len(t, p.History(), 1)

	p.Dispose()
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, 0.8, cfg.WarningThreshold)
	assert.Equal(t, 0.95, cfg.CriticalThreshold)
	assert.Equal(t, 10.0, cfg.LeakGrowthPercent)

	partial := Config{Interval: 250 * time.Millisecond}.withDefaults()
	assert.Equal(t, 250*time.Millisecond, partial.Interval)
	assert.Equal(t, 100, partial.HistoryLimit)
}
