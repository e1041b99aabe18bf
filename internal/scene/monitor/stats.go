// Package monitor aggregates per-frame session statistics and serves them
// over an HTTP status API with chart and plot endpoints.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/anchorlight/framekit/internal/monitoring"
	"github.com/anchorlight/framekit/internal/timeutil"
	"github.com/anchorlight/framekit/internal/units"
)

// dropFactor marks a frame as dropped when its time exceeds the target
// frame budget by this factor.
const dropFactor = 1.5

// defaultRingCap keeps ten seconds of 60 Hz samples for charting.
const defaultRingCap = 600

// FrameRecord is one frame's measurements as fed by the pipeline.
type FrameRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	FrameTimeMS float64   `json:"frame_time_ms"`
	// OptimizeMS is the slice of the frame spent in the optimization
	// stages.
	OptimizeMS float64 `json:"optimize_ms"`

	DrawCalls int `json:"draw_calls"`
	Triangles int `json:"triangles"`
	Visible   int `json:"visible"`
	Culled    int `json:"culled"`
	Batched   int `json:"batched"`
	Instanced int `json:"instanced"`

	Phase      string  `json:"phase"`
	Confidence float32 `json:"confidence"`

	ActiveVertices int     `json:"active_vertices"`
	AverageLOD     float64 `json:"average_lod"`
}

// StatsSnapshot is one interval aggregate, stored for the web interface.
type StatsSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	WindowSeconds float64   `json:"window_seconds"`
	Frames        int64     `json:"frames"`
	FPS           float64   `json:"fps"`
	MeanFrameMS   float64   `json:"mean_frame_ms"`
	MaxFrameMS    float64   `json:"max_frame_ms"`
	DroppedFrames int64     `json:"dropped_frames"`

	DrawCalls  int     `json:"draw_calls"`
	Visible    int     `json:"visible"`
	Culled     int     `json:"culled"`
	Batched    int     `json:"batched"`
	Instanced  int     `json:"instanced"`
	Phase      string  `json:"phase"`
	Confidence float32 `json:"confidence"`
}

// FrameStats accumulates frame records with thread-safe operations. The
// pipeline feeds it from the frame thread while the log loop and web
// handlers read from their own goroutines.
type FrameStats struct {
	mu             sync.Mutex
	clock          timeutil.Clock
	targetFPS      float64
	frames         int64
	dropped        int64
	sumFrameMS     float64
	maxFrameMS     float64
	lastReset      time.Time
	startTime      time.Time
	last           FrameRecord
	haveLast       bool
	latestSnapshot *StatsSnapshot
	ring           []FrameRecord
	ringCap        int
}

// NewFrameStats creates a FrameStats instance. targetFPS defaults to 60 and
// sizes the dropped-frame budget; ringCap defaults to 600 recent records; a
// nil clock selects the real one.
func NewFrameStats(targetFPS float64, ringCap int, clock timeutil.Clock) *FrameStats {
	if targetFPS <= 0 {
		targetFPS = 60
	}
	if ringCap <= 0 {
		ringCap = defaultRingCap
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &FrameStats{
		clock:     clock,
		targetFPS: targetFPS,
		lastReset: now,
		startTime: now,
		ringCap:   ringCap,
	}
}

// Record folds one frame into the interval accumulators and the chart ring.
// A zero Timestamp is stamped with the current clock time.
func (fs *FrameStats) Record(rec FrameRecord) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = fs.clock.Now()
	}
	fs.frames++
	fs.sumFrameMS += rec.FrameTimeMS
	if rec.FrameTimeMS > fs.maxFrameMS {
		fs.maxFrameMS = rec.FrameTimeMS
	}
	if rec.FrameTimeMS > (1000/fs.targetFPS)*dropFactor {
		fs.dropped++
	}
	fs.last = rec
	fs.haveLast = true

	fs.ring = append(fs.ring, rec)
	if over := len(fs.ring) - fs.ringCap; over > 0 {
		fs.ring = fs.ring[over:]
	}
}

// GetAndReset returns the interval accumulators and resets them.
func (fs *FrameStats) GetAndReset() (frames, dropped int64, sumMS, maxMS float64, window time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.clock.Now()
	window = now.Sub(fs.lastReset)
	frames = fs.frames
	dropped = fs.dropped
	sumMS = fs.sumFrameMS
	maxMS = fs.maxFrameMS

	fs.frames = 0
	fs.dropped = 0
	fs.sumFrameMS = 0
	fs.maxFrameMS = 0
	fs.lastReset = now

	return
}

// Flush aggregates the current interval into a snapshot, stores it for the
// web interface, and logs a summary line. Intervals with no frames only
// reset the window.
func (fs *FrameStats) Flush() {
	frames, dropped, sumMS, maxMS, window := fs.GetAndReset()
	if frames == 0 {
		return
	}

	snap := &StatsSnapshot{
		Timestamp:     fs.clock.Now(),
		WindowSeconds: window.Seconds(),
		Frames:        frames,
		MeanFrameMS:   sumMS / float64(frames),
		MaxFrameMS:    maxMS,
		DroppedFrames: dropped,
	}
	if window > 0 {
		snap.FPS = float64(frames) / window.Seconds()
	}

	fs.mu.Lock()
	if fs.haveLast {
		snap.DrawCalls = fs.last.DrawCalls
		snap.Visible = fs.last.Visible
		snap.Culled = fs.last.Culled
		snap.Batched = fs.last.Batched
		snap.Instanced = fs.last.Instanced
		snap.Phase = fs.last.Phase
		snap.Confidence = fs.last.Confidence
	}
	fs.latestSnapshot = snap
	fs.mu.Unlock()

	msg := ""
	if dropped > 0 {
		msg = " (" + units.FormatWithCommas(dropped) + " dropped)"
	}
	monitoring.Logf("monitor: %.1f fps, avg %.2f ms, max %.2f ms over %d frames%s",
		snap.FPS, snap.MeanFrameMS, snap.MaxFrameMS, frames, msg)
}

// LogStats flushes a summary every interval until ctx is cancelled. Run it
// on its own goroutine.
func (fs *FrameStats) LogStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := fs.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			fs.Flush()
		}
	}
}

// Snapshot returns a copy of the most recent interval aggregate, or nil
// when no interval has been flushed yet.
func (fs *FrameStats) Snapshot() *StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.latestSnapshot == nil {
		return nil
	}
	snap := *fs.latestSnapshot
	return &snap
}

// Latest returns the most recent frame record.
func (fs *FrameStats) Latest() (FrameRecord, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.last, fs.haveLast
}

// Recent returns up to n of the latest frame records, oldest first. n <= 0
// returns the whole ring.
func (fs *FrameStats) Recent(n int) []FrameRecord {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if n <= 0 || n > len(fs.ring) {
		n = len(fs.ring)
	}
	out := make([]FrameRecord, n)
	copy(out, fs.ring[len(fs.ring)-n:])
	return out
}

// Uptime returns the time since the stats were created.
func (fs *FrameStats) Uptime() time.Duration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.clock.Since(fs.startTime)
}
