package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/anchorlight/framekit/internal/httputil"
	"github.com/anchorlight/framekit/internal/monitoring"
	"github.com/anchorlight/framekit/internal/scene/memprof"
	"github.com/anchorlight/framekit/internal/timeutil"
	"github.com/anchorlight/framekit/internal/units"
)

//go:embed status.html
var statusHTML embed.FS

// echartsAssetsPrefix points the chart pages at a pinned CDN build so the
// monitor works without bundling echarts.min.js.
const echartsAssetsPrefix = "https://cdn.jsdelivr.net/npm/echarts@5.4.3/dist/"

// defaultFrameLimit bounds the sample count chart and API handlers return
// when no limit parameter is given.
const defaultFrameLimit = 300

// ProfileSource is the profiler surface the webserver reads. It is satisfied
// by *memprof.Profiler.
type ProfileSource interface {
	History() []memprof.Snapshot
	Latest() (memprof.Snapshot, bool)
	DetectLeaks() []memprof.Leak
	Recommendations() []string
}

// WebServerConfig contains configuration options for the web server.
// Profiler and Admin are optional; leave them nil (untyped) to disable the
// corresponding routes.
type WebServerConfig struct {
	Address   string
	Stats     *FrameStats
	Profiler  ProfileSource
	SessionID string
	Scenario  string
	// ConfigEcho is serialized verbatim into /api/session so dashboards can
	// show the tuning the session runs with.
	ConfigEcho interface{}
	// Admin is mounted under /debug/ when set (run-store SQL browser and
	// backup routes).
	Admin http.Handler
	Clock timeutil.Clock
}

// WebServer handles the HTTP interface for monitoring a scene optimization
// session: health checks, a status page, JSON stats, chart pages and plots.
type WebServer struct {
	address    string
	stats      *FrameStats
	profiler   ProfileSource
	sessionID  string
	scenario   string
	configEcho interface{}
	admin      http.Handler
	clock      timeutil.Clock
	startedAt  time.Time
	server     *http.Server
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ws := &WebServer{
		address:    config.Address,
		stats:      config.Stats,
		profiler:   config.Profiler,
		sessionID:  config.SessionID,
		scenario:   config.Scenario,
		configEcho: config.ConfigEcho,
		admin:      config.Admin,
		clock:      clock,
		startedAt:  clock.Now(),
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

// Start begins the HTTP server in a goroutine and blocks until ctx is
// cancelled, then shuts the server down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("monitor: serving on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("monitor: http server error: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("monitor: shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		// Force close when graceful shutdown overruns its budget.
		if cerr := ws.server.Close(); cerr != nil {
			return cerr
		}
		return err
	}
	return nil
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/stats/frames", ws.handleFrames)
	mux.HandleFunc("/api/profile/snapshots", ws.handleProfileSnapshots)
	mux.HandleFunc("/api/profile/leaks", ws.handleProfileLeaks)
	mux.HandleFunc("/api/profile/recommendations", ws.handleProfileRecommendations)
	mux.HandleFunc("/api/session", ws.handleSession)
	mux.HandleFunc("/charts/frames", ws.handleFramesChart)
	mux.HandleFunc("/charts/heap", ws.handleHeapChart)
	mux.HandleFunc("/charts/render", ws.handleRenderChart)
	mux.HandleFunc("/plots/frametimes.png", ws.handleFrameTimesPlot)
	if ws.admin != nil {
		mux.Handle("/debug/", ws.admin)
	}

	return mux
}

// limitParam parses the limit query parameter, clamped to (0, max].
func limitParam(r *http.Request, def, max int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= max {
			limit = v
		}
	}
	return limit
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "framekit-monitor", "timestamp": "%s"}`,
		ws.clock.Now().UTC().Format(time.RFC3339))
}

// handleStatus renders the main status page from the embedded template.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		SessionID   string
		Scenario    string
		Address     string
		Uptime      string
		Stats       *StatsSnapshot
		Heap        *memprof.Snapshot
		HeapUsedMB  float64
		HeapTotalMB float64
	}{
		SessionID: ws.sessionID,
		Scenario:  ws.scenario,
		Address:   ws.address,
	}
	if ws.stats != nil {
		data.Uptime = ws.stats.Uptime().Round(time.Second).String()
		data.Stats = ws.stats.Snapshot()
	} else {
		data.Uptime = ws.clock.Since(ws.startedAt).Round(time.Second).String()
	}
	if ws.profiler != nil {
		if snap, ok := ws.profiler.Latest(); ok {
			data.Heap = &snap
			data.HeapUsedMB = float64(snap.HeapUsed) / float64(units.MiB)
			data.HeapTotalMB = float64(snap.HeapTotal) / float64(units.MiB)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}

// handleStats returns the latest flushed interval aggregate.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.stats == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "frame stats not configured")
		return
	}
	snap := ws.stats.Snapshot()
	if snap == nil {
		httputil.NotFound(w, "no interval flushed yet")
		return
	}
	httputil.WriteJSONOK(w, snap)
}

// handleFrames returns recent per-frame records, oldest first.
// Query params: limit (optional, default 300, max 2000).
func (ws *WebServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.stats == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "frame stats not configured")
		return
	}
	limit := limitParam(r, defaultFrameLimit, 2000)
	httputil.WriteJSONOK(w, ws.stats.Recent(limit))
}

func (ws *WebServer) handleProfileSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.profiler == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "profiler not configured")
		return
	}
	hist := ws.profiler.History()
	limit := limitParam(r, len(hist), 2000)
	if limit < len(hist) {
		hist = hist[len(hist)-limit:]
	}
	if hist == nil {
		hist = []memprof.Snapshot{}
	}
	httputil.WriteJSONOK(w, hist)
}

func (ws *WebServer) handleProfileLeaks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.profiler == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "profiler not configured")
		return
	}
	leaks := ws.profiler.DetectLeaks()
	if leaks == nil {
		leaks = []memprof.Leak{}
	}
	httputil.WriteJSONOK(w, leaks)
}

func (ws *WebServer) handleProfileRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.profiler == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "profiler not configured")
		return
	}
	recs := ws.profiler.Recommendations()
	if recs == nil {
		recs = []string{}
	}
	httputil.WriteJSONOK(w, recs)
}

// handleSession echoes session identity, uptime and the active tuning.
func (ws *WebServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	uptime := ws.clock.Since(ws.startedAt)
	if ws.stats != nil {
		uptime = ws.stats.Uptime()
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"session_id":     ws.sessionID,
		"scenario":       ws.scenario,
		"address":        ws.address,
		"started_at":     ws.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": uptime.Seconds(),
		"config":         ws.configEcho,
	})
}
