package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/anchorlight/framekit/internal/httputil"
	"github.com/anchorlight/framekit/internal/units"
)

// handleFramesChart renders a line chart (HTML) of recent frame times with
// the instantaneous FPS on a second axis.
// Query params: limit (optional, default 300, max 2000).
func (ws *WebServer) handleFramesChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "frame stats not configured")
		return
	}
	recs := ws.stats.Recent(limitParam(r, defaultFrameLimit, 2000))
	if len(recs) == 0 {
		httputil.NotFound(w, "no frames recorded yet")
		return
	}

	xs := make([]string, len(recs))
	frameMS := make([]opts.LineData, len(recs))
	optimizeMS := make([]opts.LineData, len(recs))
	fps := make([]opts.LineData, len(recs))
	for i, rec := range recs {
		xs[i] = strconv.Itoa(i)
		frameMS[i] = opts.LineData{Value: rec.FrameTimeMS}
		optimizeMS[i] = opts.LineData{Value: rec.OptimizeMS}
		inst := 0.0
		if rec.FrameTimeMS > 0 {
			inst = 1000 / rec.FrameTimeMS
		}
		fps[i] = opts.LineData{Value: inst}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Frame Times", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Times", Subtitle: fmt.Sprintf("session=%s samples=%d", ws.sessionID, len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "fps", Type: "value", Position: "right"})
	line.SetXAxis(xs).
		AddSeries("frame ms", frameMS).
		AddSeries("optimize ms", optimizeMS).
		AddSeries("fps", fps, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))

	ws.renderChart(w, line)
}

// handleHeapChart renders the profiler heap history as a line chart.
func (ws *WebServer) handleHeapChart(w http.ResponseWriter, r *http.Request) {
	if ws.profiler == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "profiler not configured")
		return
	}
	hist := ws.profiler.History()
	if len(hist) == 0 {
		httputil.NotFound(w, "no heap snapshots yet")
		return
	}

	xs := make([]string, len(hist))
	used := make([]opts.LineData, len(hist))
	total := make([]opts.LineData, len(hist))
	gpu := make([]opts.LineData, len(hist))
	for i, snap := range hist {
		xs[i] = snap.TakenAt.Format("15:04:05")
		used[i] = opts.LineData{Value: float64(snap.HeapUsed) / float64(units.MiB)}
		total[i] = opts.LineData{Value: float64(snap.HeapTotal) / float64(units.MiB)}
		gpu[i] = opts.LineData{Value: float64(snap.EstimatedGPUBytes) / float64(units.MiB)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Heap History", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Heap History", Subtitle: fmt.Sprintf("session=%s samples=%d", ws.sessionID, len(hist))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "MB"}),
	)
	line.SetXAxis(xs).
		AddSeries("heap used", used).
		AddSeries("heap total", total).
		AddSeries("est. gpu", gpu)

	ws.renderChart(w, line)
}

// handleRenderChart renders recent render-pass counters as a line chart.
// Query params: limit (optional, default 300, max 2000).
func (ws *WebServer) handleRenderChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "frame stats not configured")
		return
	}
	recs := ws.stats.Recent(limitParam(r, defaultFrameLimit, 2000))
	if len(recs) == 0 {
		httputil.NotFound(w, "no frames recorded yet")
		return
	}

	xs := make([]string, len(recs))
	draws := make([]opts.LineData, len(recs))
	visible := make([]opts.LineData, len(recs))
	culled := make([]opts.LineData, len(recs))
	batched := make([]opts.LineData, len(recs))
	instanced := make([]opts.LineData, len(recs))
	for i, rec := range recs {
		xs[i] = strconv.Itoa(i)
		draws[i] = opts.LineData{Value: rec.DrawCalls}
		visible[i] = opts.LineData{Value: rec.Visible}
		culled[i] = opts.LineData{Value: rec.Culled}
		batched[i] = opts.LineData{Value: rec.Batched}
		instanced[i] = opts.LineData{Value: rec.Instanced}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Render Pass", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Render Pass", Subtitle: fmt.Sprintf("session=%s samples=%d", ws.sessionID, len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xs).
		AddSeries("draw calls", draws).
		AddSeries("visible", visible).
		AddSeries("culled", culled).
		AddSeries("batched", batched).
		AddSeries("instanced", instanced)

	ws.renderChart(w, line)
}

// chartRenderer is the piece of the go-echarts chart API the handlers use.
type chartRenderer interface {
	Render(w io.Writer) error
}

func (ws *WebServer) renderChart(w http.ResponseWriter, chart chartRenderer) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
