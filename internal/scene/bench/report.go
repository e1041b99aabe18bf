package bench

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot/vg"

	"github.com/anchorlight/framekit/internal/scene/monitor"
	"github.com/anchorlight/framekit/internal/units"
)

// FormatSummary writes a human-readable session report.
func FormatSummary(w io.Writer, res *Result) {
	title := "Bench " + res.Scenario.Name
	if res.RunID != "" {
		title += " (run " + res.RunID + ")"
	}
	fmt.Fprintf(w, "%s\n%s\n", title, strings.Repeat("=", len(title)))

	s := res.Summary
	fmt.Fprintf(w, "  %-18s %d (dropped %d)\n", "frames", s.Frames, s.DroppedFrames)
	fmt.Fprintf(w, "  %-18s %.3f ms (stddev %.3f)\n", "mean frame", s.MeanMS, s.StddevMS)
	fmt.Fprintf(w, "  %-18s %.3f / %.3f / %.3f ms\n", "p50/p95/p99", s.P50MS, s.P95MS, s.P99MS)
	fmt.Fprintf(w, "  %-18s %.3f ms\n", "max frame", s.MaxMS)
	fmt.Fprintf(w, "  %-18s %.1f (target %.0f)\n", "achieved fps", s.AchievedFPS, res.Scenario.TargetFPS)
	fmt.Fprintf(w, "  %-18s %s (lost %d/%d)\n", "tracking", res.FinalPhase,
		res.Tracking.LostFrames, res.Tracking.TotalFrames)
	fmt.Fprintf(w, "  %-18s stability %.2f, accuracy %.2f, latency %.3f ms\n", "tracking quality",
		res.Tracking.Stability, res.Tracking.Accuracy, res.Tracking.LatencyMS)
	fmt.Fprintf(w, "  %-18s %d calls, %s triangles, %d visible, %d culled, %d batched, %d instanced\n", "render",
		res.Render.DrawCalls, units.FormatWithCommas(int64(res.Render.Triangles)),
		res.Render.Visible, res.Render.Culled, res.Render.Batched, res.Render.Instanced)
	fmt.Fprintf(w, "  %-18s %d groups, %d culled, avg level %.1f, %d active vertices\n", "lod",
		res.LOD.Groups, res.LOD.CulledGroups, res.LOD.AverageLevel, res.LOD.ActiveVertices)
	if len(res.Heap) > 0 {
		last := res.Heap[len(res.Heap)-1]
		fmt.Fprintf(w, "  %-18s %d snapshots, last %s used\n", "heap",
			len(res.Heap), units.HumanBytes(int64(last.HeapUsed)))
	}
}

// WritePlotPNG renders the frame-time plot of a finished session to a PNG
// file, the same plot the monitoring endpoint serves.
func WritePlotPNG(path string, recs []monitor.FrameRecord) error {
	if len(recs) == 0 {
		return fmt.Errorf("no frame records to plot")
	}
	p, err := monitor.FrameTimesPlot(recs)
	if err != nil {
		return fmt.Errorf("build plot: %w", err)
	}
	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write plot: %w", err)
	}
	return f.Close()
}

// WriteChartHTML renders a standalone interactive frame-time chart. Unlike
// the monitoring web interface the file loads the chart assets from the
// default CDN, so it works without a running server.
func WriteChartHTML(path string, res *Result) error {
	recs := res.Records
	if len(recs) == 0 {
		return fmt.Errorf("no frame records to chart")
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
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Bench " + res.Scenario.Name, Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Times", Subtitle: fmt.Sprintf("scenario=%s frames=%d", res.Scenario.Name, len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "fps", Type: "value", Position: "right"})
	line.SetXAxis(xs).
		AddSeries("frame ms", frameMS).
		AddSeries("optimize ms", optimizeMS).
		AddSeries("fps", fps, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := line.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}
