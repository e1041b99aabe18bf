package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/anchorlight/framekit/internal/httputil"
)

// handleFrameTimesPlot renders recent frame and optimize times as a PNG.
// Query params: limit (optional, default 300, max 2000).
func (ws *WebServer) handleFrameTimesPlot(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "frame stats not configured")
		return
	}
	recs := ws.stats.Recent(limitParam(r, defaultFrameLimit, 2000))
	if len(recs) == 0 {
		httputil.NotFound(w, "no frames recorded yet")
		return
	}

	p, err := FrameTimesPlot(recs)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("build plot: %v", err))
		return
	}

	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}

// FrameTimesPlot builds the frame-time plot shared by the HTTP endpoint and
// the bench harness PNG output.
func FrameTimesPlot(recs []FrameRecord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Frame Times"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Milliseconds"
	p.Add(plotter.NewGrid())

	framePts := make(plotter.XYs, len(recs))
	optimizePts := make(plotter.XYs, len(recs))
	for i, rec := range recs {
		framePts[i].X = float64(i)
		framePts[i].Y = rec.FrameTimeMS
		optimizePts[i].X = float64(i)
		optimizePts[i].Y = rec.OptimizeMS
	}

	frameLine, err := plotter.NewLine(framePts)
	if err != nil {
		return nil, fmt.Errorf("frame series: %w", err)
	}
	frameLine.Width = vg.Points(1)
	frameLine.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}

	optimizeLine, err := plotter.NewLine(optimizePts)
	if err != nil {
		return nil, fmt.Errorf("optimize series: %w", err)
	}
	optimizeLine.Width = vg.Points(1)
	optimizeLine.Color = color.RGBA{R: 221, G: 107, B: 32, A: 255}

	p.Add(frameLine, optimizeLine)
	p.Legend.Add("frame ms", frameLine)
	p.Legend.Add("optimize ms", optimizeLine)
	p.Legend.Top = true

	return p, nil
}
