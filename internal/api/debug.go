package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rd03d/internal/httputil"
)

// chartRangeMM is the minimum half-width of the target chart axes. The
// sensor's rated range is 8m.
const chartRangeMM = 8000

// AttachAdminRoutes mounts radar debug pages on the tsweb debugger at
// /debug/. These routes are accessible only over localhost or Tailscale.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("radar-stats", "Session counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]interface{}{
			"mode":  s.radar.Mode().String(),
			"stats": s.radar.Stats(),
		})
	})
	debug.HandleFunc("targets", "Scatter plot of the current targets", s.handleTargetChart)

	// Polls out of band, for checking the link without waiting for the loop.
	debug.HandleSilentFunc("radar-poll", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSONOK(w, map[string]bool{"decoded": s.radar.Poll()})
	})
}

// handleTargetChart renders the cached targets on the sensor's X/Y plane.
func (s *Server) handleTargetChart(w http.ResponseWriter, r *http.Request) {
	targets := s.radar.Targets()

	pad := float64(chartRangeMM)
	data := make([]opts.ScatterData, 0, len(targets))
	for i, t := range targets {
		if t.X == 0 && t.Y == 0 && t.Speed == 0 {
			continue // empty slot
		}
		pad = math.Max(pad, math.Max(math.Abs(float64(t.X)), math.Abs(float64(t.Y))))
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("target %d", i+1),
			Value: []interface{}{t.X, t.Y, t.Speed},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "RD-03D Targets", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "RD-03D Targets", Subtitle: fmt.Sprintf("mode=%s targets=%d", s.radar.Mode(), len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: pad, Name: "Y (mm)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("targets", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
