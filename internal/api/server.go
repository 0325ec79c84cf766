// Package api serves the radar's cached targets and session state over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rd03d/internal/db"
	"github.com/banshee-data/rd03d/internal/monitoring"
	"github.com/banshee-data/rd03d/internal/rd03d"
)

// ANSI escape codes used to colour access log lines
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Radar is the session surface the API reads from. Implementations must be
// safe for concurrent use.
type Radar interface {
	Poll() bool
	Target(n int) (rd03d.Target, bool)
	Targets() rd03d.TargetSet
	SetMode(multi bool) error
	Mode() rd03d.Mode
	Stats() rd03d.Stats
}

// ReadingStore returns the last persisted reading, or nil if none.
type ReadingStore interface {
	Latest() (*db.Reading, error)
}

// Server serves the target, mode and status endpoints for one radar.
type Server struct {
	radar Radar
	store ReadingStore
	units string
}

// NewServer returns a Server reporting speeds in units. store may be nil.
func NewServer(radar Radar, store ReadingStore, units string) *Server {
	return &Server{
		radar: radar,
		store: store,
		units: units,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Debug pages are mounted separately by
// AttachAdminRoutes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/targets", s.listTargets)
	mux.HandleFunc("/api/targets/{n}", s.showTarget)
	mux.HandleFunc("/api/mode", s.mode)
	mux.HandleFunc("/api/status", s.showStatus)
	return mux
}
