package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/interval.report/internal/acquisition"
	"github.com/banshee-data/interval.report/internal/db"
	"github.com/banshee-data/interval.report/internal/fsutil"
	"github.com/banshee-data/interval.report/internal/gmproto"
	"github.com/banshee-data/interval.report/internal/httputil"
	"github.com/banshee-data/interval.report/internal/monitoring"
	"github.com/banshee-data/interval.report/internal/pipeline"
	"github.com/banshee-data/interval.report/internal/serialio"
	"github.com/banshee-data/interval.report/internal/stats"
	"github.com/banshee-data/interval.report/internal/units"
	"github.com/banshee-data/interval.report/internal/version"
)

// ANSI color codes for status code logging
const (
	colorStatusCyan      = "\033[36m"
	colorStatusReset     = "\033[0m"
	colorStatusYellow    = "\033[33m"
	colorStatusBoldGreen = "\033[1;32m"
	colorStatusBoldRed   = "\033[1;31m"
)

// Server exposes the acquisition pipeline over HTTP. Every collaborator is
// optional: endpoints whose backing component is absent answer 503 so a
// partially configured daemon (no database, no command channel) still serves
// the rest of the API.
type Server struct {
	manager    *acquisition.Manager
	dispatcher *pipeline.Dispatcher
	stats      *stats.Collector
	db         *db.DB
	commander  serialio.Muxer
	fs         fsutil.FileSystem
	captureDir string
	units      string
}

// Config carries the collaborators a Server publishes. Nil fields disable the
// corresponding endpoints rather than failing construction.
type Config struct {
	Manager    *acquisition.Manager
	Dispatcher *pipeline.Dispatcher
	Stats      *stats.Collector
	DB         *db.DB
	Commander  serialio.Muxer
	FS         fsutil.FileSystem
	CaptureDir string
	Units      string
}

func NewServer(cfg Config) *Server {
	s := &Server{
		manager:    cfg.Manager,
		dispatcher: cfg.Dispatcher,
		stats:      cfg.Stats,
		db:         cfg.DB,
		commander:  cfg.Commander,
		fs:         cfg.FS,
		captureDir: cfg.CaptureDir,
		units:      cfg.Units,
	}
	if s.fs == nil {
		s.fs = fsutil.OSFileSystem{}
	}
	if s.units == "" {
		s.units = units.Micros
	}
	return s
}

// loggingResponseWriter wraps http.ResponseWriter to capture the status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusCodeColor returns the ANSI color code based on the HTTP status code
func statusCodeColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorStatusBoldGreen
	case code >= 300 && code < 400:
		return colorStatusCyan
	case code >= 400 && code < 500:
		return colorStatusYellow
	default:
		return colorStatusBoldRed
	}
}

// LoggingMiddleware logs all HTTP requests with method, path, status code, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		duration := float64(time.Since(start).Nanoseconds()) / 1e6
		monitoring.Logf("[%s] %s %s%d%s %vms",
			r.Method,
			r.URL.Path,
			statusCodeColor(lrw.statusCode),
			lrw.statusCode,
			colorStatusReset,
			duration)
	})
}

// ServeMux returns the route table for the public API.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/diagnostics", s.showDiagnostics)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/intervals", s.listIntervals)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.showSession)
	mux.HandleFunc("/api/captures", s.listCaptures)
	mux.HandleFunc("/api/captures/", s.downloadCapture)
	mux.HandleFunc("/api/dispatch/pause", s.pauseDispatch)
	mux.HandleFunc("/api/dispatch/resume", s.resumeDispatch)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

// diagnosticsResponse widens the acquisition counters with the dispatcher
// state so one endpoint answers "is anything wrong" for the whole pipeline.
type diagnosticsResponse struct {
	acquisition.Diagnostics
	DispatchPaused     bool  `json:"dispatchPaused"`
	DispatchIntervalMs int64 `json:"dispatchIntervalMs"`
}

func (s *Server) showDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.manager == nil {
		httputil.ServiceUnavailable(w, "acquisition not running")
		return
	}
	resp := diagnosticsResponse{Diagnostics: s.manager.Diagnostics()}
	if s.dispatcher != nil {
		resp.DispatchPaused = s.dispatcher.Paused()
		resp.DispatchIntervalMs = s.dispatcher.Interval().Milliseconds()
	}
	httputil.WriteJSONOK(w, resp)
}

type intervalStatsResponse struct {
	TotalCount  uint64    `json:"totalCount"`
	WindowCount int       `json:"windowCount"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Mean        float64   `json:"mean"`
	Stdev       float64   `json:"stdev"`
	Units       string    `json:"units"`
	CPM         float64   `json:"cpm"`
	Hz          float64   `json:"hz"`
	LastArrival time.Time `json:"lastArrival"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.stats == nil {
		httputil.ServiceUnavailable(w, "statistics not running")
		return
	}
	u, err := s.resolveUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap := s.stats.Snapshot()
	resp := intervalStatsResponse{
		TotalCount:  snap.TotalCount,
		WindowCount: snap.WindowCount,
		Min:         units.ConvertInterval(snap.MinMicros, u),
		Max:         units.ConvertInterval(snap.MaxMicros, u),
		Mean:        units.ConvertInterval(snap.MeanMicros, u),
		Stdev:       units.ConvertInterval(snap.StdevMicros, u),
		Units:       u,
		CPM:         snap.CPM,
		Hz:          units.IntervalToHz(snap.MeanMicros),
		LastArrival: snap.LastArrival,
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	config := map[string]interface{}{
		"units":           s.units,
		"capture_dir":     s.captureDir,
		"database":        s.db != nil,
		"command_channel": s.commander != nil,
	}
	if s.dispatcher != nil {
		config["dispatch_interval_ms"] = s.dispatcher.Interval().Milliseconds()
	}
	httputil.WriteJSONOK(w, config)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) pauseDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.dispatcher == nil {
		httputil.ServiceUnavailable(w, "dispatcher not running")
		return
	}
	s.dispatcher.Pause()
	httputil.WriteJSONOK(w, map[string]bool{"paused": true})
}

func (s *Server) resumeDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.dispatcher == nil {
		httputil.ServiceUnavailable(w, "dispatcher not running")
		return
	}
	s.dispatcher.Resume()
	httputil.WriteJSONOK(w, map[string]bool{"paused": false})
}

// sendCommandHandler validates a device command and forwards it to the
// command channel. Invalid commands answer 400 and never reach the wire.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.commander == nil {
		httputil.ServiceUnavailable(w, "command channel not configured")
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "Missing 'command' parameter")
		return
	}
	if err := gmproto.Validate(command); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.commander.SendCommand(command); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to send command: %v", err))
		return
	}
	io.WriteString(w, "Command sent successfully")
}

// resolveUnits picks the display units for a response: the units query
// parameter when present, the server default otherwise.
func (s *Server) resolveUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q (valid units: %s)", u, units.GetValidUnitsString())
	}
	return u, nil
}
