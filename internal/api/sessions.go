package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/interval.report/internal/db"
	"github.com/banshee-data/interval.report/internal/httputil"
	"github.com/banshee-data/interval.report/internal/units"
)

// intervalRecord is one stored interval with its value converted to the
// requested display units.
type intervalRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Value     float64   `json:"value"`
	Arrival   time.Time `json:"arrival"`
}

type intervalListResponse struct {
	Units     string           `json:"units"`
	Count     int              `json:"count"`
	Intervals []intervalRecord `json:"intervals"`
}

func (s *Server) listIntervals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "storage disabled")
		return
	}
	u, err := s.resolveUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter. Must be a positive integer.")
			return
		}
		limit = parsed
	}

	rows, err := s.db.RecentIntervals(r.URL.Query().Get("session"), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve intervals: %v", err))
		return
	}

	records := make([]intervalRecord, len(rows))
	for i, row := range rows {
		records[i] = intervalRecord{
			ID:        row.ID,
			SessionID: row.SessionID,
			Value:     units.ConvertInterval(float64(row.Micros), u),
			Arrival:   row.Arrival,
		}
	}
	httputil.WriteJSONOK(w, intervalListResponse{Units: u, Count: len(records), Intervals: records})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "storage disabled")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter. Must be a positive integer.")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

type sessionSummaryRecord struct {
	Count        int64     `json:"count"`
	Min          float64   `json:"min"`
	Max          float64   `json:"max"`
	Mean         float64   `json:"mean"`
	Units        string    `json:"units"`
	FirstArrival time.Time `json:"first_arrival"`
	LastArrival  time.Time `json:"last_arrival"`
}

type sessionDetailResponse struct {
	Session db.Session           `json:"session"`
	Summary sessionSummaryRecord `json:"summary"`
}

// showSession answers /api/sessions/{id} with the session row and a
// whole-session summary computed from the stored intervals.
func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "storage disabled")
		return
	}

	// Extract ID from URL path
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		httputil.BadRequest(w, "Missing session ID")
		return
	}
	id := pathParts[0]

	u, err := s.resolveUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	session, err := s.db.Session(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve session: %v", err))
		return
	}
	if session == nil {
		httputil.NotFound(w, fmt.Sprintf("Session %s not found", id))
		return
	}

	summary, err := s.db.SummarizeSession(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to summarize session: %v", err))
		return
	}

	resp := sessionDetailResponse{
		Session: *session,
		Summary: sessionSummaryRecord{
			Count:        summary.Count,
			Min:          units.ConvertInterval(summary.MinMicros, u),
			Max:          units.ConvertInterval(summary.MaxMicros, u),
			Mean:         units.ConvertInterval(summary.MeanMicros, u),
			Units:        u,
			FirstArrival: summary.FirstArrival,
			LastArrival:  summary.LastArrival,
		},
	}
	httputil.WriteJSONOK(w, resp)
}
