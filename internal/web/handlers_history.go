package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/store"
)

const historyPageSize = 50

// handleHistory lists persisted jobs with filtering and pagination.
//
// Query: table, actor, status, from and to (YYYY-MM-DD, inclusive), page,
// pageSize.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, errNoHistory, http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "pageSize", historyPageSize)
	if pageSize < 1 || pageSize > 500 {
		pageSize = historyPageSize
	}

	filter := store.HistoryFilter{
		Table:  q.Get("table"),
		Actor:  q.Get("actor"),
		Status: core.JobStatus(q.Get("status")),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filter.Since = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		filter.Until = t.Add(24 * time.Hour)
	}

	result, err := s.history.ListJobs(r.Context(), filter)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, result)
}

// handleHistorySummary returns totals over the persisted history.
func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, errNoHistory, http.StatusNotFound)
		return
	}
	sum, err := s.history.Summarize(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, sum)
}

// handleHistoryJob returns a persisted job snapshot.
func (s *Server) handleHistoryJob(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, errNoHistory, http.StatusNotFound)
		return
	}
	job, err := s.history.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, job)
}

// handleHistoryEvents returns the lifecycle events of one job.
func (s *Server) handleHistoryEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, errNoHistory, http.StatusNotFound)
		return
	}
	events, err := s.history.ListEvents(r.Context(), store.EventFilter{
		JobID:  chi.URLParam(r, "jobID"),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{"events": events, "count": len(events)})
}
