package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// handleHealth reports liveness and, when a history store is wired,
// whether it answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"tables":  core.TableCount(),
		"limiter": s.ctrl.LimiterStatus(),
		"time":    time.Now().UTC(),
	}
	if s.history != nil {
		if err := s.history.Ping(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["history"] = err.Error()
			writeJSONStatus(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, resp)
}

type tableGroup struct {
	Group  string             `json:"group"`
	Tables []core.TableSchema `json:"tables"`
}

// handleListTables lists registered table schemas by group.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	byGroup := make(map[string][]core.TableSchema)
	for _, t := range core.All() {
		byGroup[t.Group] = append(byGroup[t.Group], t)
	}

	groups := make([]tableGroup, 0, len(byGroup))
	for _, g := range core.Groups() {
		groups = append(groups, tableGroup{Group: g, Tables: byGroup[g]})
	}
	writeJSON(w, map[string]any{"groups": groups, "count": core.TableCount()})
}

// handleGetTable returns one table schema.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	table, err := core.Lookup(chi.URLParam(r, "tableKey"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, table)
}
