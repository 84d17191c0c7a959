package web

import (
	"net/http"
	"sort"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// handleParse parses an uploaded file without importing it. With a table
// field the response also carries a preview against that table.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	perm, err := s.permission(r, u.Table)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	parsed, err := s.ctrl.ParseFile(perm, u.File, u.Options)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	resp := parseResponse{Parsed: parsed}

	if u.Table != "" {
		table, err := core.Lookup(u.Table)
		if err != nil {
			respondError(w, r, err, 0)
			return
		}
		resp.Preview, err = s.ctrl.Preview(perm, u.File, table, u.Options)
		if err != nil {
			respondError(w, r, err, 0)
			return
		}
	}
	writeJSON(w, resp)
}

// handleAutoMap suggests field mappings for headers against a table.
func (s *Server) handleAutoMap(w http.ResponseWriter, r *http.Request) {
	var req autoMapRequest
	if err := s.decodeJSON(r, &req); err != nil {
		respondError(w, r, err, 0)
		return
	}

	table, err := core.Lookup(req.Table)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	mappings := core.AutoMap(req.Headers, table.Columns)
	writeJSON(w, autoMapResponse{
		Mappings: mappings,
		Warnings: core.CheckMappings(req.Headers, mappings, table.Columns),
	})
}

// handleValidate validates already parsed rows. Without mappings the row
// keys are auto-mapped.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := s.decodeJSON(r, &req); err != nil {
		respondError(w, r, err, 0)
		return
	}
	if err := s.checkOptions(req.Options); err != nil {
		respondError(w, r, err, 0)
		return
	}

	table, err := core.Lookup(req.Table)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	perm, err := s.permission(r, table.Key)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	mappings := req.Mappings
	if len(mappings) == 0 {
		mappings = core.AutoMap(rowKeys(req.Rows), table.Columns)
	}

	result, err := s.ctrl.Validate(perm, req.Rows, mappings, table.Columns, req.Options)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	result.Rows = nil
	writeJSON(w, result)
}

// rowKeys returns every key used by rows, sorted.
func rowKeys(rows []core.Row) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
