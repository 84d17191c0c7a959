package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/logging"
)

// handleSubmitImport accepts a multipart upload and starts an import job.
// Parse and validation run before the response; the write to the sink
// continues in the background, so the answer is 202 with the job snapshot.
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	if u.Table == "" {
		respondError(w, r, badRequest(fmt.Errorf("missing table"), "No target table was given", "Send the table field"), 0)
		return
	}

	table, err := core.Lookup(u.Table)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	perm, err := s.permission(r, table.Key)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	if u.Options.MaxRows == 0 {
		u.Options.MaxRows = s.cfg.Import.MaxRows
	}
	if u.Options.BatchSize == 0 {
		u.Options.BatchSize = s.cfg.Import.BatchSize
	}

	actor := core.ActorFromContext(r.Context())
	job, err := s.ctrl.SubmitImport(r.Context(), core.SubmitRequest{
		Actor:      actor,
		Permission: perm,
		File:       u.File,
		Table:      table,
		Mappings:   u.Mappings,
		Options:    u.Options,
	})
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	logging.WithFields(r.Context(), "job_id", job.ID, "table", table.Key).
		Info("import accepted", "status", job.Status, "rows", job.TotalRows)

	w.Header().Set("Location", "/api/imports/"+job.ID)
	writeJSONStatus(w, http.StatusAccepted, job)
}

// handleListImports lists in-memory jobs, newest first, optionally filtered
// by status, table and actor.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := core.JobStatus(q.Get("status"))
	table := q.Get("table")
	actor := q.Get("actor")

	jobs := make([]core.ImportJob, 0)
	for _, j := range s.ctrl.Jobs() {
		if status != "" && j.Status != status {
			continue
		}
		if table != "" && j.Table != table {
			continue
		}
		if actor != "" && j.Actor != actor {
			continue
		}
		j.Errors = limitErrors(j.Errors, 20)
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})

	writeJSON(w, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleGetImport returns one job for status polling.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	job, err := s.ctrl.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, job)
}

// handleImportProgress streams job snapshots as server-sent events until the
// job finishes or the client leaves.
//
// The event id is the progress percentage. Clients reconnecting with
// Last-Event-ID (or ?lastEventId=) skip snapshots they have already seen;
// the terminal snapshot is always sent.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	updates, cancel, err := s.ctrl.Subscribe(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	defer cancel()

	lastID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastID, _ = strconv.Atoi(v)
	} else if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastID, _ = strconv.Atoi(v)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				rc.Flush()
				return
			}

			terminal := job.Status.IsTerminal()
			if !terminal && job.Progress <= lastID {
				continue
			}
			lastID = job.Progress

			job.Errors = limitErrors(job.Errors, 20)
			data, err := json.Marshal(job)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", job.Progress, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancelImport cancels a running job.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	job, err := s.ctrl.CancelImport(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, job)
}

// handleRetryImport replays a failed job's validated rows as a new job.
func (s *Server) handleRetryImport(w http.ResponseWriter, r *http.Request) {
	job, err := s.ctrl.RetryImport(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Location", "/api/imports/"+job.ID)
	writeJSONStatus(w, http.StatusAccepted, job)
}

// handleApproveImport releases a job held for approval. The approver is
// always the requesting actor, checked against their own permission on the
// job's table.
func (s *Server) handleApproveImport(w http.ResponseWriter, r *http.Request) {
	approver := core.ActorFromContext(r.Context())
	if approver == "" {
		respondError(w, r, badRequest(fmt.Errorf("missing approver"), "No approver was given", "Sign in to approve imports"), 0)
		return
	}

	id := chi.URLParam(r, "jobID")
	current, err := s.ctrl.Job(id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	perm, err := s.permission(r, current.Table)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	job, err := s.ctrl.ApproveImport(r.Context(), id, approver, perm)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, job)
}

// handleClearCompleted drops completed and cancelled jobs from memory.
func (s *Server) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{"cleared": s.ctrl.ClearCompleted(r.Context())})
}

// handleImportStats returns statistics over in-memory jobs.
func (s *Server) handleImportStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctrl.Statistics())
}

func limitErrors(errs []core.RowError, n int) []core.RowError {
	if len(errs) > n {
		return errs[:n]
	}
	return errs
}
