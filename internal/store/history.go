package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// maxStoredErrors caps the row errors kept in a job snapshot.
const maxStoredErrors = 100

// RecordJob stores the snapshot of a finished job, replacing any earlier
// snapshot with the same id.
func (s *Store) RecordJob(ctx context.Context, job core.ImportJob) error {
	if len(job.Errors) > maxStoredErrors {
		job.Errors = job.Errors[:maxStoredErrors]
	}
	snapshot, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	var completed sql.NullInt64
	if job.CompletedAt != nil {
		completed = sql.NullInt64{Int64: toMillis(*job.CompletedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO import_history
		(id, status, table_key, actor, file_name, format, total_rows, processed_rows,
		 error_rows, skipped_rows, error_code, retry_of, created_at, completed_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Table, job.Actor, job.File.Name, string(job.Format),
		job.TotalRows, job.ProcessedRows, job.ErrorRows, job.SkippedRows,
		job.ErrorCode, job.RetryOf, toMillis(job.CreatedAt), completed, string(snapshot),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

// HistoryFilter selects persisted jobs. Zero fields do not filter.
type HistoryFilter struct {
	Table  string
	Actor  string
	Status core.JobStatus
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// HistoryPage is one page of persisted jobs, newest first.
type HistoryPage struct {
	Jobs       []core.ImportJob `json:"jobs"`
	TotalCount int64            `json:"totalCount"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
}

// ListJobs returns persisted jobs matching f.
func (s *Store) ListJobs(ctx context.Context, f HistoryFilter) (*HistoryPage, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var wb whereBuilder
	wb.add("table_key", f.Table)
	wb.add("actor", f.Actor)
	wb.add("status", string(f.Status))
	wb.addTimeRange("created_at", f.Since, f.Until)
	where, args := wb.build()

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_history"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}

	query := "SELECT snapshot FROM import_history" + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	jobs := make([]core.ImportJob, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var job core.ImportJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode history snapshot: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := int((total + int64(f.Limit) - 1) / int64(f.Limit))
	if totalPages < 1 {
		totalPages = 1
	}
	return &HistoryPage{
		Jobs:       jobs,
		TotalCount: total,
		Page:       f.Offset/f.Limit + 1,
		PageSize:   f.Limit,
		TotalPages: totalPages,
	}, nil
}

// GetJob returns the persisted snapshot of job id.
func (s *Store) GetJob(ctx context.Context, id string) (core.ImportJob, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT snapshot FROM import_history WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportJob{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return core.ImportJob{}, err
	}

	var job core.ImportJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return core.ImportJob{}, fmt.Errorf("decode history snapshot: %w", err)
	}
	return job, nil
}

// Summary aggregates the persisted history.
type Summary struct {
	TotalJobs    int64                    `json:"totalJobs"`
	ByStatus     map[core.JobStatus]int64 `json:"byStatus"`
	TotalRows    int64                    `json:"totalRows"`
	ImportedRows int64                    `json:"importedRows"`
	ErrorRows    int64                    `json:"errorRows"`
	SuccessRate  float64                  `json:"successRate"`
}

// Summarize returns totals over every persisted job.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*), SUM(total_rows),
		SUM(CASE WHEN status = 'completed' THEN processed_rows ELSE 0 END), SUM(error_rows)
		FROM import_history GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize history: %w", err)
	}
	defer rows.Close()

	sum := Summary{ByStatus: make(map[core.JobStatus]int64)}
	for rows.Next() {
		var status string
		var count, total, imported, errs int64
		if err := rows.Scan(&status, &count, &total, &imported, &errs); err != nil {
			return Summary{}, err
		}
		sum.ByStatus[core.JobStatus(status)] = count
		sum.TotalJobs += count
		sum.TotalRows += total
		sum.ImportedRows += imported
		sum.ErrorRows += errs
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	if sum.TotalJobs > 0 {
		sum.SuccessRate = float64(sum.ByStatus[core.StatusCompleted]) / float64(sum.TotalJobs) * 100
	}
	return sum, nil
}
