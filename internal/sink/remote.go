package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// Remote hands rows to an import service over HTTP.
//
// The service accepts a batch with POST {base}/imports and answers either
// with the final result or with a job id. Job ids are then observed with
// GET {base}/imports/{id} and stopped with POST {base}/imports/{id}/cancel.
type Remote struct {
	base   string
	token  string
	client *http.Client
}

// NewRemote creates a remote sink. An empty token sends no Authorization
// header.
func NewRemote(baseURL, token string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		base:   baseURL,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx answer from the import service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("import service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("import service returned status %d: %s", e.StatusCode, e.Body)
}

type remoteImportRequest struct {
	Table         string               `json:"table"`
	Columns       []core.TargetColumn  `json:"columns"`
	UniqueColumns []string             `json:"uniqueColumns,omitempty"`
	OnDuplicate   core.DuplicateAction `json:"onDuplicate"`
	BatchSize     int                  `json:"batchSize"`
	Format        core.Format          `json:"format,omitempty"`
	DateFormat    string               `json:"dateFormat,omitempty"`
	Rows          []core.MappedRow     `json:"rows"`
}

type remoteStatus struct {
	Status        core.JobStatus  `json:"status"`
	Progress      int             `json:"progress"`
	ProcessedRows int             `json:"processedRows"`
	Errors        []core.RowError `json:"errors"`
	ErrorMessage  string          `json:"errorMessage"`
}

// Import posts rows to the service.
func (r *Remote) Import(ctx context.Context, rows []core.MappedRow, opts core.SinkOptions) (core.SinkResult, error) {
	body := remoteImportRequest{
		Table:         opts.Table,
		Columns:       opts.Columns,
		UniqueColumns: opts.UniqueColumns,
		OnDuplicate:   opts.OnDuplicate,
		BatchSize:     opts.BatchSize,
		Format:        opts.Format,
		DateFormat:    opts.DateFormat,
		Rows:          rows,
	}
	var res core.SinkResult
	if err := r.do(ctx, http.MethodPost, []string{"imports"}, body, &res); err != nil {
		return core.SinkResult{}, err
	}
	return res, nil
}

// PollStatus fetches the state of a service job.
func (r *Remote) PollStatus(ctx context.Context, jobID string) (core.ImportJob, error) {
	var s remoteStatus
	if err := r.do(ctx, http.MethodGet, []string{"imports", jobID}, nil, &s); err != nil {
		return core.ImportJob{}, err
	}
	switch s.Status {
	case core.StatusPending, core.StatusParsing, core.StatusValidating, core.StatusImporting,
		core.StatusCompleted, core.StatusFailed, core.StatusCancelled:
	default:
		return core.ImportJob{}, fmt.Errorf("import service reported unknown status %q", s.Status)
	}
	return core.ImportJob{
		ID:            jobID,
		Status:        s.Status,
		Progress:      min(max(s.Progress, 0), 100),
		ProcessedRows: s.ProcessedRows,
		Errors:        s.Errors,
		ErrorMessage:  s.ErrorMessage,
	}, nil
}

// Cancel asks the service to stop a job. A job that already finished is not
// an error.
func (r *Remote) Cancel(ctx context.Context, jobID string) error {
	err := r.do(ctx, http.MethodPost, []string{"imports", jobID, "cancel"}, nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

func (r *Remote) do(ctx context.Context, method string, path []string, in, out any) error {
	escaped := make([]string, len(path))
	for i, p := range path {
		escaped[i] = url.PathEscape(p)
	}
	endpoint, err := url.JoinPath(r.base, escaped...)
	if err != nil {
		return fmt.Errorf("build import service url: %w", err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
