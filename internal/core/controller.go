package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink is the external destination of accepted rows.
//
// Import either completes inline, returning ImportedRows, or hands back a
// JobID that the controller then polls with PollStatus until the reported
// status is terminal. RowError.Row in a sink result is the 1-based position
// in the rows passed to Import; the controller maps it back to the source row.
type Sink interface {
	Import(ctx context.Context, rows []MappedRow, opts SinkOptions) (SinkResult, error)
	PollStatus(ctx context.Context, jobID string) (ImportJob, error)
	Cancel(ctx context.Context, jobID string) error
}

// SinkOptions tells a sink where and how to write rows.
type SinkOptions struct {
	Table         string
	Columns       []TargetColumn
	UniqueColumns []string
	OnDuplicate   DuplicateAction
	BatchSize     int
	Format        Format
	DateFormat    string

	// Progress may be called by synchronous sinks after each batch.
	Progress func(written int) `json:"-"`
}

// SinkResult is the immediate answer of Sink.Import.
type SinkResult struct {
	JobID        string     `json:"jobId,omitempty"`
	ImportedRows int        `json:"importedRows,omitempty"`
	Errors       []RowError `json:"errors,omitempty"`
}

const (
	progressParsing    = 10
	progressValidating = 30
	progressImporting  = 50

	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollFailures = 5
	DefaultMaxRetries      = 3
)

// ControllerConfig tunes the job controller. Zero values select defaults.
type ControllerConfig struct {
	PollInterval    time.Duration
	MaxPollFailures int
	MaxRetries      int
	MaxConcurrent   int
	SlotWait        time.Duration
	Validator       *Validator
	Recorder        Recorder
	Logger          *slog.Logger
}

// Controller drives import jobs from submission to a terminal state.
// Parsing and validation run on the caller's goroutine; only the sink call
// and status polling run in the background.
type Controller struct {
	sink      Sink
	cfg       ControllerConfig
	registry  *JobRegistry
	limiter   *ImportLimiter
	validator *Validator
	recorder  Recorder
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	quotaMu     sync.Mutex
	submissions map[string][]time.Time
}

// NewController creates a controller writing to sink.
func NewController(sink Sink, cfg ControllerConfig) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollFailures <= 0 {
		cfg.MaxPollFailures = DefaultMaxPollFailures
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sink:        sink,
		cfg:         cfg,
		registry:    NewJobRegistry(),
		limiter:     NewImportLimiter(cfg.MaxConcurrent, cfg.SlotWait),
		validator:   cfg.Validator,
		recorder:    cfg.Recorder,
		log:         cfg.Logger,
		ctx:         ctx,
		cancel:      cancel,
		submissions: make(map[string][]time.Time),
	}
}

// ParseFile parses an upload for preview after checking preview permission.
func (c *Controller) ParseFile(perm Permission, file FileInput, opts ImportOptions) (*ParsedData, error) {
	format := ResolveFormat(file, opts)
	if err := perm.CheckPreview(format, int64(len(file.Content))); err != nil {
		return nil, err
	}
	pd, err := ParseFile(file, opts)
	if err != nil {
		return nil, err
	}
	if err := perm.CheckRows(PhasePreview, pd.TotalRows); err != nil {
		return nil, err
	}
	return pd, nil
}

// Validate runs the validation engine after checking validate permission.
func (c *Controller) Validate(perm Permission, rows []Row, mappings []FieldMapping, schema []TargetColumn, opts ImportOptions) (ValidationResult, error) {
	if err := perm.CheckValidate(len(rows)); err != nil {
		return ValidationResult{}, err
	}
	return c.validator.WithDateFormat(opts.DateFormat).Validate(rows, mappings, schema), nil
}

// SubmitRequest describes one import. Either File content or an already
// parsed data set is required; nil Mappings are derived with AutoMap.
type SubmitRequest struct {
	Actor      string
	Permission Permission
	File       FileInput
	Parsed     *ParsedData
	Table      TableSchema
	Mappings   []FieldMapping
	Options    ImportOptions
}

// SubmitImport creates a job and runs it through parsing and validation on
// the calling goroutine. Execution against the sink continues in the
// background; the returned snapshot reflects the state at hand-off.
// Policy, parse and validation failures end the job as failed and are
// reported on the job, not as an error.
func (c *Controller) SubmitImport(ctx context.Context, req SubmitRequest) (ImportJob, error) {
	opts := req.Options.WithDefaults()
	format := ResolveFormat(req.File, opts)
	if req.Parsed != nil && req.Parsed.Format != "" {
		format = req.Parsed.Format
	}

	job := c.registry.add(&jobEntry{
		job: ImportJob{
			ID:        uuid.NewString(),
			Status:    StatusPending,
			File:      req.File.Info(),
			Table:     req.Table.Key,
			Format:    format,
			Actor:     req.Actor,
			Errors:    []RowError{},
			Warnings:  []Warning{},
			CreatedAt: time.Now().UTC(),
		},
		schema: req.Table,
		opts:   opts,
		perm:   req.Permission,
	})
	id := job.ID
	c.event(ctx, ActionImportSubmitted, job, "")
	c.log.Info("import submitted", "job_id", id, "actor", req.Actor, "table", req.Table.Key, "file", job.File.Name)

	if err := req.Permission.CheckImport(req.Table.Key, 0); err != nil {
		return c.fail(ctx, id, err), nil
	}
	if err := c.takeQuota(req.Actor, req.Permission); err != nil {
		return c.fail(ctx, id, err), nil
	}

	if err := req.Permission.CheckFile(PhaseParse, format, job.File.Size); err != nil {
		return c.fail(ctx, id, err), nil
	}
	started := time.Now().UTC()
	if _, err := c.registry.transition(id, StatusParsing, func(j *ImportJob) {
		j.Progress = progressParsing
		j.StartedAt = &started
	}); err != nil {
		return c.current(id), err
	}
	parsed := req.Parsed
	if parsed == nil {
		var err error
		if parsed, err = ParseFile(req.File, opts); err != nil {
			return c.fail(ctx, id, err), nil
		}
	}

	if _, err := c.registry.update(id, func(e *jobEntry) error {
		if e.job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrJobTerminal, id)
		}
		e.job.TotalRows = parsed.TotalRows
		e.job.Errors = append(e.job.Errors, parsed.Errors...)
		e.job.Warnings = append(e.job.Warnings, parsed.Warnings...)
		return nil
	}); err != nil {
		return c.current(id), err
	}
	if err := req.Permission.CheckValidate(parsed.TotalRows); err != nil {
		return c.fail(ctx, id, err), nil
	}
	if _, err := c.registry.transition(id, StatusValidating, func(j *ImportJob) {
		j.Progress = progressValidating
	}); err != nil {
		return c.current(id), err
	}

	mappings := req.Mappings
	if len(mappings) == 0 {
		mappings = AutoMap(parsed.Headers, req.Table.Columns)
	}
	result := c.validator.WithDateFormat(opts.DateFormat).ValidateParsed(parsed, mappings, req.Table.Columns)
	rows, sources, skipped := selectRows(result, req.Table, opts.OnDuplicate)
	lines := make([]int, len(sources))
	for i, n := range sources {
		lines[i] = parsed.LineOf(n)
	}

	job, err := c.registry.update(id, func(e *jobEntry) error {
		if e.job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrJobTerminal, id)
		}
		e.rows = rows
		e.sourceRows = sources
		e.sourceLines = lines
		e.checked = append(slices.Clone(parsed.Errors), result.Errors...)
		e.mappings = mappings
		e.job.ValidRows = result.ValidRows
		e.job.ErrorRows = result.ErrorRows
		e.job.SkippedRows = skipped
		e.job.Errors = append(e.job.Errors, result.Errors...)
		e.job.Warnings = append(e.job.Warnings, result.Warnings...)
		e.job.Duplicates = result.Duplicates
		return nil
	})
	if err != nil {
		return job, err
	}

	if opts.ValidateOnly {
		job, err := c.registry.transition(id, StatusCompleted, func(j *ImportJob) {
			j.ProcessedRows = result.TotalRows
		})
		if err == nil {
			c.finished(ctx, job, ActionImportCompleted, "validation only")
		}
		return job, err
	}
	if len(rows) == 0 {
		return c.fail(ctx, id, ErrNoValidRows), nil
	}

	if req.Permission.RequireApproval {
		job, err := c.registry.update(id, func(e *jobEntry) error {
			if e.job.Status.IsTerminal() {
				return fmt.Errorf("%w: %s", ErrJobTerminal, id)
			}
			e.job.AwaitingApproval = true
			return nil
		})
		if err == nil {
			c.event(ctx, ActionImportAwaitingApproval, job, "")
			c.log.Info("import awaiting approval", "job_id", id)
		}
		return job, err
	}

	return c.startImport(ctx, id)
}

// selectRows picks the rows handed to the sink: rows without errors, minus
// later members of duplicate groups when duplicates are skipped. Keys outside
// the schema are dropped. The second result holds the source row number of
// each selected row.
func selectRows(result ValidationResult, schema TableSchema, action DuplicateAction) ([]MappedRow, []int, int) {
	drop := make(map[int]bool)
	for _, e := range result.Errors {
		drop[e.Row] = true
	}
	if action == DuplicateSkip {
		for _, g := range result.Duplicates {
			for _, r := range g.Rows[1:] {
				drop[r] = true
			}
		}
	}

	rows := make([]MappedRow, 0, len(result.Rows))
	sources := make([]int, 0, len(result.Rows))
	for i, r := range result.Rows {
		if drop[i+1] {
			continue
		}
		out := make(MappedRow, len(schema.Columns))
		for _, c := range schema.Columns {
			if v, ok := r[c.Key]; ok {
				out[c.Key] = v
			}
		}
		rows = append(rows, out)
		sources = append(sources, i+1)
	}
	return rows, sources, len(result.Rows) - len(rows)
}

// startImport passes the import gate, enters importing and hands the rows to
// the background executor.
func (c *Controller) startImport(ctx context.Context, id string) (ImportJob, error) {
	e, ok := c.registry.entry(id)
	if !ok {
		return ImportJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err := e.perm.CheckImport(e.schema.Key, len(e.rows)); err != nil {
		return c.fail(ctx, id, err), nil
	}

	now := time.Now().UTC()
	job, err := c.registry.transition(id, StatusImporting, func(j *ImportJob) {
		j.Progress = progressImporting
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	})
	if err != nil {
		return job, err
	}
	c.event(ctx, ActionImportStarted, job, "")
	c.log.Info("import started", "job_id", id, "rows", len(e.rows))

	opts := SinkOptions{
		Table:         e.schema.Key,
		Columns:       e.schema.Columns,
		UniqueColumns: e.schema.UniqueKeys(),
		OnDuplicate:   e.opts.OnDuplicate,
		BatchSize:     e.opts.BatchSize,
		Format:        job.Format,
		DateFormat:    e.opts.DateFormat,
	}
	c.wg.Add(1)
	go c.execute(id, e.rows, opts)
	return job, nil
}

// execute performs the sink call for job id.
func (c *Controller) execute(id string, rows []MappedRow, opts SinkOptions) {
	defer c.wg.Done()
	ctx := c.ctx

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in import execution", "job_id", id, "panic", r)
			c.fail(ctx, id, &SinkError{Op: "import", Err: fmt.Errorf("internal error: %v", r)})
		}
	}()

	if err := c.limiter.Acquire(ctx); err != nil {
		c.fail(ctx, id, err)
		return
	}
	defer c.limiter.Release()

	if job, ok := c.registry.Get(id); !ok || job.Status.IsTerminal() {
		return
	}

	opts.Progress = func(written int) { c.reportProgress(id, written, len(rows)) }
	res, err := c.sink.Import(ctx, rows, opts)
	if err != nil {
		c.fail(ctx, id, &SinkError{Op: "import", Err: err})
		return
	}

	if res.JobID == "" {
		c.complete(ctx, id, res)
		return
	}

	_, err = c.registry.update(id, func(e *jobEntry) error {
		if e.job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrJobTerminal, id)
		}
		e.job.SinkJobID = res.JobID
		return nil
	})
	if err != nil {
		// Cancelled while the sink was accepting the rows.
		c.cancelSinkJob(id, res.JobID)
		return
	}
	c.log.Info("import accepted by sink", "job_id", id, "sink_job_id", res.JobID)
	c.startPolling(id, res.JobID)
}

func (c *Controller) reportProgress(id string, written, total int) {
	if total <= 0 {
		return
	}
	p := progressImporting + written*(99-progressImporting)/total
	c.registry.update(id, func(e *jobEntry) error {
		if e.job.Status != StatusImporting {
			return ErrJobTerminal
		}
		e.job.Progress = max(e.job.Progress, min(p, 99))
		e.job.ProcessedRows = max(e.job.ProcessedRows, written)
		return nil
	})
}

// complete finishes job id with the sink's result. A result that imported
// nothing but reported errors counts as a failure.
func (c *Controller) complete(ctx context.Context, id string, res SinkResult) ImportJob {
	res.Errors = c.sourceRowErrors(id, res.Errors)
	if res.ImportedRows == 0 && len(res.Errors) > 0 {
		return c.failWith(ctx, id, &SinkError{Op: "import", Err: errors.New(res.Errors[0].Message)}, res.Errors)
	}
	job, err := c.registry.transition(id, StatusCompleted, func(j *ImportJob) {
		j.ProcessedRows = res.ImportedRows
		j.Errors = append(j.Errors, res.Errors...)
	})
	if err != nil {
		return job
	}
	c.finished(ctx, job, ActionImportCompleted, "")
	return job
}

// sourceRowErrors renumbers sink row errors of job id from positions in the
// rows sent to the sink to source rows and lines.
func (c *Controller) sourceRowErrors(id string, errs []RowError) []RowError {
	if len(errs) == 0 {
		return errs
	}
	e, ok := c.registry.entry(id)
	if !ok {
		return errs
	}
	out := slices.Clone(errs)
	for i := range out {
		pos := out[i].Row
		if pos < 1 || pos > len(e.sourceRows) {
			continue
		}
		out[i].Row = e.sourceRows[pos-1]
		if out[i].Line == 0 && pos <= len(e.sourceLines) {
			out[i].Line = e.sourceLines[pos-1]
		}
	}
	return out
}

// fail moves job id to failed with err as the recorded reason.
func (c *Controller) fail(ctx context.Context, id string, err error) ImportJob {
	return c.failWith(ctx, id, err, nil)
}

func (c *Controller) failWith(ctx context.Context, id string, cause error, rowErrs []RowError) ImportJob {
	um := MapError(cause)
	job, err := c.registry.transition(id, StatusFailed, func(j *ImportJob) {
		j.ErrorMessage = cause.Error()
		j.ErrorCode = um.Code
		j.Errors = append(j.Errors, rowErrs...)
	})
	if err != nil {
		return job
	}
	c.log.Warn("import failed", "job_id", id, "code", um.Code, "error", cause)
	c.finished(ctx, job, ActionImportFailed, cause.Error())
	return job
}

// CancelImport cancels a live job and stops observing its sink job.
func (c *Controller) CancelImport(ctx context.Context, id string) (ImportJob, error) {
	job, err := c.registry.transition(id, StatusCancelled, nil)
	if err != nil {
		return job, err
	}
	if job.SinkJobID != "" {
		c.cancelSinkJob(id, job.SinkJobID)
	}
	c.finished(ctx, job, ActionImportCancelled, "")
	return job, nil
}

// cancelSinkJob asks the sink to stop sinkJobID without waiting for it.
func (c *Controller) cancelSinkJob(id, sinkJobID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), 30*time.Second)
		defer cancel()
		if err := c.sink.Cancel(ctx, sinkJobID); err != nil {
			c.log.Warn("sink cancel failed", "job_id", id, "sink_job_id", sinkJobID, "error", err)
		}
	}()
}

// RetryImport replaces failed job id with a new job that replays the same
// validated rows and mappings, starting at importing.
func (c *Controller) RetryImport(ctx context.Context, id string) (ImportJob, error) {
	e, ok := c.registry.entry(id)
	if !ok {
		return ImportJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if e.job.Status != StatusFailed || len(e.rows) == 0 {
		return e.job, fmt.Errorf("%w: %s is %s", ErrJobNotRetryable, id, e.job.Status)
	}
	if e.job.RetryCount >= c.cfg.MaxRetries {
		return e.job, fmt.Errorf("%w: %d of %d", ErrRetryLimit, e.job.RetryCount, c.cfg.MaxRetries)
	}

	removed := c.registry.remove(func(j ImportJob) bool {
		return j.ID == id && j.Status == StatusFailed
	})
	if len(removed) == 0 {
		return ImportJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	old := removed[0]
	job := c.registry.add(&jobEntry{
		job: ImportJob{
			ID:          uuid.NewString(),
			Status:      StatusPending,
			File:        old.File,
			Table:       old.Table,
			Format:      old.Format,
			Actor:       old.Actor,
			TotalRows:   old.TotalRows,
			ValidRows:   old.ValidRows,
			ErrorRows:   old.ErrorRows,
			SkippedRows: old.SkippedRows,
			Errors:      append([]RowError{}, e.checked...),
			Warnings:    slices.Clone(old.Warnings),
			Duplicates:  old.Duplicates,
			RetryCount:  old.RetryCount + 1,
			RetryOf:     old.ID,
			CreatedAt:   time.Now().UTC(),
		},
		rows:        e.rows,
		sourceRows:  e.sourceRows,
		sourceLines: e.sourceLines,
		checked:     e.checked,
		schema:      e.schema,
		mappings:    e.mappings,
		opts:        e.opts,
		perm:        e.perm,
	})
	c.event(ctx, ActionImportRetried, job, "retry of "+old.ID)
	c.log.Info("import retried", "job_id", job.ID, "retry_of", old.ID, "retry_count", job.RetryCount)
	return c.startImport(ctx, job.ID)
}

// ApproveImport releases a job held for approval into importing. perm is the
// approver's own permission; it must allow approving and the approver must
// not be the submitter.
func (c *Controller) ApproveImport(ctx context.Context, id, approver string, perm Permission) (ImportJob, error) {
	job, err := c.registry.update(id, func(e *jobEntry) error {
		if e.job.Status != StatusValidating || !e.job.AwaitingApproval {
			return fmt.Errorf("%w: %s is %s", ErrNotAwaitingApproval, id, e.job.Status)
		}
		if err := perm.CheckApprove(e.job.Actor, approver); err != nil {
			return err
		}
		now := time.Now().UTC()
		e.job.AwaitingApproval = false
		e.job.ApprovedBy = approver
		e.job.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return job, err
	}
	c.event(ctx, ActionImportApproved, job, "approved by "+approver)
	return c.startImport(ctx, id)
}

// ClearCompleted removes completed and cancelled jobs. Failed jobs stay so
// they can still be retried.
func (c *Controller) ClearCompleted(ctx context.Context) int {
	removed := c.registry.remove(func(j ImportJob) bool {
		return j.Status == StatusCompleted || j.Status == StatusCancelled
	})
	if len(removed) > 0 {
		ev := newAuditEvent(ctx, ActionJobsCleared, ImportJob{Actor: ActorFromContext(ctx)}, fmt.Sprintf("%d jobs cleared", len(removed)))
		c.recordEvent(ctx, ev)
	}
	return len(removed)
}

// PruneFinished removes terminal jobs that ended more than age ago.
func (c *Controller) PruneFinished(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	removed := c.registry.remove(func(j ImportJob) bool {
		return j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff)
	})
	return len(removed)
}

// Job returns a snapshot of job id.
func (c *Controller) Job(id string) (ImportJob, error) {
	job, ok := c.registry.Get(id)
	if !ok {
		return ImportJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Jobs returns snapshots of all jobs, newest first.
func (c *Controller) Jobs() []ImportJob {
	return c.registry.List()
}

// Subscribe streams snapshots of job id until it ends. Call cancel to stop early.
func (c *Controller) Subscribe(id string) (<-chan ImportJob, func(), error) {
	return c.registry.subscribe(id)
}

// LimiterStatus reports sink execution slot usage.
func (c *Controller) LimiterStatus() LimiterStatus {
	return c.limiter.Status()
}

// Shutdown waits for running sink calls, then stops polling.
func (c *Controller) Shutdown(ctx context.Context) error {
	drainErr := c.limiter.WaitForDrain(ctx)
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return drainErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) current(id string) ImportJob {
	job, _ := c.registry.Get(id)
	return job
}

// takeQuota enforces hourly and daily submission quotas for actor and
// counts this submission.
func (c *Controller) takeQuota(actor string, perm Permission) error {
	if perm.MaxImportsPerHour <= 0 && perm.MaxImportsPerDay <= 0 {
		return nil
	}
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()

	now := time.Now()
	var recent []time.Time
	hour := 0
	for _, t := range c.submissions[actor] {
		if now.Sub(t) < 24*time.Hour {
			recent = append(recent, t)
			if now.Sub(t) < time.Hour {
				hour++
			}
		}
	}
	c.submissions[actor] = recent

	if perm.MaxImportsPerHour > 0 && hour >= perm.MaxImportsPerHour {
		return violation(PhaseImport, "POL006", "hourly import quota of %d reached", perm.MaxImportsPerHour)
	}
	if perm.MaxImportsPerDay > 0 && len(recent) >= perm.MaxImportsPerDay {
		return violation(PhaseImport, "POL006", "daily import quota of %d reached", perm.MaxImportsPerDay)
	}
	c.submissions[actor] = append(recent, now)
	return nil
}

// finished persists a job that reached a terminal state.
func (c *Controller) finished(ctx context.Context, job ImportJob, action AuditAction, msg string) {
	ctx = context.WithoutCancel(ctx)
	if err := c.recorder.RecordJob(ctx, job); err != nil {
		c.log.Error("record job failed", "job_id", job.ID, "error", err)
	}
	c.event(ctx, action, job, msg)
	c.log.Info("import finished", "job_id", job.ID, "status", job.Status,
		"processed_rows", job.ProcessedRows, "error_rows", job.ErrorRows)
}

func (c *Controller) event(ctx context.Context, action AuditAction, job ImportJob, msg string) {
	ev := newAuditEvent(ctx, action, job, msg)
	ev.Details = map[string]any{
		"status":   string(job.Status),
		"file":     job.File.Name,
		"progress": job.Progress,
	}
	c.recordEvent(ctx, ev)
}

func (c *Controller) recordEvent(ctx context.Context, ev AuditEvent) {
	if err := c.recorder.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
		c.log.Error("record audit event failed", "action", ev.Action, "job_id", ev.JobID, "error", err)
	}
}
