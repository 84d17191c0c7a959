package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// startPolling begins observing sinkJobID on behalf of job id. At most one
// poller runs per job; a second call is a no-op.
func (c *Controller) startPolling(id, sinkJobID string) {
	ctx, stop := context.WithCancel(c.ctx)
	if !c.registry.setPoller(id, stop) {
		stop()
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.registry.clearPoller(id)
		defer stop()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("panic in status poller", "job_id", id, "panic", r)
				c.fail(c.ctx, id, &SinkError{Op: "poll", Err: fmt.Errorf("internal error: %v", r)})
			}
		}()
		c.pollLoop(ctx, id, sinkJobID)
	}()
}

// pollLoop asks the sink for the status of sinkJobID every PollInterval
// until the sink reports a terminal status, the job ends locally, or too
// many consecutive polls fail.
func (c *Controller) pollLoop(ctx context.Context, id, sinkJobID string) {
	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		status, err := c.sink.PollStatus(ctx, sinkJobID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			c.log.Warn("sink status poll failed", "job_id", id, "sink_job_id", sinkJobID,
				"attempt", failures, "error", err)
			if failures >= c.cfg.MaxPollFailures {
				c.fail(c.ctx, id, &SinkError{Op: "poll", Err: err})
				return
			}
			timer.Reset(c.cfg.PollInterval)
			continue
		}
		failures = 0

		if c.applyStatus(id, status) {
			return
		}
		timer.Reset(c.cfg.PollInterval)
	}
}

// applyStatus merges a polled sink status into job id and reports whether
// polling is over.
func (c *Controller) applyStatus(id string, s ImportJob) bool {
	ctx := c.ctx
	switch s.Status {
	case StatusCompleted:
		c.complete(ctx, id, SinkResult{ImportedRows: s.ProcessedRows, Errors: s.Errors})
		return true
	case StatusFailed:
		msg := s.ErrorMessage
		if msg == "" {
			msg = "import failed at destination"
		}
		c.failWith(ctx, id, &SinkError{Op: "import", Err: errors.New(msg)}, c.sourceRowErrors(id, s.Errors))
		return true
	case StatusCancelled:
		job, err := c.registry.transition(id, StatusCancelled, func(j *ImportJob) {
			j.ErrorMessage = "cancelled by import destination"
		})
		if err == nil {
			c.finished(ctx, job, ActionImportCancelled, job.ErrorMessage)
		}
		return true
	}

	// Any live sink status means the rows are still being written.
	p := progressImporting + s.Progress*(100-progressImporting)/100
	_, err := c.registry.update(id, func(e *jobEntry) error {
		if e.job.Status != StatusImporting {
			return fmt.Errorf("%w: %s", ErrJobTerminal, id)
		}
		e.job.Progress = max(e.job.Progress, min(p, 99))
		e.job.ProcessedRows = max(e.job.ProcessedRows, s.ProcessedRows)
		return nil
	})
	return err != nil
}
