package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// jobEntry is the controller's private record of one job. Only the
// registry's methods touch it, always under the registry lock.
type jobEntry struct {
	job ImportJob

	// replay data kept for retry
	rows        []MappedRow
	sourceRows  []int
	sourceLines []int
	checked     []RowError
	schema      TableSchema
	mappings    []FieldMapping
	opts        ImportOptions
	perm        Permission

	stopPoll  context.CancelFunc
	listeners []chan ImportJob
}

// JobRegistry owns every job. Updates are atomic per job and readers only
// ever see copies.
type JobRegistry struct {
	mu    sync.RWMutex
	jobs  map[string]*jobEntry
	order []string
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*jobEntry)}
}

func (r *JobRegistry) add(e *jobEntry) ImportJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[e.job.ID] = e
	r.order = append(r.order, e.job.ID)
	return e.job.clone()
}

// Get returns a snapshot of job id.
func (r *JobRegistry) Get(id string) (ImportJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return ImportJob{}, false
	}
	return e.job.clone(), true
}

// List returns snapshots of every job, newest first.
func (r *JobRegistry) List() []ImportJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ImportJob, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.jobs[r.order[i]].job.clone())
	}
	return out
}

// Len returns the number of jobs held.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// update applies fn to job id under the lock and notifies listeners with the
// resulting snapshot. fn may reject the change by returning an error, in
// which case nothing is modified.
func (r *JobRegistry) update(id string, fn func(e *jobEntry) error) (ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return ImportJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	before := e.job.clone()
	if err := fn(e); err != nil {
		e.job = before
		return before, err
	}
	snap := e.job.clone()
	terminal := snap.Status.IsTerminal()
	for _, ch := range e.listeners {
		notify(ch, snap, terminal)
	}
	if terminal {
		e.closeListeners()
	}
	return snap, nil
}

// notify sends snap without blocking. A slow listener misses intermediate
// snapshots, but the terminal one evicts the oldest buffered snapshot so it
// is always the last value received.
func notify(ch chan ImportJob, snap ImportJob, terminal bool) {
	select {
	case ch <- snap:
		return
	default:
	}
	if !terminal {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// transition moves job id to next, applying fn to the job in the same step.
// Backward moves and moves out of terminal states are rejected.
func (r *JobRegistry) transition(id string, next JobStatus, fn func(j *ImportJob)) (ImportJob, error) {
	return r.update(id, func(e *jobEntry) error {
		if !e.job.Status.CanTransition(next) {
			if e.job.Status.IsTerminal() {
				return fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, e.job.Status)
			}
			return fmt.Errorf("job %s cannot move from %s to %s", id, e.job.Status, next)
		}
		e.job.Status = next
		if fn != nil {
			fn(&e.job)
		}
		if next.IsTerminal() {
			finish(&e.job)
			if e.stopPoll != nil {
				e.stopPoll()
				e.stopPoll = nil
			}
		}
		return nil
	})
}

// finish stamps completion time and duration.
func finish(j *ImportJob) {
	now := time.Now().UTC()
	j.CompletedAt = &now
	j.AwaitingApproval = false
	if j.Status == StatusCompleted {
		j.Progress = 100
	}
	if j.StartedAt != nil {
		j.ProcessingTimeSeconds = now.Sub(*j.StartedAt).Seconds()
	}
}

// subscribe registers a listener that receives every snapshot of job id and
// is closed when the job ends or the returned cancel func is called.
func (r *JobRegistry) subscribe(id string) (<-chan ImportJob, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	ch := make(chan ImportJob, 16)
	ch <- e.job.clone()
	if e.job.Status.IsTerminal() {
		close(ch)
		return ch, func() {}, nil
	}
	e.listeners = append(e.listeners, ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, l := range e.listeners {
				if l == ch {
					e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	return ch, cancel, nil
}

func (e *jobEntry) closeListeners() {
	for _, ch := range e.listeners {
		close(ch)
	}
	e.listeners = nil
}

// remove deletes the jobs for which drop returns true and returns them.
func (r *JobRegistry) remove(drop func(j ImportJob) bool) []ImportJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []ImportJob
	order := r.order[:0]
	for _, id := range r.order {
		e := r.jobs[id]
		if drop(e.job) {
			if e.stopPoll != nil {
				e.stopPoll()
			}
			e.closeListeners()
			delete(r.jobs, id)
			removed = append(removed, e.job.clone())
			continue
		}
		order = append(order, id)
	}
	r.order = order
	return removed
}

// entry returns the replay data of job id as a detached copy.
func (r *JobRegistry) entry(id string) (jobEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return jobEntry{}, false
	}
	return jobEntry{
		job:         e.job.clone(),
		rows:        e.rows,
		sourceRows:  e.sourceRows,
		sourceLines: e.sourceLines,
		checked:     e.checked,
		schema:      e.schema,
		mappings:    e.mappings,
		opts:        e.opts,
		perm:        e.perm,
	}, true
}

// setPoller registers stop as the only poller of job id. It returns false if
// the job already has one or has ended.
func (r *JobRegistry) setPoller(id string, stop context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok || e.stopPoll != nil || e.job.Status.IsTerminal() {
		return false
	}
	e.stopPoll = stop
	return true
}

// clearPoller drops the poller registration of job id.
func (r *JobRegistry) clearPoller(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[id]; ok {
		e.stopPoll = nil
	}
}
