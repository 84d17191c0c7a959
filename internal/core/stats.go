package core

import "time"

// Statistics summarizes the jobs currently held by a controller.
type Statistics struct {
	TotalJobs            int               `json:"totalJobs"`
	ByStatus             map[JobStatus]int `json:"byStatus"`
	Active               int               `json:"active"`
	AwaitingApproval     int               `json:"awaitingApproval"`
	TotalRows            int               `json:"totalRows"`
	ImportedRows         int               `json:"importedRows"`
	ErrorRows            int               `json:"errorRows"`
	SkippedRows          int               `json:"skippedRows"`
	SuccessRate          float64           `json:"successRate"`
	AvgProcessingSeconds float64           `json:"avgProcessingSeconds"`
	LastActivity         *time.Time        `json:"lastActivity,omitempty"`
	Limiter              LimiterStatus     `json:"limiter"`
}

// Statistics computes counts over every held job.
// SuccessRate is completed jobs over finished jobs, in percent.
func (c *Controller) Statistics() Statistics {
	jobs := c.registry.List()
	st := Statistics{
		TotalJobs: len(jobs),
		ByStatus:  make(map[JobStatus]int),
		Limiter:   c.limiter.Status(),
	}

	var finished, completed int
	var processing float64
	for _, j := range jobs {
		st.ByStatus[j.Status]++
		st.TotalRows += j.TotalRows
		st.ErrorRows += j.ErrorRows
		st.SkippedRows += j.SkippedRows
		if j.AwaitingApproval {
			st.AwaitingApproval++
		}
		if !j.Status.IsTerminal() {
			st.Active++
		} else {
			finished++
			processing += j.ProcessingTimeSeconds
		}
		if j.Status == StatusCompleted {
			completed++
			st.ImportedRows += j.ProcessedRows
		}

		last := j.CreatedAt
		if j.CompletedAt != nil {
			last = *j.CompletedAt
		}
		if st.LastActivity == nil || last.After(*st.LastActivity) {
			st.LastActivity = &last
		}
	}

	if finished > 0 {
		st.SuccessRate = float64(completed) / float64(finished) * 100
		st.AvgProcessingSeconds = processing / float64(finished)
	}
	return st
}
