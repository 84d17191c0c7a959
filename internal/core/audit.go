package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of lifecycle event being audited.
type AuditAction string

const (
	ActionImportSubmitted        AuditAction = "import_submitted"
	ActionImportStarted          AuditAction = "import_started"
	ActionImportAwaitingApproval AuditAction = "import_awaiting_approval"
	ActionImportApproved         AuditAction = "import_approved"
	ActionImportCompleted        AuditAction = "import_completed"
	ActionImportFailed           AuditAction = "import_failed"
	ActionImportCancelled        AuditAction = "import_cancelled"
	ActionImportRetried          AuditAction = "import_retried"
	ActionJobsCleared            AuditAction = "jobs_cleared"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEvent is one recorded job lifecycle event.
type AuditEvent struct {
	ID        string         `json:"id"`
	Action    AuditAction    `json:"action"`
	Severity  AuditSeverity  `json:"severity"`
	JobID     string         `json:"jobId,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Table     string         `json:"table,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// determineSeverity returns the severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionImportCompleted, ActionImportApproved:
		return SeverityHigh
	case ActionImportFailed:
		return SeverityCritical
	case ActionImportSubmitted, ActionImportStarted, ActionImportAwaitingApproval:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// newAuditEvent builds an event for job, taking request details from ctx.
func newAuditEvent(ctx context.Context, action AuditAction, job ImportJob, msg string) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Severity:  determineSeverity(action),
		JobID:     job.ID,
		Actor:     job.Actor,
		Table:     job.Table,
		IPAddress: IPAddressFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	}
}

// Recorder persists finished jobs and lifecycle events.
type Recorder interface {
	RecordJob(ctx context.Context, job ImportJob) error
	RecordEvent(ctx context.Context, event AuditEvent) error
}

type nopRecorder struct{}

func (nopRecorder) RecordJob(context.Context, ImportJob) error    { return nil }
func (nopRecorder) RecordEvent(context.Context, AuditEvent) error { return nil }
