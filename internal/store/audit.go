package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// RecordEvent stores one lifecycle event.
func (s *Store) RecordEvent(ctx context.Context, ev core.AuditEvent) error {
	var details sql.NullString
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err == nil {
			details = sql.NullString{String: string(b), Valid: true}
		}
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_events
		(id, action, severity, job_id, actor, table_key, ip_address, user_agent, message, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Action), string(ev.Severity), ev.JobID, ev.Actor, ev.Table,
		ev.IPAddress, ev.UserAgent, ev.Message, details, toMillis(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record audit event %s: %w", ev.Action, err)
	}
	return nil
}

// EventFilter selects audit events. Zero fields do not filter.
type EventFilter struct {
	JobID    string
	Action   core.AuditAction
	Severity core.AuditSeverity
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// ListEvents returns events matching f, newest first.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]core.AuditEvent, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}

	var wb whereBuilder
	wb.add("job_id", f.JobID)
	wb.add("action", string(f.Action))
	wb.add("severity", string(f.Severity))
	wb.addTimeRange("created_at", f.Since, f.Until)
	where, args := wb.build()

	query := `SELECT id, action, severity, job_id, actor, table_key, ip_address, user_agent,
		message, details, created_at FROM audit_events` + where +
		" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]core.AuditEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (core.AuditEvent, error) {
	var (
		ev                                            core.AuditEvent
		action, severity                              string
		jobID, actor, table, ip, ua, message, details sql.NullString
		created                                       int64
	)
	if err := rows.Scan(&ev.ID, &action, &severity, &jobID, &actor, &table, &ip, &ua,
		&message, &details, &created); err != nil {
		return ev, err
	}

	ev.Action = core.AuditAction(action)
	ev.Severity = core.AuditSeverity(severity)
	ev.JobID = jobID.String
	ev.Actor = actor.String
	ev.Table = table.String
	ev.IPAddress = ip.String
	ev.UserAgent = ua.String
	ev.Message = message.String
	ev.CreatedAt = fromMillis(created)
	if details.Valid {
		if err := json.Unmarshal([]byte(details.String), &ev.Details); err != nil {
			ev.Details = nil
		}
	}
	return ev, nil
}
