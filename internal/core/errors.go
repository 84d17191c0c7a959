package core

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound         = errors.New("import job not found")
	ErrJobNotRetryable     = errors.New("import job is not retryable")
	ErrRetryLimit          = errors.New("import job retry limit reached")
	ErrJobTerminal         = errors.New("import job already finished")
	ErrNotAwaitingApproval = errors.New("import job is not awaiting approval")
	ErrUnknownTable        = errors.New("unknown table")
	ErrNoPermission        = errors.New("no import permission for actor")
	ErrNoValidRows         = errors.New("no valid rows to import")
)

// ParseError is fatal to one parse attempt. No partial data accompanies it.
type ParseError struct {
	Format Format
	Line   int
	Code   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse " + string(e.Format)
	if e.Line > 0 {
		msg += fmt.Sprintf(": line %d", e.Line)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(format Format, code, reason string, err error) *ParseError {
	return &ParseError{Format: format, Code: code, Reason: reason, Err: err}
}

// Phase names a permission-gated step.
type Phase string

const (
	PhasePreview  Phase = "preview"
	PhaseParse    Phase = "parse"
	PhaseValidate Phase = "validate"
	PhaseImport   Phase = "import"
)

// PolicyViolation reports a denied permission check before a phase.
type PolicyViolation struct {
	Phase  Phase
	Code   string
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Phase, e.Reason)
}

// SinkError wraps a failure reported by the import sink.
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("import sink %s: %v", e.Op, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
