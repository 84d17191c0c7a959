package core

// error_messages.go maps pipeline errors to operator-facing messages.
//
// Typed errors carry their own code and are resolved first:
//
//	PARSE001-PARSE009  *ParseError     file unreadable, empty or wrong shape
//	POL001-POL010      *PolicyViolation permission check failed before a phase
//	SINK001-SINK002    *SinkError      import sink call or status poll failed
//	JOB001-JOB007      sentinels       job registry and lifecycle errors
//
// Row-level codes (VAL001-VAL012) appear on RowError.Code and are listed with
// the validation engine.
//
// Anything else falls through to the case-insensitive pattern table below and
// finally to ERR000. Support staff seeing ERR000 should check the logs for the
// original error.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var parseMessages = map[string]UserMessage{
	"PARSE001": {"The uploaded file is empty", "Upload a file that contains data rows", "PARSE001"},
	"PARSE002": {"The file contains no data rows", "Check the skip and header options or upload a file with data", "PARSE002"},
	"PARSE003": {"The file has duplicate column headers", "Rename the repeated columns so every header is unique", "PARSE003"},
	"PARSE004": {"The file structure is not supported", "Provide an array of records or an object holding exactly one array", "PARSE004"},
	"PARSE005": {"The file could not be read", "Check that the file matches its extension and is not corrupted", "PARSE005"},
	"PARSE006": {"The file encoding could not be decoded", "Save the file as UTF-8 or pick the matching encoding", "PARSE006"},
	"PARSE007": {"The delimiter option is invalid", "Use a single character such as , ; | or tab", "PARSE007"},
	"PARSE008": {"The file format is not supported", "Upload a csv, json, xlsx or xml file", "PARSE008"},
}

var policyMessages = map[string]UserMessage{
	"POL001": {"You are not allowed to import data", "Ask an administrator for import permission", "POL001"},
	"POL002": {"This file format is not allowed", "Convert the file to an allowed format", "POL002"},
	"POL003": {"The file exceeds your size limit", "Split the file into smaller parts", "POL003"},
	"POL004": {"The file exceeds your row limit", "Split the file or ask for a higher limit", "POL004"},
	"POL005": {"You are not allowed to import into this table", "Choose a table you have access to", "POL005"},
	"POL006": {"Import quota exceeded", "Wait before submitting more imports", "POL006"},
	"POL007": {"You are not allowed to preview files", "Ask an administrator for preview permission", "POL007"},
	"POL008": {"You are not allowed to validate data", "Ask an administrator for validation permission", "POL008"},
	"POL009": {"You are not allowed to approve imports", "Ask an administrator for approval permission", "POL009"},
	"POL010": {"You cannot approve your own import", "Ask another approver to release it", "POL010"},
}

var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrJobNotFound, UserMessage{"Import job not found", "The job may have been cleared. Start a new import", "JOB001"}},
	{ErrJobNotRetryable, UserMessage{"Only failed imports with validated rows can be retried", "Start a new import instead", "JOB002"}},
	{ErrJobTerminal, UserMessage{"The import has already finished", "Refresh to see its final status", "JOB003"}},
	{ErrRetryLimit, UserMessage{"The retry limit for this import was reached", "Fix the underlying problem and start a new import", "JOB004"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "JOB005"}},
	{ErrNotAwaitingApproval, UserMessage{"The import is not waiting for approval", "Refresh to see its current status", "JOB006"}},
	{ErrNoValidRows, UserMessage{"No rows passed validation", "Fix the reported errors and upload again", "JOB007"}},
	{ErrUnknownTable, UserMessage{"Unknown table", "This table is not configured", "TBL002"}},
	{ErrNoPermission, UserMessage{"No import permission is configured for you", "Ask an administrator to grant access", "POL001"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try a smaller file or check your connection", "REQ002"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch untyped errors from drivers and libraries.
// The first match wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this key already exists", "Set duplicate handling to skip or update", "DB001"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review your data for duplicate key values", "DB002"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Import parent records first", "DB003"}},
	{"connection refused", UserMessage{"Unable to reach the import destination", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Connection to the import destination was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE001"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to import", "FILE004"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var sinkMessages = map[string]UserMessage{
	"import": {"The import destination rejected the data", "Retry the import or contact support", "SINK001"},
	"poll":   {"Lost track of the import at its destination", "Retry the import or contact support", "SINK002"},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. Typed errors and
// sentinels are resolved before the pattern table.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	var pe *ParseError
	if errors.As(err, &pe) {
		if msg, ok := parseMessages[pe.Code]; ok {
			return msg
		}
		return parseMessages["PARSE005"]
	}

	var pv *PolicyViolation
	if errors.As(err, &pv) {
		if msg, ok := policyMessages[pv.Code]; ok {
			return msg
		}
		return policyMessages["POL001"]
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	var se *SinkError
	if errors.As(err, &se) {
		if msg := matchPattern(se.Err); msg.Code != "" {
			return msg
		}
		if msg, ok := sinkMessages[se.Op]; ok {
			return msg
		}
		return sinkMessages["import"]
	}

	if msg := matchPattern(err); msg.Code != "" {
		return msg
	}
	return defaultMessage
}

func matchPattern(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return UserMessage{}
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown for it.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err and keeps it for logging. Returns nil for nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
