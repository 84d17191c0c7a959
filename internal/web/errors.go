package web

// errors.go provides unified error responses for the API.
//
// Every error is logged with its technical detail and request id, then
// returned as {error, message, action, code} using core.MapError. The HTTP
// status comes from the error kind unless the caller fixes one.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/logging"
	"github.com/JonMunkholm/dataimport/internal/store"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message. A zero status
// is derived from err with statusFor.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)
	if msg.Code == "ERR000" && errors.Is(err, store.ErrNotFound) {
		msg = historyNotFound
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	writeJSONStatus(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		pe *core.ParseError
		pv *core.PolicyViolation
		ue *core.UserError
	)
	switch {
	case errors.As(err, &ue) && ue.User.Code == codeBadRequest:
		return http.StatusBadRequest
	case errors.As(err, &pe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pv), errors.Is(err, core.ErrNoPermission):
		return http.StatusForbidden
	case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrUnknownTable), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrJobNotRetryable), errors.Is(err, core.ErrJobTerminal),
		errors.Is(err, core.ErrNotAwaitingApproval), errors.Is(err, core.ErrRetryLimit):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

const codeBadRequest = "REQ003"

var historyNotFound = core.UserMessage{
	Message: "No import history found",
	Action:  "Check the job id or widen the filters",
	Code:    "HIST002",
}

// errNoHistory answers history routes when no store is configured.
var errNoHistory = &core.UserError{
	Technical: store.ErrNotFound,
	User:      core.UserMessage{Message: "Import history is not enabled", Action: "Configure STORE_PATH on the server", Code: "HIST001"},
}

// badRequest wraps a malformed-request error with an operator message.
func badRequest(err error, message, action string) error {
	return &core.UserError{
		Technical: err,
		User:      core.UserMessage{Message: message, Action: action, Code: codeBadRequest},
	}
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are only logged since
// headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
