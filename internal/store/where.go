package store

import (
	"strings"
	"time"
)

// whereBuilder collects optional equality and range conditions.
// Empty values are skipped so callers can pass filter fields unchecked.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(column, value string) {
	if value == "" {
		return
	}
	w.conds = append(w.conds, column+" = ?")
	w.args = append(w.args, value)
}

func (w *whereBuilder) addTimeRange(column string, since, until time.Time) {
	if !since.IsZero() {
		w.conds = append(w.conds, column+" >= ?")
		w.args = append(w.args, toMillis(since))
	}
	if !until.IsZero() {
		w.conds = append(w.conds, column+" < ?")
		w.args = append(w.args, toMillis(until))
	}
}

// build returns the WHERE clause, with a leading space, and its arguments.
func (w *whereBuilder) build() (string, []any) {
	if len(w.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(w.conds, " AND "), w.args
}
