package sink

// pgvalue.go converts validated row values to pgtype values.
//
// Values arrive already coerced by the validation engine, so these functions
// only map Go representations onto column types:
//   - number: float64 to pgtype.Numeric
//   - date: YYYY-MM-DD to pgtype.Date, timestamps to pgtype.Timestamp(tz)
//   - boolean: bool to pgtype.Bool
//   - object: maps and slices are passed through for json/jsonb columns
//
// All ToPg* functions return pgtype values with Valid=false for empty input,
// allowing the database to store NULL.

import (
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToPgText converts a value to pgtype.Text.
// Returns invalid if the value is nil or only whitespace.
func ToPgText(v any) pgtype.Text {
	s := strings.TrimSpace(core.ToText(v))
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgNumeric converts a value to pgtype.Numeric.
func ToPgNumeric(v any) pgtype.Numeric {
	var s string
	switch t := v.(type) {
	case nil:
		return pgtype.Numeric{Valid: false}
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		f, err := core.ToNumber(v)
		if err != nil {
			return pgtype.Numeric{Valid: false}
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgBool converts a value to pgtype.Bool.
func ToPgBool(v any) pgtype.Bool {
	if v == nil {
		return pgtype.Bool{Valid: false}
	}
	b, err := core.ToBool(v)
	if err != nil {
		return pgtype.Bool{Valid: false}
	}
	return pgtype.Bool{Bool: b, Valid: true}
}

// ToPgDate converts a normalized date string to pgtype.Date.
func ToPgDate(v any) pgtype.Date {
	s, ok := v.(string)
	if !ok || s == "" {
		return pgtype.Date{Valid: false}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// ToPgTimestamptz converts a normalized timestamp string to
// pgtype.Timestamptz. Timestamps without a zone are read as UTC.
func ToPgTimestamptz(v any) pgtype.Timestamptz {
	s, ok := v.(string)
	if !ok || s == "" {
		return pgtype.Timestamptz{Valid: false}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Timestamptz{Time: t, Valid: true}
		}
	}
	return pgtype.Timestamptz{Valid: false}
}

// pgValue returns the query argument for v in a column of type t.
func pgValue(t core.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case core.TypeNumber:
		return ToPgNumeric(v)
	case core.TypeBoolean:
		return ToPgBool(v)
	case core.TypeDate:
		if s, ok := v.(string); ok && len(s) > len("2006-01-02") {
			return ToPgTimestamptz(v)
		}
		return ToPgDate(v)
	case core.TypeObject:
		return v
	default:
		return ToPgText(v)
	}
}
