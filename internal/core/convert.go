package core

// convert.go coerces mapped values to the type declared by their target column.
//
// It accepts the messy values real exports contain:
//   - Many date layouts (ISO, US, dotted, named months, two-digit years)
//   - Currency symbols, thousands separators and accounting negatives
//   - yes/no, y/n, t/f and 1/0 booleans
//   - Excel formula wrappers (="value")
//
// Every failure is returned as an error whose text starts with "invalid <type>"
// so the validation engine can turn it into a row error.

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// numericRegex validates a number after currency and separator cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// fieldValidator checks email and url values.
var fieldValidator = validator.New()

// TwoDigitYearPivot sets how far into the future a two-digit year may land
// before it is read as the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
		"20060102",
	}
	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
)

// CoerceToType converts v to the Go representation of t:
// string, float64, normalized date string, bool, validated string for
// email and url, and map or slice for object. Nil stays nil.
func CoerceToType(v any, t ColumnType, dateFormat string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeString, "":
		return ToText(v), nil
	case TypeNumber:
		return ToNumber(v)
	case TypeDate:
		return ToDate(v, dateFormat)
	case TypeBoolean:
		return ToBool(v)
	case TypeEmail:
		s := strings.TrimSpace(ToText(v))
		if err := fieldValidator.Var(s, "email"); err != nil {
			return nil, fmt.Errorf("invalid email address %q", s)
		}
		return s, nil
	case TypeURL:
		s := strings.TrimSpace(ToText(v))
		if err := fieldValidator.Var(s, "url"); err != nil {
			return nil, fmt.Errorf("invalid url %q", s)
		}
		return s, nil
	case TypeObject:
		return ToObject(v)
	default:
		return v, nil
	}
}

// ToText renders any parsed value as text. Whole floats print without a
// fractional part.
func ToText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return formatDateTime(t, false)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// ToNumber converts v to float64.
func ToNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		s := CleanCell(t)
		neg := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			neg = true
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
		if neg {
			s = "-" + s
		}
		if !numericRegex.MatchString(s) {
			return 0, fmt.Errorf("invalid number %q", t)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return 0, fmt.Errorf("invalid number %q", t)
		}
		return f, nil
	}
	return 0, fmt.Errorf("invalid number %v", v)
}

// ToDate converts v to a normalized date string. An explicit layout is
// tried before the built-in ones.
func ToDate(v any, dateFormat string) (string, error) {
	if t, ok := v.(time.Time); ok {
		return formatDateTime(t, false), nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid date %v", v)
	}
	s = CleanCell(s)

	if dateFormat != "" {
		if t, err := time.Parse(GoDateLayout(dateFormat), s); err == nil {
			return formatDateTime(t, false), nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return formatDateTime(t, layout == time.RFC3339Nano), nil
		}
	}
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", s)
}

// ToBool converts v to bool.
func ToBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		switch t {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		switch strings.ToLower(CleanCell(t)) {
		case "true", "t", "yes", "y", "1", "on":
			return true, nil
		case "false", "f", "no", "n", "0", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("invalid boolean %v", v)
}

// ToObject accepts structured values and parses JSON text.
func ToObject(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any, []any:
		return t, nil
	case string:
		var out any
		if err := json.Unmarshal([]byte(strings.TrimSpace(t)), &out); err != nil {
			return nil, fmt.Errorf("invalid object: %v", err)
		}
		switch out.(type) {
		case map[string]any, []any:
			return out, nil
		}
	}
	return nil, fmt.Errorf("invalid object %v", v)
}

// dateTokens translate strftime and YYYY-style patterns to Go layouts.
var dateTokens = strings.NewReplacer(
	"%Y", "2006", "%y", "06", "%m", "01", "%d", "02", "%H", "15", "%M", "04", "%S", "05", "%b", "Jan", "%B", "January",
	"YYYY", "2006", "YY", "06", "MM", "01", "DD", "02", "HH", "15", "mm", "04", "ss", "05",
)

// GoDateLayout converts a dateFormat option to a Go time layout. Values that
// already contain the reference year are returned unchanged.
func GoDateLayout(format string) string {
	if strings.Contains(format, "2006") {
		return format
	}
	return dateTokens.Replace(format)
}

// CleanCell removes common export artifacts: surrounding whitespace, Excel
// formula wrappers and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	return strings.TrimSpace(strings.Trim(s, `"'`))
}
