package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numberPattern  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	usDatePattern  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
)

// isoDateTimeLayouts are tried, in order, when an ISO date carries a time part.
var isoDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"
)

// Coerce converts a raw token to its default type. The first matching rule wins:
// blank is nil, integer or decimal is float64, true/yes/1 and false/no/0 are
// bool, a valid ISO or MM/DD/YYYY date is a normalized date string, and
// anything else is the trimmed string.
func Coerce(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if numberPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}

	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	}

	if d, ok := coerceDate(s); ok {
		return d
	}

	return s
}

// coerceDate recognizes the two date shapes the default typing accepts.
func coerceDate(s string) (string, bool) {
	if isoDatePattern.MatchString(s) {
		if len(s) == len(dateLayout) {
			t, err := time.Parse(dateLayout, s)
			if err != nil {
				return "", false
			}
			return t.Format(dateLayout), true
		}
		for _, layout := range isoDateTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return formatDateTime(t, layout == time.RFC3339Nano), true
			}
		}
		return "", false
	}

	if usDatePattern.MatchString(s) {
		t, err := time.Parse("1/2/2006", s)
		if err != nil {
			return "", false
		}
		return t.Format(dateLayout), true
	}

	return "", false
}

// formatDateTime renders a parsed timestamp. Midnight values without an
// explicit zone collapse to the plain date.
func formatDateTime(t time.Time, zoned bool) string {
	if zoned {
		return t.Format(time.RFC3339)
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(dateTimeLayout)
}
