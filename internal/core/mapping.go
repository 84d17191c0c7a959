package core

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents strips combining marks so "Prénom" and "prenom" compare equal.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeHeader lowercases s, folds accents, collapses every run of
// non-alphanumeric characters to one underscore and trims underscores.
func NormalizeHeader(s string) string {
	if folded, _, err := transform.String(foldAccents, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// AutoMap proposes one mapping per source header. Each header is matched
// against target keys and labels exactly, then case-insensitively, then by
// normalized form. Unmatched headers map to themselves.
func AutoMap(headers []string, schema []TargetColumn) []FieldMapping {
	mappings := make([]FieldMapping, 0, len(headers))
	for _, h := range headers {
		target := matchTarget(h, schema)
		if target == "" {
			target = h
		}
		mappings = append(mappings, FieldMapping{
			SourceColumn: h,
			TargetColumn: target,
			SkipEmpty:    true,
		})
	}
	return mappings
}

func matchTarget(header string, schema []TargetColumn) string {
	for _, c := range schema {
		if header == c.Key || (c.Label != "" && header == c.Label) {
			return c.Key
		}
	}
	for _, c := range schema {
		if strings.EqualFold(header, c.Key) || (c.Label != "" && strings.EqualFold(header, c.Label)) {
			return c.Key
		}
	}
	nh := NormalizeHeader(header)
	if nh == "" {
		return ""
	}
	for _, c := range schema {
		if nh == NormalizeHeader(c.Key) || (c.Label != "" && nh == NormalizeHeader(c.Label)) {
			return c.Key
		}
	}
	return ""
}

// IsUnmapped reports whether m points a header at itself without naming a
// schema column.
func IsUnmapped(m FieldMapping, schema []TargetColumn) bool {
	if m.TargetColumn != m.SourceColumn {
		return false
	}
	for _, c := range schema {
		if c.Key == m.TargetColumn {
			return false
		}
	}
	return true
}

// CheckMappings reports mapping problems as warnings: unmapped headers,
// targets missing from the schema and sources missing from the headers.
// A nil headers slice skips the source check.
func CheckMappings(headers []string, mappings []FieldMapping, schema []TargetColumn) []Warning {
	known := make(map[string]bool, len(schema))
	for _, c := range schema {
		known[c.Key] = true
	}
	var present map[string]bool
	if headers != nil {
		present = make(map[string]bool, len(headers))
		for _, h := range headers {
			present[h] = true
		}
	}

	var warnings []Warning
	for _, m := range mappings {
		if present != nil && !present[m.SourceColumn] {
			warnings = append(warnings, Warning{
				Column:  m.SourceColumn,
				Code:    "unknown_source",
				Message: fmt.Sprintf("source column %q is not in the file", m.SourceColumn),
			})
			continue
		}
		if known[m.TargetColumn] {
			continue
		}
		if m.TargetColumn == m.SourceColumn {
			warnings = append(warnings, Warning{
				Column:  m.SourceColumn,
				Code:    "unmapped",
				Message: fmt.Sprintf("column %q is not mapped to a target field", m.SourceColumn),
			})
			continue
		}
		warnings = append(warnings, Warning{
			Column:  m.SourceColumn,
			Code:    "unknown_target",
			Message: fmt.Sprintf("target field %q does not exist in the schema", m.TargetColumn),
		})
	}
	return warnings
}
