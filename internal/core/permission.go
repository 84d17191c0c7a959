package core

import (
	"fmt"
	"slices"
	"strings"
)

var formatAliases = map[string]Format{
	"csv":         FormatCSV,
	"tsv":         FormatCSV,
	"txt":         FormatCSV,
	"json":        FormatJSON,
	"spreadsheet": FormatSpreadsheet,
	"excel":       FormatSpreadsheet,
	"xlsx":        FormatSpreadsheet,
	"xls":         FormatSpreadsheet,
	"markup":      FormatMarkup,
	"xml":         FormatMarkup,
}

// ParseFormat resolves a format name or common alias such as "excel" or "xml".
func ParseFormat(s string) (Format, bool) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	return f, ok
}

// AllowsFormat reports whether f is in the allow-list. An empty list allows all.
func (p Permission) AllowsFormat(f Format) bool {
	return len(p.AllowedFormats) == 0 || slices.Contains(p.AllowedFormats, f)
}

// AllowsTable reports whether table is in the allow-list. An empty list allows all.
func (p Permission) AllowsTable(table string) bool {
	return len(p.AllowedTables) == 0 || slices.Contains(p.AllowedTables, table)
}

func violation(phase Phase, code, format string, args ...any) *PolicyViolation {
	return &PolicyViolation{Phase: phase, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CheckFile verifies format and size limits for a phase that reads the file.
func (p Permission) CheckFile(phase Phase, format Format, size int64) error {
	if !p.AllowsFormat(format) {
		return violation(phase, "POL002", "format %s is not allowed", format)
	}
	if p.MaxFileSize > 0 && size > p.MaxFileSize {
		return violation(phase, "POL003", "file size %d exceeds limit of %d bytes", size, p.MaxFileSize)
	}
	return nil
}

// CheckRows verifies the row limit.
func (p Permission) CheckRows(phase Phase, rows int) error {
	if p.MaxRows > 0 && rows > p.MaxRows {
		return violation(phase, "POL004", "%d rows exceed limit of %d", rows, p.MaxRows)
	}
	return nil
}

// CheckPreview gates standalone parsing for preview.
func (p Permission) CheckPreview(format Format, size int64) error {
	if !p.CanPreview {
		return violation(PhasePreview, "POL007", "preview is not permitted")
	}
	return p.CheckFile(PhasePreview, format, size)
}

// CheckValidate gates standalone validation.
func (p Permission) CheckValidate(rows int) error {
	if !p.CanValidate {
		return violation(PhaseValidate, "POL008", "validation is not permitted")
	}
	return p.CheckRows(PhaseValidate, rows)
}

// CheckImport gates execution into table.
func (p Permission) CheckImport(table string, rows int) error {
	if !p.CanImport {
		return violation(PhaseImport, "POL001", "import is not permitted")
	}
	if !p.AllowsTable(table) {
		return violation(PhaseImport, "POL005", "table %s is not allowed", table)
	}
	return p.CheckRows(PhaseImport, rows)
}

// CheckApprove gates the release of a job held for approval. Nobody may
// approve their own submission.
func (p Permission) CheckApprove(submitter, approver string) error {
	if !p.CanApprove {
		return violation(PhaseImport, "POL009", "approval is not permitted")
	}
	if approver == "" || approver == submitter {
		return violation(PhaseImport, "POL010", "imports must be approved by someone other than the submitter")
	}
	return nil
}
