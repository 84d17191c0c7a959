package core

// parse.go dispatches an upload to its format parser and holds the row
// assembly shared by all of them.
//
// Tabular formats (csv, spreadsheet) hand over positional records; keyed
// formats (json, markup) hand over named fields. Both paths apply the same
// option handling:
//
//  1. skipFirstRows drops leading source records before anything else
//  2. skipEmptyRows drops records whose fields are all blank
//  3. maxRows stops accumulation and adds a single truncation warning
//  4. every scalar passes through Coerce
//  5. zero remaining rows is a ParseError

import (
	"fmt"
	"strings"
)

// FileInput is an uploaded file held in memory.
type FileInput struct {
	Name        string
	ContentType string
	Content     []byte
}

// Info returns the file metadata recorded on a job.
func (f FileInput) Info() FileInfo {
	return FileInfo{Name: f.Name, Size: int64(len(f.Content)), ContentType: f.ContentType}
}

// ResolveFormat returns the explicit format option or the detected one.
func ResolveFormat(file FileInput, opts ImportOptions) Format {
	if opts.Format != "" {
		return opts.Format
	}
	return DetectFormat(file.Name, file.ContentType)
}

// ParseFile parses file into the uniform row model.
func ParseFile(file FileInput, opts ImportOptions) (*ParsedData, error) {
	format := ResolveFormat(file, opts)
	if len(file.Content) == 0 {
		return nil, parseErr(format, "PARSE001", "file is empty", nil)
	}
	if opts.SkipFirstRows < 0 || opts.MaxRows < 0 {
		return nil, parseErr(format, "PARSE005", "skipFirstRows and maxRows must not be negative", nil)
	}

	var (
		pd  *ParsedData
		err error
	)
	switch format {
	case FormatCSV:
		pd, err = parseCSV(file.Content, opts)
	case FormatJSON:
		pd, err = parseJSON(file.Content, opts)
	case FormatSpreadsheet:
		pd, err = parseSpreadsheet(file.Content, opts)
	case FormatMarkup:
		pd, err = parseMarkup(file.Content, opts)
	default:
		return nil, parseErr(format, "PARSE008", fmt.Sprintf("unsupported format %q", format), nil)
	}
	if err != nil {
		return nil, err
	}

	pd.Format = format
	pd.TotalRows = len(pd.Rows)
	if pd.Errors == nil {
		pd.Errors = []RowError{}
	}
	if pd.Warnings == nil {
		pd.Warnings = []Warning{}
	}
	return pd, nil
}

// record is one positional source record with its 1-based source line.
type record struct {
	fields []string
	line   int
}

func (r record) blank() bool {
	for _, f := range r.fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// placeholderHeader names an unlabeled column by its 1-based position.
func placeholderHeader(i int) string {
	return fmt.Sprintf("column_%d", i+1)
}

// truncationWarning is emitted once when maxRows stops accumulation.
func truncationWarning(limit int) Warning {
	return Warning{
		Code:    "row_limit",
		Message: fmt.Sprintf("row limit of %d reached; remaining rows were not read", limit),
	}
}

// checkUniqueHeaders rejects repeated header names.
func checkUniqueHeaders(format Format, headers []string) error {
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		if prev, ok := seen[h]; ok {
			return parseErr(format, "PARSE003",
				fmt.Sprintf("duplicate header %q in columns %d and %d", h, prev+1, i+1), nil)
		}
		seen[h] = i
	}
	return nil
}

// buildTabular turns positional records into ParsedData.
func buildTabular(format Format, records []record, opts ImportOptions) (*ParsedData, error) {
	if opts.SkipFirstRows >= len(records) {
		return nil, parseErr(format, "PARSE002", "no data rows found", nil)
	}
	records = records[opts.SkipFirstRows:]

	skipEmpty := opts.SkipEmpty()
	var headers []string
	if opts.Headers() {
		for len(records) > 0 && records[0].blank() {
			records = records[1:]
		}
		if len(records) == 0 {
			return nil, parseErr(format, "PARSE002", "no header row found", nil)
		}
		headerRec := records[0]
		records = records[1:]
		headers = make([]string, len(headerRec.fields))
		for i, h := range headerRec.fields {
			h = strings.TrimSpace(h)
			if h == "" {
				h = placeholderHeader(i)
			}
			headers[i] = h
		}
	} else {
		width := 0
		for _, rec := range records {
			width = max(width, len(rec.fields))
		}
		headers = make([]string, width)
		for i := range headers {
			headers[i] = placeholderHeader(i)
		}
	}
	if err := checkUniqueHeaders(format, headers); err != nil {
		return nil, err
	}

	pd := &ParsedData{Headers: headers}
	for _, rec := range records {
		if skipEmpty && rec.blank() {
			continue
		}
		if opts.MaxRows > 0 && len(pd.Rows) == opts.MaxRows {
			pd.Warnings = append(pd.Warnings, truncationWarning(opts.MaxRows))
			break
		}

		rowNum := len(pd.Rows) + 1
		row := make(Row, len(headers))
		text := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec.fields) {
				row[h] = Coerce(rec.fields[i])
				if s := strings.TrimSpace(rec.fields[i]); s != "" {
					text[h] = s
				}
			} else {
				row[h] = nil
			}
		}
		if extra := rec.fields[min(len(headers), len(rec.fields)):]; !(record{fields: extra}).blank() {
			pd.Warnings = append(pd.Warnings, Warning{
				Row:     rowNum,
				Line:    rec.line,
				Code:    "extra_fields",
				Message: fmt.Sprintf("record has %d fields but only %d headers; extra fields ignored", len(rec.fields), len(headers)),
			})
		}

		pd.Rows = append(pd.Rows, row)
		pd.Text = append(pd.Text, text)
		pd.Lines = append(pd.Lines, rec.line)
	}

	if len(pd.Rows) == 0 {
		return nil, parseErr(format, "PARSE002", "no data rows found", nil)
	}
	return pd, nil
}

// keyedRecord is one named-field source record. text holds the source
// token of fields that were read from a single string.
type keyedRecord struct {
	keys   []string
	values map[string]any
	text   map[string]string
	line   int
}

func (r keyedRecord) blank() bool {
	for _, v := range r.values {
		if !isBlank(v) {
			return false
		}
	}
	return true
}

// selectKeyed applies skip, blank and limit options to keyed records.
func selectKeyed(records []keyedRecord, opts ImportOptions) ([]keyedRecord, []Warning) {
	if opts.SkipFirstRows >= len(records) {
		return nil, nil
	}
	records = records[opts.SkipFirstRows:]

	var (
		kept     []keyedRecord
		warnings []Warning
	)
	for _, rec := range records {
		if opts.SkipEmpty() && rec.blank() {
			continue
		}
		if opts.MaxRows > 0 && len(kept) == opts.MaxRows {
			warnings = append(warnings, truncationWarning(opts.MaxRows))
			break
		}
		kept = append(kept, rec)
	}
	return kept, warnings
}

// keyedRows projects records onto headers. Missing keys become nil.
func keyedRows(pd *ParsedData, records []keyedRecord) {
	pd.Rows = make([]Row, 0, len(records))
	pd.Text = make([]map[string]string, 0, len(records))
	pd.Lines = make([]int, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(pd.Headers))
		text := make(map[string]string)
		for _, h := range pd.Headers {
			row[h] = rec.values[h]
			if s, ok := rec.text[h]; ok {
				text[h] = s
			}
		}
		pd.Rows = append(pd.Rows, row)
		pd.Text = append(pd.Text, text)
		pd.Lines = append(pd.Lines, rec.line)
	}
}

// isBlank reports whether v carries no data.
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
