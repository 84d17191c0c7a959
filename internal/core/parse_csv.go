package core

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// delimiterCandidates are counted on the first line. Earlier entries win ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// DetectDelimiter picks the candidate that occurs most often in line.
// Ties favor comma.
func DetectDelimiter(line string) rune {
	best, bestCount := delimiterCandidates[0], strings.Count(line, ",")
	for _, c := range delimiterCandidates[1:] {
		if n := strings.Count(line, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSuffix(text, "\r")
}

// resolveDelimiter turns the delimiter option into a rune, detecting it from
// the first line when the option is empty.
func resolveDelimiter(option, text string) (rune, error) {
	switch option {
	case "":
		return DetectDelimiter(firstLine(text)), nil
	case `\t`, "tab", "TAB":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(option)
	if size != len(option) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, parseErr(FormatCSV, "PARSE007", "delimiter must be a single character, got "+option, nil)
	}
	return r, nil
}

// parseCSV reads delimited text. Quoted fields may contain the delimiter,
// line breaks and doubled quotes. Empty physical lines are not records, so
// skipFirstRows counts records, not lines.
func parseCSV(content []byte, opts ImportOptions) (*ParsedData, error) {
	text, err := decodeText(FormatCSV, content, opts.Encoding)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, parseErr(FormatCSV, "PARSE001", "file is empty", nil)
	}

	delim, err := resolveDelimiter(opts.Delimiter, text)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records []record
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			pe := parseErr(FormatCSV, "PARSE005", "malformed delimited text", err)
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				pe.Line = csvErr.Line
			}
			return nil, pe
		}
		line, _ := r.FieldPos(0)
		records = append(records, record{fields: fields, line: line})
	}

	return buildTabular(FormatCSV, records, opts)
}
