package core

import (
	"path/filepath"
	"strings"
)

var extensionFormats = map[string]Format{
	".csv":  FormatCSV,
	".tsv":  FormatCSV,
	".tab":  FormatCSV,
	".psv":  FormatCSV,
	".txt":  FormatCSV,
	".json": FormatJSON,
	".xlsx": FormatSpreadsheet,
	".xlsm": FormatSpreadsheet,
	".xltx": FormatSpreadsheet,
	".xltm": FormatSpreadsheet,
	".xls":  FormatSpreadsheet,
	".xml":  FormatMarkup,
}

// contentTypeHints are matched in order against the lowercased content type.
// Spreadsheet hints come before "xml" because the OOXML type contains it.
var contentTypeHints = []struct {
	substr string
	format Format
}{
	{"json", FormatJSON},
	{"spreadsheet", FormatSpreadsheet},
	{"excel", FormatSpreadsheet},
	{"xml", FormatMarkup},
	{"csv", FormatCSV},
	{"tab-separated", FormatCSV},
	{"text/plain", FormatCSV},
}

// DetectFormat picks a parser from the file name extension, then the declared
// content type, and falls back to csv. It never fails.
func DetectFormat(filename, contentType string) Format {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if f, ok := extensionFormats[ext]; ok {
			return f
		}
	}

	ct := strings.ToLower(contentType)
	for _, hint := range contentTypeHints {
		if strings.Contains(ct, hint.substr) {
			return hint.format
		}
	}

	return FormatCSV
}
