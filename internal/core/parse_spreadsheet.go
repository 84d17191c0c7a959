package core

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// parseSpreadsheet reads the first sheet of a workbook. Cells arrive as their
// formatted display text and are typed like any other token.
func parseSpreadsheet(content []byte, opts ImportOptions) (*ParsedData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, parseErr(FormatSpreadsheet, "PARSE005", "unreadable workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, parseErr(FormatSpreadsheet, "PARSE002", "workbook has no sheets", nil)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, parseErr(FormatSpreadsheet, "PARSE005", "read sheet "+sheet, err)
	}

	records := make([]record, len(rows))
	for i, cells := range rows {
		records[i] = record{fields: cells, line: i + 1}
	}

	pd, err := buildTabular(FormatSpreadsheet, records, opts)
	if err != nil {
		return nil, err
	}
	if len(sheets) > 1 {
		pd.Warnings = append([]Warning{{
			Code:    "multiple_sheets",
			Message: fmt.Sprintf("workbook has %d sheets; only the first sheet %q was read", len(sheets), sheet),
		}}, pd.Warnings...)
	}
	return pd, nil
}
