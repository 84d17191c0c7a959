package core

import "time"

// Sample limits
const (
	maxPreviewRows  = 10
	maxErrorSamples = 20
)

// Preview is a read-only look at an upload before it is submitted: a sample
// of parsed rows, the mappings AutoMap suggests against the chosen table, and
// what validation would report.
type Preview struct {
	Format           Format         `json:"format"`
	Headers          []string       `json:"headers"`
	TotalRows        int            `json:"totalRows"`
	SampleRows       []Row          `json:"sampleRows"`
	Mappings         []FieldMapping `json:"suggestedMappings"`
	MappingWarnings  []Warning      `json:"mappingWarnings"`
	Warnings         []Warning      `json:"warnings"`
	ValidRows        int            `json:"validRows"`
	ErrorRows        int            `json:"errorRows"`
	ErrorSamples     []RowError     `json:"errorSamples"`
	Duplicates       int            `json:"duplicates"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
}

// Preview parses file under the preview permission and dry-runs validation
// against schema using the suggested mappings.
func (c *Controller) Preview(perm Permission, file FileInput, schema TableSchema, opts ImportOptions) (*Preview, error) {
	start := time.Now()

	pd, err := c.ParseFile(perm, file, opts)
	if err != nil {
		return nil, err
	}

	mappings := AutoMap(pd.Headers, schema.Columns)
	res := c.validator.WithDateFormat(opts.DateFormat).ValidateParsed(pd, mappings, schema.Columns)

	p := &Preview{
		Format:          pd.Format,
		Headers:         pd.Headers,
		TotalRows:       pd.TotalRows,
		SampleRows:      pd.Rows[:min(len(pd.Rows), maxPreviewRows)],
		Mappings:        mappings,
		MappingWarnings: CheckMappings(pd.Headers, mappings, schema.Columns),
		Warnings:        pd.Warnings,
		ValidRows:       res.ValidRows,
		ErrorRows:       res.ErrorRows,
		ErrorSamples:    res.Errors[:min(len(res.Errors), maxErrorSamples)],
		Duplicates:      len(res.Duplicates),
	}
	if p.MappingWarnings == nil {
		p.MappingWarnings = []Warning{}
	}
	p.ProcessingTimeMs = time.Since(start).Milliseconds()
	return p, nil
}
