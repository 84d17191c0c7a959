package core

import (
	"fmt"
	"slices"
	"time"
)

// Format identifies one of the supported input file formats.
type Format string

const (
	FormatCSV         Format = "csv"
	FormatJSON        Format = "json"
	FormatSpreadsheet Format = "spreadsheet"
	FormatMarkup      Format = "markup"
)

// Formats lists every supported format in detection order.
var Formats = []Format{FormatCSV, FormatJSON, FormatSpreadsheet, FormatMarkup}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return slices.Contains(Formats, f)
}

// ColumnType is the semantic type declared for a target column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
	TypeEmail   ColumnType = "email"
	TypeURL     ColumnType = "url"
	TypeObject  ColumnType = "object"
)

// Textual reports whether values of t are taken from the source text as
// written rather than from the parse-time typed value.
func (t ColumnType) Textual() bool {
	switch t {
	case TypeString, TypeEmail, TypeURL, "":
		return true
	}
	return false
}

// RuleType names a validation rule.
type RuleType string

const (
	RuleRequired RuleType = "required"
	RuleMin      RuleType = "min"
	RuleMax      RuleType = "max"
	RulePattern  RuleType = "pattern"
	RuleEmail    RuleType = "email"
	RuleURL      RuleType = "url"
	RuleCustom   RuleType = "custom"
)

// ValidationRule is one entry in a column's rule list.
//
// Value carries the bound for min/max and the expression for pattern.
// Custom rules are resolved by Name against the validator's registered hooks
// and receive Params unchanged.
type ValidationRule struct {
	Type    RuleType       `json:"type" yaml:"type"`
	Value   any            `json:"value,omitempty" yaml:"value,omitempty"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Params  map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Message string         `json:"message,omitempty" yaml:"message,omitempty"`
}

// TargetColumn is a destination schema field.
type TargetColumn struct {
	Key          string           `json:"key" yaml:"key"`
	Label        string           `json:"label,omitempty" yaml:"label,omitempty"`
	Type         ColumnType       `json:"type" yaml:"type"`
	Required     bool             `json:"required,omitempty" yaml:"required,omitempty"`
	Unique       bool             `json:"unique,omitempty" yaml:"unique,omitempty"`
	Rules        []ValidationRule `json:"rules,omitempty" yaml:"rules,omitempty"`
	Transform    string           `json:"transform,omitempty" yaml:"transform,omitempty"`
	DefaultValue any              `json:"defaultValue,omitempty" yaml:"default,omitempty"`
}

// TableSchema groups the target columns of one importable table.
type TableSchema struct {
	Key         string         `json:"key" yaml:"key"`
	Label       string         `json:"label" yaml:"label"`
	Group       string         `json:"group,omitempty" yaml:"group,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []TargetColumn `json:"columns" yaml:"columns"`
}

// Column returns the column with the given key.
func (s TableSchema) Column(key string) (TargetColumn, bool) {
	for _, c := range s.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return TargetColumn{}, false
}

// UniqueKeys returns the keys of columns flagged unique, in schema order.
func (s TableSchema) UniqueKeys() []string {
	var keys []string
	for _, c := range s.Columns {
		if c.Unique {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// FieldMapping maps one source header to a target column key. A mapping whose
// TargetColumn equals its SourceColumn and names no schema column is unmapped.
type FieldMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetColumn string `json:"targetColumn"`
	Transform    string `json:"transform,omitempty"`
	SkipEmpty    bool   `json:"skipEmpty"`
}

// Row is one parsed record keyed by source header.
type Row map[string]any

// MappedRow is one validated record keyed by target column key.
type MappedRow map[string]any

// RowError is a non-fatal problem tied to one record.
//
// Row is the 1-based position of the record in the parsed row set.
// Line is the record's location in the source file, counting header and
// skipped rows, so the operator can find it in the original.
type RowError struct {
	Row     int    `json:"row"`
	Line    int    `json:"line,omitempty"`
	Column  string `json:"column,omitempty"`
	Field   string `json:"field,omitempty"`
	Value   any    `json:"value,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	name := e.Field
	if name == "" {
		name = e.Column
	}
	if name != "" {
		return fmt.Sprintf("row %d: %s: %s", e.Row, name, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Warning is an informational notice. Row is zero for file-level warnings.
type Warning struct {
	Row     int    `json:"row,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ParsedData is the uniform output of every format parser. Text holds the
// trimmed source token of each scalar cell, keyed like Rows, so textual
// columns keep values such as "01234" or "yes" as written.
type ParsedData struct {
	Format    Format              `json:"format"`
	Headers   []string            `json:"headers"`
	Rows      []Row               `json:"rows"`
	Text      []map[string]string `json:"-"`
	Lines     []int               `json:"lines,omitempty"`
	TotalRows int                 `json:"totalRows"`
	Errors    []RowError          `json:"errors"`
	Warnings  []Warning           `json:"warnings"`
}

// LineOf returns the source line of the record at 1-based position row.
func (p *ParsedData) LineOf(row int) int {
	if p == nil || row < 1 || row > len(p.Lines) {
		return 0
	}
	return p.Lines[row-1]
}

// DuplicateAction says what happens to later rows of a duplicate group.
type DuplicateAction string

const (
	DuplicateSkip   DuplicateAction = "skip"
	DuplicateUpdate DuplicateAction = "update"
	DuplicateError  DuplicateAction = "error"
)

// DuplicateGroup lists the rows sharing one value in a unique column.
type DuplicateGroup struct {
	Column string          `json:"column"`
	Value  any             `json:"value"`
	Rows   []int           `json:"rows"`
	Action DuplicateAction `json:"action"`
}

// ValidationResult is the outcome of validating a row set. Rows holds the
// coerced values of every input record in input order, errors included.
type ValidationResult struct {
	IsValid    bool             `json:"isValid"`
	TotalRows  int              `json:"totalRows"`
	ValidRows  int              `json:"validRows"`
	ErrorRows  int              `json:"errorRows"`
	Errors     []RowError       `json:"errors"`
	Warnings   []Warning        `json:"warnings"`
	Duplicates []DuplicateGroup `json:"duplicates"`
	Rows       []MappedRow      `json:"rows,omitempty"`
}

// ImportOptions controls parsing and execution of one import.
type ImportOptions struct {
	Format        Format          `json:"format,omitempty"`
	HasHeaders    *bool           `json:"hasHeaders,omitempty"`
	Delimiter     string          `json:"delimiter,omitempty"`
	Encoding      string          `json:"encoding,omitempty"`
	DateFormat    string          `json:"dateFormat,omitempty"`
	SkipEmptyRows *bool           `json:"skipEmptyRows,omitempty"`
	SkipFirstRows int             `json:"skipFirstRows,omitempty"`
	MaxRows       int             `json:"maxRows,omitempty"`
	OnDuplicate   DuplicateAction `json:"onDuplicate,omitempty"`
	ValidateOnly  bool            `json:"validateOnly,omitempty"`
	BatchSize     int             `json:"batchSize,omitempty"`
}

// DefaultBatchSize is the sink chunk size used when none is given.
const DefaultBatchSize = 1000

// Headers reports whether the first row holds column names. Defaults to true.
func (o ImportOptions) Headers() bool {
	return o.HasHeaders == nil || *o.HasHeaders
}

// SkipEmpty reports whether blank records are dropped. Defaults to true.
func (o ImportOptions) SkipEmpty() bool {
	return o.SkipEmptyRows == nil || *o.SkipEmptyRows
}

// WithDefaults fills unset execution options.
func (o ImportOptions) WithDefaults() ImportOptions {
	if o.OnDuplicate == "" {
		o.OnDuplicate = DuplicateSkip
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Bool returns a pointer to b, for optional option fields.
func Bool(b bool) *bool {
	return &b
}

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusParsing    JobStatus = "parsing"
	StatusValidating JobStatus = "validating"
	StatusImporting  JobStatus = "importing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// phaseRank orders the forward phases. Terminal failure states are ranked
// above everything so any live phase may reach them.
func (s JobStatus) phaseRank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusParsing:
		return 1
	case StatusValidating:
		return 2
	case StatusImporting:
		return 3
	default:
		return 4
	}
}

// CanTransition reports whether a job in status s may move to next.
// Staying in the same live status is allowed for progress updates.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.phaseRank() >= s.phaseRank()
}

// FileInfo describes the uploaded file of a job.
type FileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

// ImportJob is the externally visible state of one import.
type ImportJob struct {
	ID                    string           `json:"id"`
	Status                JobStatus        `json:"status"`
	Progress              int              `json:"progress"`
	TotalRows             int              `json:"totalRows"`
	ProcessedRows         int              `json:"processedRows"`
	ValidRows             int              `json:"validRows"`
	ErrorRows             int              `json:"errorRows"`
	SkippedRows           int              `json:"skippedRows"`
	Errors                []RowError       `json:"errors"`
	Warnings              []Warning        `json:"warnings"`
	Duplicates            []DuplicateGroup `json:"duplicates,omitempty"`
	File                  FileInfo         `json:"file"`
	Table                 string           `json:"table,omitempty"`
	Format                Format           `json:"format,omitempty"`
	Actor                 string           `json:"actor,omitempty"`
	ErrorMessage          string           `json:"errorMessage,omitempty"`
	ErrorCode             string           `json:"errorCode,omitempty"`
	SinkJobID             string           `json:"sinkJobId,omitempty"`
	RetryCount            int              `json:"retryCount"`
	RetryOf               string           `json:"retryOf,omitempty"`
	AwaitingApproval      bool             `json:"awaitingApproval,omitempty"`
	ApprovedBy            string           `json:"approvedBy,omitempty"`
	ApprovedAt            *time.Time       `json:"approvedAt,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	StartedAt             *time.Time       `json:"startedAt,omitempty"`
	CompletedAt           *time.Time       `json:"completedAt,omitempty"`
	ProcessingTimeSeconds float64          `json:"processingTimeSeconds,omitempty"`
}

// clone returns a copy that shares no slices with j.
func (j ImportJob) clone() ImportJob {
	j.Errors = slices.Clone(j.Errors)
	j.Warnings = slices.Clone(j.Warnings)
	j.Duplicates = slices.Clone(j.Duplicates)
	return j
}

// Permission limits what one actor may do.
// Zero limits and empty allow-lists mean unrestricted.
type Permission struct {
	CanImport         bool     `json:"canImport"`
	CanValidate       bool     `json:"canValidate"`
	CanPreview        bool     `json:"canPreview"`
	CanApprove        bool     `json:"canApprove"`
	MaxFileSize       int64    `json:"maxFileSize"`
	MaxRows           int      `json:"maxRows"`
	AllowedFormats    []Format `json:"allowedFormats"`
	AllowedTables     []string `json:"allowedTables"`
	RequireApproval   bool     `json:"requireApproval"`
	MaxImportsPerHour int      `json:"maxImportsPerHour,omitempty"`
	MaxImportsPerDay  int      `json:"maxImportsPerDay,omitempty"`
}
