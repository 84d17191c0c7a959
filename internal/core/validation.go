package core

// validation.go applies a target schema to parsed rows.
//
// Per row, each mapping is applied in order: transform, then coercion to the
// target column's type. Afterwards defaults are filled, required columns are
// checked and every column's rule list runs against the coerced value. Values
// of unique columns are indexed across rows and reported as duplicate groups.
//
// Row error codes:
//
//	VAL001 invalid date      VAL005 invalid email    VAL009 max rule
//	VAL002 invalid number    VAL006 invalid url      VAL010 pattern rule
//	VAL003 required field    VAL007 invalid object   VAL011 custom rule
//	VAL004 invalid boolean   VAL008 min rule         VAL012 transform failed
//
// A column whose coercion failed is left out of the mapped row and skips the
// required check and its rules, so one bad value yields one error.

import (
	"fmt"
	"maps"
)

var typeErrorCodes = map[ColumnType]string{
	TypeDate:    "VAL001",
	TypeNumber:  "VAL002",
	TypeBoolean: "VAL004",
	TypeEmail:   "VAL005",
	TypeURL:     "VAL006",
	TypeObject:  "VAL007",
}

var ruleErrorCodes = map[RuleType]string{
	RuleRequired: "VAL003",
	RuleMin:      "VAL008",
	RuleMax:      "VAL009",
	RulePattern:  "VAL010",
	RuleEmail:    "VAL005",
	RuleURL:      "VAL006",
	RuleCustom:   "VAL011",
}

// Validator runs the validation engine with a set of custom rule hooks.
type Validator struct {
	custom     map[string]CustomRule
	dateFormat string
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithCustomRule registers a hook for custom rules named name.
func WithCustomRule(name string, fn CustomRule) ValidatorOption {
	return func(v *Validator) {
		v.custom[name] = fn
	}
}

// WithDateFormat sets the explicit date layout tried first for date columns.
func WithDateFormat(format string) ValidatorOption {
	return func(v *Validator) {
		v.dateFormat = format
	}
}

// NewValidator returns a validator with the built-in custom rules plus opts.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{custom: maps.Clone(builtinRules)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// WithDateFormat returns a copy of v using format for date columns.
func (v *Validator) WithDateFormat(format string) *Validator {
	cp := *v
	cp.dateFormat = format
	return &cp
}

var defaultValidator = NewValidator()

// Validate checks rows with the default validator.
func Validate(rows []Row, mappings []FieldMapping, schema []TargetColumn) ValidationResult {
	return defaultValidator.Validate(rows, mappings, schema)
}

// Validate checks rows against schema through mappings.
func (v *Validator) Validate(rows []Row, mappings []FieldMapping, schema []TargetColumn) ValidationResult {
	return v.run(rows, nil, nil, nil, mappings, schema)
}

// ValidateParsed is Validate with source lines attached to every error.
// Textual columns read the cell as written in the file.
func (v *Validator) ValidateParsed(pd *ParsedData, mappings []FieldMapping, schema []TargetColumn) ValidationResult {
	return v.run(pd.Rows, pd.Text, pd.Lines, pd.Headers, mappings, schema)
}

func (v *Validator) run(rows []Row, text []map[string]string, lines []int, headers []string, mappings []FieldMapping, schema []TargetColumn) ValidationResult {
	res := ValidationResult{
		TotalRows:  len(rows),
		Errors:     []RowError{},
		Warnings:   CheckMappings(headers, mappings, schema),
		Duplicates: []DuplicateGroup{},
		Rows:       make([]MappedRow, 0, len(rows)),
	}
	if res.Warnings == nil {
		res.Warnings = []Warning{}
	}

	columns := make(map[string]TargetColumn, len(schema))
	for _, c := range schema {
		columns[c.Key] = c
	}
	sourceFor := make(map[string]string)
	for _, m := range mappings {
		if _, ok := columns[m.TargetColumn]; ok {
			if _, seen := sourceFor[m.TargetColumn]; !seen {
				sourceFor[m.TargetColumn] = m.SourceColumn
			}
		}
	}

	checker := newRuleChecker()
	dups := newDuplicateIndex(schema)

	for i, row := range rows {
		line := 0
		if i < len(lines) {
			line = lines[i]
		}
		rv := rowValidation{
			v:         v,
			checker:   checker,
			rowNum:    i + 1,
			line:      line,
			raw:       row,
			text:      cellText(text, i),
			out:       make(MappedRow),
			failed:    make(map[string]bool),
			sourceFor: sourceFor,
		}
		rv.applyMappings(mappings, columns)
		rv.applyDefaults(schema)
		rv.checkRequired(schema)
		rv.checkRules(schema)

		for _, c := range schema {
			if c.Unique && !rv.failed[c.Key] && !isBlank(rv.out[c.Key]) {
				dups.add(c.Key, rv.out[c.Key], rv.rowNum)
			}
		}

		if len(rv.errs) > 0 {
			res.ErrorRows++
			res.Errors = append(res.Errors, rv.errs...)
		}
		res.Rows = append(res.Rows, rv.out)
	}

	res.Duplicates = dups.groups()
	res.ValidRows = res.TotalRows - res.ErrorRows
	res.IsValid = len(res.Errors) == 0
	return res
}

// rowValidation carries the state of one row through the engine.
type rowValidation struct {
	v         *Validator
	checker   *ruleChecker
	rowNum    int
	line      int
	raw       Row
	text      map[string]string
	out       MappedRow
	failed    map[string]bool
	errs      []RowError
	sourceFor map[string]string
}

func (rv *rowValidation) addError(key string, value any, code, msg string) {
	rv.errs = append(rv.errs, RowError{
		Row:     rv.rowNum,
		Line:    rv.line,
		Column:  rv.sourceFor[key],
		Field:   key,
		Value:   value,
		Code:    code,
		Message: msg,
	})
}

func (rv *rowValidation) applyMappings(mappings []FieldMapping, columns map[string]TargetColumn) {
	df := rv.v.dateFormat
	for _, m := range mappings {
		raw := rv.raw[m.SourceColumn]
		col, known := columns[m.TargetColumn]
		if !known {
			if m.TargetColumn == m.SourceColumn {
				if m.SkipEmpty {
					rv.out[m.TargetColumn] = nil
				} else {
					rv.out[m.TargetColumn] = raw
				}
			}
			continue
		}
		if s, ok := rv.text[m.SourceColumn]; ok && col.Type.Textual() {
			raw = s
		}

		if isBlank(raw) {
			if !m.SkipEmpty {
				rv.out[col.Key] = nil
			}
			continue
		}

		val, err := ApplyTransform(m.Transform, raw, df)
		if err == nil {
			val, err = ApplyTransform(col.Transform, val, df)
		}
		if err != nil {
			rv.failed[col.Key] = true
			rv.addError(col.Key, raw, "VAL012", err.Error())
			continue
		}

		coerced, err := CoerceToType(val, col.Type, df)
		if err != nil {
			rv.failed[col.Key] = true
			delete(rv.out, col.Key)
			rv.addError(col.Key, raw, typeErrorCodes[col.Type], err.Error())
			continue
		}
		rv.out[col.Key] = coerced
	}
}

func (rv *rowValidation) applyDefaults(schema []TargetColumn) {
	for _, c := range schema {
		if c.DefaultValue == nil || rv.failed[c.Key] || !isBlank(rv.out[c.Key]) {
			continue
		}
		if d, err := CoerceToType(c.DefaultValue, c.Type, rv.v.dateFormat); err == nil {
			rv.out[c.Key] = d
		} else {
			rv.out[c.Key] = c.DefaultValue
		}
	}
}

func (rv *rowValidation) checkRequired(schema []TargetColumn) {
	for _, c := range schema {
		if !c.Required || rv.failed[c.Key] || !isBlank(rv.out[c.Key]) {
			continue
		}
		msg := "required field is empty"
		if _, mapped := rv.sourceFor[c.Key]; !mapped {
			msg = fmt.Sprintf("required field %q has no mapped source column", c.Key)
		}
		rv.failed[c.Key] = true
		rv.addError(c.Key, nil, "VAL003", msg)
	}
}

func (rv *rowValidation) checkRules(schema []TargetColumn) {
	for _, c := range schema {
		if rv.failed[c.Key] {
			continue
		}
		val := rv.out[c.Key]
		for _, rule := range c.Rules {
			msg := rv.evaluate(val, rule)
			if msg == "" {
				continue
			}
			rv.addError(c.Key, val, ruleErrorCodes[rule.Type], msg)
			if rule.Type == RuleRequired {
				break
			}
		}
	}
}

// evaluate returns the failure message for rule, or "" when it passes.
func (rv *rowValidation) evaluate(val any, rule ValidationRule) string {
	if rule.Type == RuleRequired {
		if isBlank(val) {
			return messageOr(rule.Message, "required field is empty")
		}
		return ""
	}
	if isBlank(val) {
		return ""
	}

	if rule.Type == RuleCustom {
		fn, ok := rv.v.custom[rule.Name]
		if !ok {
			return fmt.Sprintf("unknown custom rule %q", rule.Name)
		}
		passed, msg := fn(val, rule)
		if passed {
			return ""
		}
		if msg != "" {
			return msg
		}
		return messageOr(rule.Message, fmt.Sprintf("failed custom rule %q", rule.Name))
	}

	if msg := rv.checker.check(val, rule); msg != "" {
		return messageOr(rule.Message, msg)
	}
	return ""
}

func cellText(text []map[string]string, i int) map[string]string {
	if i < len(text) {
		return text[i]
	}
	return nil
}

func messageOr(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// duplicateIndex accumulates row numbers per value for each unique column,
// keeping first-seen order so results are deterministic.
type duplicateIndex struct {
	columns []string
	rows    map[string]map[string][]int
	order   map[string][]string
	values  map[string]map[string]any
}

func newDuplicateIndex(schema []TargetColumn) *duplicateIndex {
	d := &duplicateIndex{
		rows:   make(map[string]map[string][]int),
		order:  make(map[string][]string),
		values: make(map[string]map[string]any),
	}
	for _, c := range schema {
		if c.Unique {
			d.columns = append(d.columns, c.Key)
			d.rows[c.Key] = make(map[string][]int)
			d.values[c.Key] = make(map[string]any)
		}
	}
	return d
}

func (d *duplicateIndex) add(column string, value any, row int) {
	key := ToText(value)
	if _, seen := d.rows[column][key]; !seen {
		d.order[column] = append(d.order[column], key)
		d.values[column][key] = value
	}
	d.rows[column][key] = append(d.rows[column][key], row)
}

func (d *duplicateIndex) groups() []DuplicateGroup {
	groups := []DuplicateGroup{}
	for _, col := range d.columns {
		for _, key := range d.order[col] {
			rows := d.rows[col][key]
			if len(rows) < 2 {
				continue
			}
			groups = append(groups, DuplicateGroup{
				Column: col,
				Value:  d.values[col][key],
				Rows:   rows,
				Action: DuplicateSkip,
			})
		}
	}
	return groups
}
