package core

import (
	"reflect"
	"slices"
	"strings"
	"testing"
)

func TestValidate_DuplicateScenario(t *testing.T) {
	pd, err := ParseFile(csvFile("name,email\nAda,ada@x.com\nAda,ada@x.com\n"), ImportOptions{})
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	schema := []TargetColumn{
		{Key: "name", Type: TypeString, Required: true},
		{Key: "email", Type: TypeEmail, Unique: true},
	}

	res := Validate(pd.Rows, AutoMap(pd.Headers, schema), schema)

	if res.TotalRows != 2 || res.ErrorRows != 0 || res.ValidRows != 2 {
		t.Errorf("total=%d error=%d valid=%d, want 2/0/2", res.TotalRows, res.ErrorRows, res.ValidRows)
	}
	if !res.IsValid {
		t.Errorf("IsValid = false, errors: %v", res.Errors)
	}
	if len(res.Duplicates) != 1 {
		t.Fatalf("got %d duplicate groups, want 1", len(res.Duplicates))
	}
	g := res.Duplicates[0]
	if g.Column != "email" || g.Value != "ada@x.com" || g.Action != DuplicateSkip {
		t.Errorf("group = %+v, want email ada@x.com skip", g)
	}
	if !reflect.DeepEqual(g.Rows, []int{1, 2}) {
		t.Errorf("group rows = %v, want [1 2]", g.Rows)
	}
}

func TestValidate_NumberCoercion(t *testing.T) {
	pd, err := ParseFile(csvFile("qty\n42\nabc\n"), ImportOptions{})
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	schema := []TargetColumn{{Key: "qty", Type: TypeNumber}}

	res := NewValidator().ValidateParsed(pd, AutoMap(pd.Headers, schema), schema)

	if got := res.Rows[0]["qty"]; got != 42.0 {
		t.Errorf("row 1 qty = %#v, want 42", got)
	}
	if _, ok := res.Rows[1]["qty"]; ok {
		t.Errorf("row 2 qty present = %#v, want absent", res.Rows[1]["qty"])
	}
	if len(res.Errors) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(res.Errors), res.Errors)
	}
	e := res.Errors[0]
	if e.Row != 2 || e.Line != 3 || e.Field != "qty" || e.Code != "VAL002" {
		t.Errorf("error = %+v, want row 2 line 3 qty VAL002", e)
	}
}

func TestValidateParsed_TextualColumnsKeepSourceText(t *testing.T) {
	tests := []struct {
		name string
		file FileInput
	}{
		{"csv", csvFile("zip,phone,code\n01234, +15551234567 ,yes\n")},
		{"json", FileInput{Name: "a.json", Content: []byte(`[{"zip":"01234","phone":"+15551234567","code":"yes"}]`)}},
		{"markup", FileInput{Name: "a.xml", Content: []byte(`<rows><row zip="01234"><phone>+15551234567</phone><code>yes</code></row></rows>`)}},
	}
	schema := []TargetColumn{
		{Key: "zip", Type: TypeString},
		{Key: "phone", Type: TypeString},
		{Key: "code", Type: TypeString},
	}
	mappings := []FieldMapping{
		{SourceColumn: "zip", TargetColumn: "zip"},
		{SourceColumn: "phone", TargetColumn: "phone"},
		{SourceColumn: "code", TargetColumn: "code"},
	}
	want := MappedRow{"zip": "01234", "phone": "+15551234567", "code": "yes"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd, err := ParseFile(tt.file, ImportOptions{})
			if err != nil {
				t.Fatalf("ParseFile() error = %v", err)
			}
			m := mappings
			if tt.name == "markup" {
				m = slices.Clone(mappings)
				m[0].SourceColumn = AttributePrefix + "zip"
			}
			res := NewValidator().ValidateParsed(pd, m, schema)
			if len(res.Errors) != 0 {
				t.Fatalf("errors = %v, want none", res.Errors)
			}
			if got := res.Rows[0]; !reflect.DeepEqual(got, want) {
				t.Errorf("row = %#v, want %#v", got, want)
			}
		})
	}
}

func TestValidateParsed_TypedColumnsUseParsedValue(t *testing.T) {
	pd, err := ParseFile(csvFile("qty,active\n01234,yes\n"), ImportOptions{})
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	schema := []TargetColumn{{Key: "qty", Type: TypeNumber}, {Key: "active", Type: TypeBoolean}}

	res := NewValidator().ValidateParsed(pd, AutoMap(pd.Headers, schema), schema)

	if got := res.Rows[0]["qty"]; got != 1234.0 {
		t.Errorf("qty = %#v, want 1234", got)
	}
	if got := res.Rows[0]["active"]; got != true {
		t.Errorf("active = %#v, want true", got)
	}
}

func TestValidate_TypeErrors(t *testing.T) {
	tests := []struct {
		name     string
		typ      ColumnType
		value    any
		wantCode string
		want     any
	}{
		{"number from currency", TypeNumber, "$1,234.50", "", 1234.5},
		{"number from accounting negative", TypeNumber, "(12)", "", -12.0},
		{"bad number", TypeNumber, "12abc", "VAL002", nil},
		{"date us", TypeDate, "01/15/2024", "", "2024-01-15"},
		{"date named month", TypeDate, "Jan 15, 2024", "", "2024-01-15"},
		{"bad date", TypeDate, "someday", "VAL001", nil},
		{"bool y", TypeBoolean, "Y", "", true},
		{"bool from number", TypeBoolean, 0.0, "", false},
		{"bad bool", TypeBoolean, "maybe", "VAL004", nil},
		{"email", TypeEmail, " a@b.co ", "", "a@b.co"},
		{"bad email", TypeEmail, "a@", "VAL005", nil},
		{"url", TypeURL, "https://example.com/x", "", "https://example.com/x"},
		{"bad url", TypeURL, "not a url", "VAL006", nil},
		{"object from json", TypeObject, `{"k":1}`, "", map[string]any{"k": 1.0}},
		{"bad object", TypeObject, "plain", "VAL007", nil},
		{"string from number", TypeString, 7.0, "", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := []TargetColumn{{Key: "v", Type: tt.typ}}
			mappings := []FieldMapping{{SourceColumn: "v", TargetColumn: "v"}}
			res := Validate([]Row{{"v": tt.value}}, mappings, schema)

			if tt.wantCode == "" {
				if len(res.Errors) != 0 {
					t.Fatalf("errors = %v, want none", res.Errors)
				}
				if got := res.Rows[0]["v"]; !reflect.DeepEqual(got, tt.want) {
					t.Errorf("v = %#v, want %#v", got, tt.want)
				}
				return
			}
			if len(res.Errors) != 1 || res.Errors[0].Code != tt.wantCode {
				t.Errorf("errors = %v, want one %s", res.Errors, tt.wantCode)
			}
		})
	}
}

func TestValidate_Required(t *testing.T) {
	schema := []TargetColumn{
		{Key: "id", Type: TypeString, Required: true},
		{Key: "code", Type: TypeString, Required: true},
	}
	mappings := []FieldMapping{{SourceColumn: "id", TargetColumn: "id", SkipEmpty: true}}
	rows := []Row{{"id": "A"}, {"id": "  "}}

	res := Validate(rows, mappings, schema)

	if res.ErrorRows != 2 {
		t.Fatalf("ErrorRows = %d, want 2: %v", res.ErrorRows, res.Errors)
	}
	var unmapped, empty int
	for _, e := range res.Errors {
		if e.Code != "VAL003" {
			t.Errorf("code = %s, want VAL003", e.Code)
		}
		switch {
		case strings.Contains(e.Message, "no mapped source column"):
			unmapped++
		case e.Message == "required field is empty":
			empty++
		}
	}
	if unmapped != 2 || empty != 1 {
		t.Errorf("unmapped=%d empty=%d, want 2 and 1", unmapped, empty)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name     string
		col      TargetColumn
		value    any
		wantCode string
		wantMsg  string
	}{
		{
			name:     "min number",
			col:      TargetColumn{Key: "v", Type: TypeNumber, Rules: []ValidationRule{{Type: RuleMin, Value: 10}}},
			value:    "5",
			wantCode: "VAL008",
			wantMsg:  "must be at least 10",
		},
		{
			name:  "max number passes",
			col:   TargetColumn{Key: "v", Type: TypeNumber, Rules: []ValidationRule{{Type: RuleMax, Value: 10.0}}},
			value: "10",
		},
		{
			name:     "max length",
			col:      TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleMax, Value: 3}}},
			value:    "abcd",
			wantCode: "VAL009",
			wantMsg:  "must be at most 3 characters",
		},
		{
			name:     "pattern with override message",
			col:      TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RulePattern, Value: `^[A-Z]{3}$`, Message: "three capitals"}}},
			value:    "usd",
			wantCode: "VAL010",
			wantMsg:  "three capitals",
		},
		{
			name:     "email rule",
			col:      TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleEmail}}},
			value:    "nope",
			wantCode: "VAL005",
		},
		{
			name:     "url rule",
			col:      TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleURL}}},
			value:    "nope",
			wantCode: "VAL006",
		},
		{
			name:     "required rule",
			col:      TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleRequired}}},
			value:    nil,
			wantCode: "VAL003",
		},
		{
			name:  "rules skip blank values",
			col:   TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleMin, Value: 3}}},
			value: "",
		},
		{
			name:     "oneOf custom",
			col:      TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleCustom, Name: "oneOf", Params: map[string]any{"values": []any{"a", "b"}}}}},
			value:    "c",
			wantCode: "VAL011",
			wantMsg:  "must be one of: a, b",
		},
		{
			name:  "oneOf ignores case",
			col:   TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleCustom, Name: "oneOf", Params: map[string]any{"values": []any{"Gold"}}}}},
			value: "GOLD",
		},
		{
			name:     "unknown custom rule",
			col:      TargetColumn{Key: "v", Type: TypeString, Rules: []ValidationRule{{Type: RuleCustom, Name: "missing"}}},
			value:    "x",
			wantCode: "VAL011",
			wantMsg:  `unknown custom rule "missing"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := []TargetColumn{tt.col}
			mappings := []FieldMapping{{SourceColumn: "v", TargetColumn: "v"}}
			res := Validate([]Row{{"v": tt.value}}, mappings, schema)

			if tt.wantCode == "" {
				if len(res.Errors) != 0 {
					t.Errorf("errors = %v, want none", res.Errors)
				}
				return
			}
			if len(res.Errors) != 1 {
				t.Fatalf("errors = %v, want exactly one", res.Errors)
			}
			if res.Errors[0].Code != tt.wantCode {
				t.Errorf("code = %s, want %s", res.Errors[0].Code, tt.wantCode)
			}
			if tt.wantMsg != "" && res.Errors[0].Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", res.Errors[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestValidate_CustomRuleHook(t *testing.T) {
	even := func(v any, _ ValidationRule) (bool, string) {
		n, ok := v.(float64)
		if ok && int(n)%2 == 0 {
			return true, ""
		}
		return false, "must be even"
	}
	v := NewValidator(WithCustomRule("even", even))
	schema := []TargetColumn{{Key: "n", Type: TypeNumber, Rules: []ValidationRule{{Type: RuleCustom, Name: "even"}}}}
	mappings := []FieldMapping{{SourceColumn: "n", TargetColumn: "n"}}

	res := v.Validate([]Row{{"n": 2.0}, {"n": 3.0}}, mappings, schema)

	if res.ErrorRows != 1 || res.Errors[0].Row != 2 || res.Errors[0].Message != "must be even" {
		t.Errorf("errors = %v, want one on row 2 saying must be even", res.Errors)
	}
}

func TestValidate_TransformsAndDefaults(t *testing.T) {
	schema := []TargetColumn{
		{Key: "code", Type: TypeString, Transform: "upper"},
		{Key: "when", Type: TypeDate},
		{Key: "tier", Type: TypeString, DefaultValue: "basic"},
		{Key: "count", Type: TypeNumber, DefaultValue: 0},
	}
	mappings := []FieldMapping{
		{SourceColumn: "Code", TargetColumn: "code", Transform: "trim"},
		{SourceColumn: "When", TargetColumn: "when"},
		{SourceColumn: "Tier", TargetColumn: "tier", SkipEmpty: true},
	}
	rows := []Row{{"Code": "  ab1 ", "When": "15.01.2024", "Tier": nil}}

	res := NewValidator(WithDateFormat("DD.MM.YYYY")).Validate(rows, mappings, schema)

	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v, want none", res.Errors)
	}
	want := MappedRow{"code": "AB1", "when": "2024-01-15", "tier": "basic", "count": 0.0}
	if !reflect.DeepEqual(res.Rows[0], want) {
		t.Errorf("row = %#v, want %#v", res.Rows[0], want)
	}
}

func TestValidate_UnknownTransform(t *testing.T) {
	schema := []TargetColumn{{Key: "v", Type: TypeString}}
	mappings := []FieldMapping{{SourceColumn: "v", TargetColumn: "v", Transform: "reverse"}}

	res := Validate([]Row{{"v": "x"}}, mappings, schema)

	if len(res.Errors) != 1 || res.Errors[0].Code != "VAL012" {
		t.Errorf("errors = %v, want one VAL012", res.Errors)
	}
}

func TestValidate_UnmappedColumn(t *testing.T) {
	schema := []TargetColumn{{Key: "id", Type: TypeString}}
	rows := []Row{{"id": "1", "Fax": "555"}}

	skip := Validate(rows, AutoMap([]string{"id", "Fax"}, schema), schema)
	if got, ok := skip.Rows[0]["Fax"]; !ok || got != nil {
		t.Errorf("Fax with skipEmpty = %#v, want nil", got)
	}
	if len(skip.Warnings) != 1 || skip.Warnings[0].Code != "unmapped" {
		t.Errorf("warnings = %v, want one unmapped", skip.Warnings)
	}

	keep := Validate(rows, []FieldMapping{{SourceColumn: "Fax", TargetColumn: "Fax"}}, schema)
	if got := keep.Rows[0]["Fax"]; got != "555" {
		t.Errorf("Fax without skipEmpty = %#v, want 555", got)
	}
	if len(keep.Errors) != 0 {
		t.Errorf("errors = %v, unmapped columns are not type checked", keep.Errors)
	}
}

func TestValidate_Invariants(t *testing.T) {
	schema := []TargetColumn{
		{Key: "id", Type: TypeNumber, Required: true, Unique: true},
		{Key: "email", Type: TypeEmail},
	}
	rows := []Row{
		{"id": 1.0, "email": "a@x.com"},
		{"id": "x", "email": "bad"},
		{"id": 1.0, "email": nil},
		{"id": nil, "email": "c@x.com"},
	}
	mappings := AutoMap([]string{"id", "email"}, schema)

	first := Validate(rows, mappings, schema)
	second := Validate(rows, mappings, schema)

	if first.ValidRows+first.ErrorRows != first.TotalRows {
		t.Errorf("valid %d + error %d != total %d", first.ValidRows, first.ErrorRows, first.TotalRows)
	}
	if first.ErrorRows != 2 {
		t.Errorf("ErrorRows = %d, want 2", first.ErrorRows)
	}
	if len(first.Duplicates) != 1 || !reflect.DeepEqual(first.Duplicates[0].Rows, []int{1, 3}) {
		t.Errorf("duplicates = %+v, want rows [1 3]", first.Duplicates)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("re-running Validate produced a different result")
	}
}
