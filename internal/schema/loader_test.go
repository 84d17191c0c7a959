package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/dataimport/internal/core"
)

const contactsYAML = `
tables:
  - key: contacts
    label: Contacts
    group: CRM
    columns:
      - key: email
        label: E-mail
        type: email
        required: true
        unique: true
      - key: age
        type: number
        rules:
          - {type: min, value: 0}
          - {type: max, value: 130}
      - key: tier
        default: basic
        rules:
          - type: custom
            name: oneOf
            params:
              values: [basic, pro]
`

func TestParse(t *testing.T) {
	tables, err := Parse([]byte(contactsYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}

	tbl := tables[0]
	if tbl.Key != "contacts" || tbl.Group != "CRM" {
		t.Errorf("got key %q group %q, want contacts CRM", tbl.Key, tbl.Group)
	}
	if len(tbl.Columns) != 3 {
		t.Fatalf("got %d columns, want 3", len(tbl.Columns))
	}

	email := tbl.Columns[0]
	if email.Type != core.TypeEmail || !email.Required || !email.Unique {
		t.Errorf("email column = %+v", email)
	}

	tier := tbl.Columns[2]
	if tier.Type != core.TypeString {
		t.Errorf("tier type = %q, want default %q", tier.Type, core.TypeString)
	}
	if tier.DefaultValue != "basic" {
		t.Errorf("tier default = %v, want basic", tier.DefaultValue)
	}
	values, ok := tier.Rules[0].Params["values"].([]any)
	if !ok || len(values) != 2 {
		t.Errorf("oneOf params = %#v, want two values", tier.Rules[0].Params)
	}
}

func TestParse_RulesDriveValidation(t *testing.T) {
	tables, err := Parse([]byte(contactsYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cols := tables[0].Columns

	rows := []core.Row{
		{"E-mail": "a@example.com", "age": 30.0, "tier": "pro"},
		{"E-mail": "b@example.com", "age": 200.0, "tier": "gold"},
	}
	mappings := core.AutoMap([]string{"E-mail", "age", "tier"}, cols)
	res := core.Validate(rows, mappings, cols)

	if res.ErrorRows != 1 {
		t.Fatalf("ErrorRows = %d, want 1 (errors: %+v)", res.ErrorRows, res.Errors)
	}
	if len(res.Errors) != 2 {
		t.Errorf("got %d errors, want 2 (max and oneOf)", len(res.Errors))
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no tables",
			yaml:    "tables: []\n",
			wantErr: "no tables",
		},
		{
			name:    "unknown field",
			yaml:    "tables:\n  - key: t\n    colums: []\n",
			wantErr: "colums",
		},
		{
			name:    "unknown type",
			yaml:    "tables:\n  - key: t\n    columns:\n      - {key: a, type: money}\n",
			wantErr: `unknown type "money"`,
		},
		{
			name:    "duplicate column",
			yaml:    "tables:\n  - key: t\n    columns:\n      - {key: a}\n      - {key: a}\n",
			wantErr: `duplicate column "a"`,
		},
		{
			name:    "bad pattern",
			yaml:    "tables:\n  - key: t\n    columns:\n      - key: a\n        rules:\n          - {type: pattern, value: '('}\n",
			wantErr: "bad pattern",
		},
		{
			name:    "unknown transform",
			yaml:    "tables:\n  - key: t\n    columns:\n      - {key: a, transform: reverse}\n",
			wantErr: `unknown transform "reverse"`,
		},
		{
			name:    "custom rule without name",
			yaml:    "tables:\n  - key: t\n    columns:\n      - key: a\n        rules:\n          - {type: custom}\n",
			wantErr: "custom rule needs a name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.yaml", "tables:\n  - key: beta\n    columns:\n      - {key: x}\n")
	write("a.yml", "tables:\n  - key: alpha\n    columns:\n      - {key: y}\n")
	write("notes.txt", "ignored")

	tables, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(tables))
	}
	if tables[0].Key != "alpha" || tables[1].Key != "beta" {
		t.Errorf("got order %s, %s, want alpha, beta", tables[0].Key, tables[1].Key)
	}
}

func TestBuiltinTablesAreValid(t *testing.T) {
	for _, tbl := range Builtin() {
		t.Run(tbl.Key, func(t *testing.T) {
			if err := Check(tbl); err != nil {
				t.Errorf("Check() = %v", err)
			}
		})
	}
}

func TestSetup(t *testing.T) {
	core.Clear()
	defer core.Clear()

	n, err := Setup(true, "")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if n != len(Builtin()) || core.TableCount() != n {
		t.Errorf("registered %d (count %d), want %d", n, core.TableCount(), len(Builtin()))
	}
	if _, err := core.Lookup("anrok_transactions"); err != nil {
		t.Errorf("Lookup(anrok_transactions) error = %v", err)
	}
}

func TestNormalizeUsState(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"California", "CA"},
		{"  new york ", "NY"},
		{"tx", "TX"},
		{"WA", "WA"},
		{"Ontario", "Ontario"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeUsState(tt.in); got != tt.want {
				t.Errorf("NormalizeUsState(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUsStateTransformRegistered(t *testing.T) {
	got, err := core.ApplyTransform("us_state", "Oregon", "")
	if err != nil {
		t.Fatalf("ApplyTransform() error = %v", err)
	}
	if got != "OR" {
		t.Errorf("got %v, want OR", got)
	}
}
