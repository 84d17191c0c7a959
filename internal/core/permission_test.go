package core

import (
	"errors"
	"testing"
)

func policyCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	var pv *PolicyViolation
	if !errors.As(err, &pv) {
		t.Fatalf("error = %v, want *PolicyViolation", err)
	}
	return pv.Code
}

func TestPermission_Checks(t *testing.T) {
	full := Permission{CanImport: true, CanValidate: true, CanPreview: true}
	limited := Permission{
		CanImport:      true,
		CanValidate:    true,
		CanPreview:     true,
		MaxFileSize:    1024,
		MaxRows:        100,
		AllowedFormats: []Format{FormatCSV},
		AllowedTables:  []string{"contacts"},
	}

	tests := []struct {
		name  string
		check func() error
		want  string
	}{
		{"unrestricted file", func() error { return full.CheckFile(PhaseParse, FormatMarkup, 1<<30) }, ""},
		{"format not allowed", func() error { return limited.CheckFile(PhaseParse, FormatJSON, 10) }, "POL002"},
		{"file too large", func() error { return limited.CheckFile(PhaseParse, FormatCSV, 2048) }, "POL003"},
		{"file at limit", func() error { return limited.CheckFile(PhaseParse, FormatCSV, 1024) }, ""},
		{"too many rows", func() error { return limited.CheckRows(PhaseValidate, 101) }, "POL004"},
		{"rows at limit", func() error { return limited.CheckRows(PhaseValidate, 100) }, ""},
		{"import denied", func() error { return Permission{}.CheckImport("contacts", 1) }, "POL001"},
		{"table not allowed", func() error { return limited.CheckImport("orders", 1) }, "POL005"},
		{"import rows over limit", func() error { return limited.CheckImport("contacts", 500) }, "POL004"},
		{"import allowed", func() error { return limited.CheckImport("contacts", 5) }, ""},
		{"preview denied", func() error { return Permission{}.CheckPreview(FormatCSV, 1) }, "POL007"},
		{"preview checks file", func() error { return limited.CheckPreview(FormatJSON, 1) }, "POL002"},
		{"validate denied", func() error { return Permission{}.CheckValidate(1) }, "POL008"},
		{"validate allowed", func() error { return full.CheckValidate(1_000_000) }, ""},
		{"approve denied", func() error { return full.CheckApprove("alice", "bob") }, "POL009"},
		{"approve own import", func() error { return Permission{CanApprove: true}.CheckApprove("alice", "alice") }, "POL010"},
		{"approve allowed", func() error { return Permission{CanApprove: true}.CheckApprove("alice", "bob") }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policyCode(t, tt.check()); got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicyViolation_Phase(t *testing.T) {
	err := Permission{}.CheckImport("t", 0)
	var pv *PolicyViolation
	if !errors.As(err, &pv) {
		t.Fatalf("error = %v, want *PolicyViolation", err)
	}
	if pv.Phase != PhaseImport {
		t.Errorf("Phase = %s, want import", pv.Phase)
	}
	if got := MapError(err).Code; got != "POL001" {
		t.Errorf("MapError code = %s, want POL001", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in     string
		want   Format
		wantOK bool
	}{
		{"csv", FormatCSV, true},
		{" Excel ", FormatSpreadsheet, true},
		{"xlsx", FormatSpreadsheet, true},
		{"XML", FormatMarkup, true},
		{"json", FormatJSON, true},
		{"pdf", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFormat(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseFormat(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
