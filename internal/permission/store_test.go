package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JonMunkholm/dataimport/internal/core"
)

var readOnly = core.Permission{CanPreview: true, CanValidate: true}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(db, readOnly)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLookup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	general := core.Permission{CanImport: true, CanValidate: true, MaxRows: 500,
		AllowedFormats: []core.Format{core.FormatCSV, core.FormatJSON}}
	strict := core.Permission{CanImport: true, RequireApproval: true, MaxImportsPerDay: 2}

	if err := s.Upsert(ctx, GrantFor("alice", "", general)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := s.Upsert(ctx, GrantFor("alice", "sfdc_customers", strict)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	tests := []struct {
		name         string
		actor, table string
		wantImport   bool
		wantApproval bool
		wantMaxRows  int
		wantFormats  int
		wantPerDay   int
	}{
		{"catch-all grant", "alice", "ns_invoices", true, false, 500, 2, 0},
		{"table grant wins", "alice", "sfdc_customers", true, true, 0, 0, 2},
		{"unknown actor falls back", "bob", "ns_invoices", false, false, 0, 0, 0},
		{"anonymous falls back", "", "ns_invoices", false, false, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.Lookup(ctx, tt.actor, tt.table)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if p.CanImport != tt.wantImport {
				t.Errorf("CanImport = %v, want %v", p.CanImport, tt.wantImport)
			}
			if p.RequireApproval != tt.wantApproval {
				t.Errorf("RequireApproval = %v, want %v", p.RequireApproval, tt.wantApproval)
			}
			if p.MaxRows != tt.wantMaxRows {
				t.Errorf("MaxRows = %d, want %d", p.MaxRows, tt.wantMaxRows)
			}
			if len(p.AllowedFormats) != tt.wantFormats {
				t.Errorf("AllowedFormats = %v, want %d entries", p.AllowedFormats, tt.wantFormats)
			}
			if p.MaxImportsPerDay != tt.wantPerDay {
				t.Errorf("MaxImportsPerDay = %d, want %d", p.MaxImportsPerDay, tt.wantPerDay)
			}
		})
	}
}

func TestUpsertReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, GrantFor("carol", "", core.Permission{MaxRows: 10})); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := s.Upsert(ctx, GrantFor("carol", "", core.Permission{CanImport: true, MaxRows: 20})); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	grants, err := s.List(ctx, "carol")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("got %d grants, want 1", len(grants))
	}
	if !grants[0].CanImport || grants[0].MaxRows != 20 {
		t.Errorf("grant = %+v, want the replacement", grants[0])
	}
}

func TestUpsertRequiresActor(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Upsert(context.Background(), Grant{}); err == nil {
		t.Error("Upsert() with no actor succeeded, want error")
	}
}

func TestDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, GrantFor("dave", "t1", core.Permission{CanImport: true}))
	if err := s.Delete(ctx, "dave", "t1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "dave", "t1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("second Delete() = %v, want ErrRecordNotFound", err)
	}
	p, _ := s.Lookup(ctx, "dave", "t1")
	if p.CanImport {
		t.Error("deleted grant still applies")
	}
}

func TestGrantPermission(t *testing.T) {
	g := Grant{AllowedFormats: "csv, xlsx ,bogus,", AllowedTables: "a,,b"}
	p := g.Permission()
	if len(p.AllowedFormats) != 2 {
		t.Errorf("AllowedFormats = %v, want 2 known formats", p.AllowedFormats)
	}
	if len(p.AllowedTables) != 2 || p.AllowedTables[1] != "b" {
		t.Errorf("AllowedTables = %v, want [a b]", p.AllowedTables)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x", readOnly); err == nil {
		t.Error("Open(mysql) succeeded, want error")
	}
}
