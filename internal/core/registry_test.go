package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistry(t *testing.T) {
	Clear()
	defer Clear()

	schemas := []TableSchema{
		{Key: "orders", Group: "Sales", Columns: []TargetColumn{{Key: "id"}}},
		{Key: "accounts", Group: "Sales", Label: "Accounts", Columns: []TargetColumn{{Key: "id"}}},
		{Key: "items", Group: "Catalog", Columns: []TargetColumn{{Key: "sku"}}},
	}
	for _, s := range schemas {
		if err := Register(s); err != nil {
			t.Fatalf("Register(%s) error = %v", s.Key, err)
		}
	}

	if got := TableCount(); got != 3 {
		t.Errorf("TableCount() = %d, want 3", got)
	}

	s, ok := Get("orders")
	if !ok || s.Label != "orders" {
		t.Errorf("Get(orders) = %+v, %v, want label defaulted to key", s, ok)
	}

	var keys []string
	for _, s := range All() {
		keys = append(keys, s.Key)
	}
	if want := []string{"items", "accounts", "orders"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("All() order = %v, want %v", keys, want)
	}
	if want := []string{"Catalog", "Sales"}; !reflect.DeepEqual(Groups(), want) {
		t.Errorf("Groups() = %v, want %v", Groups(), want)
	}

	if _, err := Lookup("missing"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Lookup(missing) = %v, want ErrUnknownTable", err)
	}
}

func TestRegister_Rejects(t *testing.T) {
	Clear()
	defer Clear()

	if err := Register(TableSchema{Key: "t", Columns: []TargetColumn{{Key: "a"}}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name   string
		schema TableSchema
	}{
		{"no key", TableSchema{Columns: []TargetColumn{{Key: "a"}}}},
		{"no columns", TableSchema{Key: "empty"}},
		{"column without key", TableSchema{Key: "x", Columns: []TargetColumn{{Label: "A"}}}},
		{"duplicate column", TableSchema{Key: "y", Columns: []TargetColumn{{Key: "a"}, {Key: "a"}}}},
		{"already registered", TableSchema{Key: "t", Columns: []TargetColumn{{Key: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Register(tt.schema); err == nil {
				t.Error("Register() error = nil, want error")
			}
		})
	}
}

func TestTableSchema_UniqueKeys(t *testing.T) {
	s := TableSchema{Columns: []TargetColumn{
		{Key: "id", Unique: true},
		{Key: "name"},
		{Key: "email", Unique: true},
	}}
	if want := []string{"id", "email"}; !reflect.DeepEqual(s.UniqueKeys(), want) {
		t.Errorf("UniqueKeys() = %v, want %v", s.UniqueKeys(), want)
	}
	if _, ok := s.Column("name"); !ok {
		t.Error("Column(name) not found")
	}
}

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusPending, StatusParsing, true},
		{StatusParsing, StatusValidating, true},
		{StatusValidating, StatusImporting, true},
		{StatusImporting, StatusImporting, true},
		{StatusImporting, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusValidating, StatusCancelled, true},
		{StatusImporting, StatusParsing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusImporting, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}
