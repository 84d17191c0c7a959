// Package schema provides the target table schemas imports are validated
// against: a set of built-in tables and a YAML loader for operator-defined ones.
//
// A schema file holds one or more tables:
//
//	tables:
//	  - key: contacts
//	    label: Contacts
//	    group: CRM
//	    columns:
//	      - key: email
//	        type: email
//	        required: true
//	        unique: true
//	      - key: age
//	        type: number
//	        rules:
//	          - {type: min, value: 0}
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/dataimport/internal/core"
)

var columnTypes = []core.ColumnType{
	core.TypeString, core.TypeNumber, core.TypeDate, core.TypeBoolean,
	core.TypeEmail, core.TypeURL, core.TypeObject,
}

var ruleTypes = []core.RuleType{
	core.RuleRequired, core.RuleMin, core.RuleMax, core.RulePattern,
	core.RuleEmail, core.RuleURL, core.RuleCustom,
}

type file struct {
	Tables []core.TableSchema `yaml:"tables"`
}

// Parse decodes and checks the tables in one YAML document. Unknown fields
// are rejected so typos do not silently drop rules.
func Parse(data []byte) ([]core.TableSchema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if len(f.Tables) == 0 {
		return nil, errors.New("schema file defines no tables")
	}

	var errs []error
	for i := range f.Tables {
		t := &f.Tables[i]
		for j := range t.Columns {
			if t.Columns[j].Type == "" {
				t.Columns[j].Type = core.TypeString
			}
		}
		if err := Check(*t); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Tables, nil
}

// Check reports every problem in t: missing keys, repeated columns, unknown
// types, transforms and rule types, and patterns that do not compile.
func Check(t core.TableSchema) error {
	var errs []error
	addErr := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("table %q: "+format, append([]any{t.Key}, args...)...))
	}

	if t.Key == "" {
		addErr("key is required")
	}
	if len(t.Columns) == 0 {
		addErr("no columns defined")
	}

	known := core.TransformNames()
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		switch {
		case c.Key == "":
			addErr("column without key")
			continue
		case seen[c.Key]:
			addErr("duplicate column %q", c.Key)
		}
		seen[c.Key] = true

		if !slices.Contains(columnTypes, c.Type) {
			addErr("column %q: unknown type %q", c.Key, c.Type)
		}
		if c.Transform != "" && !slices.Contains(known, strings.ToLower(c.Transform)) {
			addErr("column %q: unknown transform %q", c.Key, c.Transform)
		}
		for _, r := range c.Rules {
			if !slices.Contains(ruleTypes, r.Type) {
				addErr("column %q: unknown rule type %q", c.Key, r.Type)
				continue
			}
			switch r.Type {
			case core.RulePattern:
				expr, ok := r.Value.(string)
				if !ok {
					addErr("column %q: pattern rule needs a string value", c.Key)
				} else if _, err := regexp.Compile(expr); err != nil {
					addErr("column %q: bad pattern: %v", c.Key, err)
				}
			case core.RuleMin, core.RuleMax:
				if _, err := core.ToNumber(r.Value); err != nil {
					addErr("column %q: %s rule needs a numeric value", c.Key, r.Type)
				}
			case core.RuleCustom:
				if r.Name == "" {
					addErr("column %q: custom rule needs a name", c.Key)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// LoadFile reads the tables in one schema file.
func LoadFile(path string) ([]core.TableSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	tables, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tables, nil
}

// LoadDir reads every .yaml and .yml file in dir, in name order.
func LoadDir(dir string) ([]core.TableSchema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []core.TableSchema
	for _, name := range names {
		tables, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, tables...)
	}
	return all, nil
}

// Builtin returns the tables compiled into the binary.
func Builtin() []core.TableSchema {
	return []core.TableSchema{
		SfdcCustomers,
		SfdcPriceBook,
		SfdcOppDetail,
		NsCustomers,
		NsInvoiceDetail,
		AnrokTransactions,
	}
}

// RegisterAll adds tables to the core registry, stopping at the first error.
func RegisterAll(tables []core.TableSchema) error {
	for _, t := range tables {
		if err := core.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Setup registers the built-in tables unless disabled, then every table
// found in dir when dir is non-empty. It returns the number registered.
func Setup(includeBuiltin bool, dir string) (int, error) {
	var tables []core.TableSchema
	if includeBuiltin {
		tables = append(tables, Builtin()...)
	}
	if dir != "" {
		loaded, err := LoadDir(dir)
		if err != nil {
			return 0, err
		}
		tables = append(tables, loaded...)
	}
	if err := RegisterAll(tables); err != nil {
		return 0, err
	}
	return len(tables), nil
}
