package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]TableSchema)
	registryMu sync.RWMutex
)

// Register adds a table schema. Keys must be unique and columns non-empty.
func Register(schema TableSchema) error {
	if schema.Key == "" {
		return fmt.Errorf("table schema has no key")
	}
	if len(schema.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", schema.Key)
	}
	seen := make(map[string]bool, len(schema.Columns))
	for _, c := range schema.Columns {
		if c.Key == "" {
			return fmt.Errorf("table %s: column without key", schema.Key)
		}
		if seen[c.Key] {
			return fmt.Errorf("table %s: duplicate column %s", schema.Key, c.Key)
		}
		seen[c.Key] = true
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.Key]; exists {
		return fmt.Errorf("table already registered: %s", schema.Key)
	}
	if schema.Label == "" {
		schema.Label = schema.Key
	}
	registry[schema.Key] = schema
	return nil
}

// Get returns a table schema by key.
func Get(key string) (TableSchema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[key]
	return s, ok
}

// Lookup is Get returning ErrUnknownTable for missing keys.
func Lookup(key string) (TableSchema, error) {
	s, ok := Get(key)
	if !ok {
		return TableSchema{}, fmt.Errorf("%w: %s", ErrUnknownTable, key)
	}
	return s, nil
}

// All returns every schema sorted by group then key.
func All() []TableSchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableSchema, 0, len(registry))
	for _, s := range registry {
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Key < result[j].Key
	})

	return result
}

// Groups returns all unique group names, sorted.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, s := range registry {
		seen[s.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// TableCount returns the number of registered schemas.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]TableSchema)
}
