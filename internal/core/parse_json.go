package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// parseJSON accepts a top-level array of objects, or an object with exactly
// one array-valued property. Headers are the keys of the first record in
// document order.
func parseJSON(content []byte, opts ImportOptions) (*ParsedData, error) {
	text, err := decodeText(FormatJSON, content, opts.Encoding)
	if err != nil {
		return nil, err
	}
	data := bytes.TrimSpace([]byte(text))
	if len(data) == 0 {
		return nil, parseErr(FormatJSON, "PARSE001", "file is empty", nil)
	}
	if !json.Valid(data) {
		return nil, parseErr(FormatJSON, "PARSE005", "invalid JSON document", nil)
	}

	pd := &ParsedData{}
	var array json.RawMessage
	switch data[0] {
	case '[':
		array = data
	case '{':
		keys, fields, err := decodeOrderedObject(data)
		if err != nil {
			return nil, parseErr(FormatJSON, "PARSE005", "invalid JSON object", err)
		}
		var arrayKeys []string
		for _, k := range keys {
			if v := bytes.TrimSpace(fields[k]); len(v) > 0 && v[0] == '[' {
				arrayKeys = append(arrayKeys, k)
			}
		}
		if len(arrayKeys) != 1 {
			return nil, parseErr(FormatJSON, "PARSE004",
				fmt.Sprintf("object must contain exactly one array property, found %d", len(arrayKeys)), nil)
		}
		array = fields[arrayKeys[0]]
		pd.Warnings = append(pd.Warnings, Warning{
			Code:    "array_property",
			Message: fmt.Sprintf("using records from array property %q", arrayKeys[0]),
		})
	default:
		return nil, parseErr(FormatJSON, "PARSE004", "top-level value must be an array or an object", nil)
	}

	elements, err := decodeArray(array)
	if err != nil {
		return nil, parseErr(FormatJSON, "PARSE005", "invalid JSON array", err)
	}

	// JSON records carry their 1-based array position as their line.
	var records []keyedRecord
	for i, elem := range elements {
		line := i + 1
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			pd.Errors = append(pd.Errors, RowError{
				Line:    line,
				Code:    "PARSE004",
				Message: fmt.Sprintf("record %d is not an object", line),
			})
			continue
		}
		keys, fields, err := decodeOrderedObject(elem)
		if err != nil {
			return nil, parseErr(FormatJSON, "PARSE005", fmt.Sprintf("record %d", line), err)
		}
		rec := keyedRecord{keys: keys, values: make(map[string]any, len(keys)), text: make(map[string]string), line: line}
		for _, k := range keys {
			v, s, err := decodeJSONValue(fields[k])
			if err != nil {
				return nil, parseErr(FormatJSON, "PARSE005", fmt.Sprintf("record %d field %q", line, k), err)
			}
			rec.values[k] = v
			if s != "" {
				rec.text[k] = s
			}
		}
		records = append(records, rec)
	}

	kept, warnings := selectKeyed(records, opts)
	if len(kept) == 0 {
		return nil, parseErr(FormatJSON, "PARSE002", "no data rows found", nil)
	}

	pd.Headers = kept[0].keys
	if err := checkUniqueHeaders(FormatJSON, pd.Headers); err != nil {
		return nil, err
	}
	keyedRows(pd, kept)
	pd.Warnings = append(pd.Warnings, warnings...)
	if extra := extraKeys(kept, pd.Headers); len(extra) > 0 {
		pd.Warnings = append(pd.Warnings, Warning{
			Code:    "extra_fields",
			Message: "fields missing from the first record were ignored: " + strings.Join(extra, ", "),
		})
	}
	return pd, nil
}

// decodeOrderedObject returns an object's keys in document order with their
// raw values. Repeated keys are kept so header uniqueness can reject them.
func decodeOrderedObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}

	var keys []string
	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		fields[key] = raw
	}
	return keys, fields, nil
}

func decodeArray(data []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// decodeJSONValue keeps native JSON types, coerces strings and leaves nested
// objects and arrays as structured values. For a string it also returns the
// trimmed text before coercion.
func decodeJSONValue(raw json.RawMessage) (any, string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, "", err
	}
	var text string
	if s, ok := v.(string); ok {
		text = strings.TrimSpace(s)
	}
	return normalizeJSON(v, true), text, nil
}

func normalizeJSON(v any, top bool) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string:
		if top {
			return Coerce(t)
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeJSON(item, false)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeJSON(item, false)
		}
		return t
	}
	return v
}

// extraKeys lists keys that appear in later records but not in headers.
func extraKeys(records []keyedRecord, headers []string) []string {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	seen := make(map[string]bool)
	var extra []string
	for _, rec := range records {
		for _, k := range rec.keys {
			if !known[k] && !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return extra
}
