package core

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// AttributePrefix marks headers that came from element attributes.
const AttributePrefix = "@"

// TextField holds the character data of a record element without children.
const TextField = "#text"

// parseMarkup treats the root element's direct children as records. Child
// element names and prefixed attribute names across all records form the
// headers; a record without a given field gets nil.
func parseMarkup(content []byte, opts ImportOptions) (*ParsedData, error) {
	dec, err := newMarkupDecoder(content, opts.Encoding)
	if err != nil {
		return nil, err
	}

	if err := findRoot(dec); err != nil {
		return nil, err
	}

	var records []keyedRecord
loop:
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, markupErr(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := dec.InputPos()
			rec, err := readMarkupRecord(dec, t, line)
			if err != nil {
				return nil, markupErr(err)
			}
			records = append(records, rec)
		case xml.EndElement:
			break loop
		}
	}

	kept, warnings := selectKeyed(records, opts)
	if len(kept) == 0 {
		return nil, parseErr(FormatMarkup, "PARSE002", "no data rows found", nil)
	}

	pd := &ParsedData{Headers: unionKeys(kept), Warnings: warnings}
	keyedRows(pd, kept)
	return pd, nil
}

func newMarkupDecoder(content []byte, label string) (*xml.Decoder, error) {
	if !isUTF8Label(label) || hasUTF16BOM(content) {
		text, err := decodeText(FormatMarkup, content, label)
		if err != nil {
			return nil, err
		}
		dec := xml.NewDecoder(strings.NewReader(text))
		dec.CharsetReader = passthroughCharset
		return dec, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	dec.CharsetReader = declaredCharset
	return dec, nil
}

func findRoot(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return parseErr(FormatMarkup, "PARSE002", "document has no root element", nil)
		}
		if err != nil {
			return markupErr(err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			return nil
		}
	}
}

func markupErr(err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	e := parseErr(FormatMarkup, "PARSE005", "malformed markup", err)
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		e.Line = syn.Line
	}
	return e
}

// readMarkupRecord consumes one record element up to its end tag.
func readMarkupRecord(dec *xml.Decoder, start xml.StartElement, line int) (keyedRecord, error) {
	rec := keyedRecord{values: make(map[string]any), text: make(map[string]string), line: line}
	repeated := make(map[string]bool)
	add := func(key, s string) {
		v := Coerce(s)
		existing, ok := rec.values[key]
		switch {
		case !ok:
			rec.keys = append(rec.keys, key)
			rec.values[key] = v
			if s = strings.TrimSpace(s); s != "" {
				rec.text[key] = s
			}
		case repeated[key]:
			rec.values[key] = append(existing.([]any), v)
		default:
			repeated[key] = true
			rec.values[key] = []any{existing, v}
			delete(rec.text, key)
		}
	}

	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		add(AttributePrefix+a.Name.Local, a.Value)
	}

	var text strings.Builder
	hasChildren := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return rec, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			hasChildren = true
			s, err := elementText(dec)
			if err != nil {
				return rec, err
			}
			add(t.Name.Local, s)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if !hasChildren && strings.TrimSpace(text.String()) != "" {
				add(TextField, text.String())
			}
			return rec, nil
		}
	}
}

// elementText returns the concatenated character data of the element whose
// start tag was just read, consuming through its end tag.
func elementText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// unionKeys returns every key across records in first-seen order.
func unionKeys(records []keyedRecord) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, rec := range records {
		for _, k := range rec.keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
