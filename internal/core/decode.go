package core

// decode.go normalizes raw upload bytes to UTF-8 before parsing.
//
// Without an explicit encoding the input is treated as UTF-8: a UTF-8 or
// UTF-16 byte order mark switches the decoder, and invalid sequences become
// U+FFFD instead of failing the parse. Any WHATWG label (latin1,
// windows-1252, shift_jis, utf-16le, ...) can be named explicitly.

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

func isUTF8Label(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8", "unicode-1-1-utf-8":
		return true
	}
	return false
}

// decoderFor returns a transformer for label that still honours a BOM.
func decoderFor(format Format, label string) (transform.Transformer, error) {
	if isUTF8Label(label) {
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	}
	enc, err := htmlindex.Get(strings.TrimSpace(label))
	if err != nil {
		return nil, parseErr(format, "PARSE006", "unknown encoding "+label, err)
	}
	return unicode.BOMOverride(enc.NewDecoder()), nil
}

// decodeText converts content in the named encoding to a UTF-8 string.
func decodeText(format Format, content []byte, label string) (string, error) {
	t, err := decoderFor(format, label)
	if err != nil {
		return "", err
	}
	out, _, err := transform.Bytes(t, content)
	if err != nil {
		return "", parseErr(format, "PARSE006", "decode "+label, err)
	}
	return string(out), nil
}

// hasUTF16BOM reports whether content starts with a UTF-16 byte order mark.
func hasUTF16BOM(content []byte) bool {
	return bytes.HasPrefix(content, utf16LEBOM) || bytes.HasPrefix(content, utf16BEBOM)
}

// passthroughCharset is used once the input has already been decoded, so the
// document's own encoding declaration must not be applied a second time.
func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

// declaredCharset decodes markup according to its own encoding declaration.
func declaredCharset(label string, input io.Reader) (io.Reader, error) {
	if isUTF8Label(label) {
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
