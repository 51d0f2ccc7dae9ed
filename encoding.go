package magma

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// byteOrderMark is U+FEFF as it appears at the start of decoded text.
const byteOrderMark = "\uFEFF"

// lookupEncoding resolves an encoding label such as "utf-8", "utf8",
// "latin1" or "windows-1252".
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}

// decode converts raw bytes in the named encoding to text and strips one
// leading byte-order mark.
func decode(raw []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	text, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return strings.TrimPrefix(string(text), byteOrderMark), nil
}

// encode converts text to bytes in the named encoding.
func encode(text, name string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewEncoder().String(text)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return []byte(out), nil
}
