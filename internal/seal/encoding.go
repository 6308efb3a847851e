package seal

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrEncoding is returned for encodings the text codec does not support.
var ErrEncoding = errors.New("seal: unsupported encoding")

func lookup(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrEncoding, name)
	}
	return enc, nil
}

// Encode converts text to the named character set. Characters the set
// cannot represent become its substitute byte (0x1A for single-byte code
// pages).
func Encode(text, charset string) ([]byte, error) {
	enc, err := lookup(charset)
	if err != nil {
		return nil, err
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("seal: encode %s: %w", charset, err)
	}
	return out, nil
}

// Decode converts bytes in the named character set back to UTF-8.
func Decode(b []byte, charset string) (string, error) {
	enc, err := lookup(charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("seal: decode %s: %w", charset, err)
	}
	return string(out), nil
}
