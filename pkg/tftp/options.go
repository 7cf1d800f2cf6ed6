package tftp

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Option is a single (key, value) pair from a request's or OACK's option
// list. Keys are matched case-insensitively on decode but are preserved
// verbatim as encoded by the caller.
type Option struct {
	Key   string
	Value string
}

// EncodeOptions appends the null-terminated key/value pairs to b, in order.
func EncodeOptions(b *bytes.Buffer, opts []Option) error {
	for _, opt := range opts {
		if err := writeCString(b, opt.Key); err != nil {
			return fmt.Errorf("error while writing option key %q: %w", opt.Key, err)
		}

		if err := writeCString(b, opt.Value); err != nil {
			return fmt.Errorf("error while writing option value %q: %w", opt.Value, err)
		}
	}

	return nil
}

// DecodeOptions reads null-terminated key/value pairs from the remainder of
// a buffer previously positioned past filename/mode (or past the request
// header, for OACK). Duplicate keys take the last value, matching the
// negotiator contract in spec §4.1.
func DecodeOptions(b *bytes.Buffer) ([]Option, error) {
	var opts []Option

	seen := make(map[string]int)

	for b.Len() > 0 {
		key, err := readCString(b)
		if err != nil {
			return nil, fmt.Errorf("error while reading option key: %w", err)
		}

		val, err := readCString(b)
		if err != nil {
			return nil, fmt.Errorf("error while reading option value for %q: %w", key, err)
		}

		if !isPrintableToken(key) || !isPrintableToken(val) {
			return nil, ErrMalformedPacket
		}

		lowered := strings.ToLower(key)

		if idx, ok := seen[lowered]; ok {
			opts[idx].Value = val

			continue
		}

		seen[lowered] = len(opts)
		opts = append(opts, Option{Key: key, Value: val})
	}

	return opts, nil
}

// OptionValue returns the value of the first option whose key matches name
// case-insensitively.
func OptionValue(opts []Option, name string) (string, bool) {
	for _, opt := range opts {
		if strings.EqualFold(opt.Key, name) {
			return opt.Value, true
		}
	}

	return "", false
}

func writeCString(b *bytes.Buffer, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrEmbeddedNul
	}

	if _, err := b.WriteString(s); err != nil {
		return err
	}

	return b.WriteByte(0)
}

func readCString(b *bytes.Buffer) (string, error) {
	s, err := b.ReadString(0)
	if err != nil {
		return "", ErrMalformedPacket
	}

	return strings.TrimSuffix(s, "\x00"), nil
}

// ValidateFilename enforces spec §4.1: UTF-8, no embedded NUL, length in
// [1, 255], printable.
func ValidateFilename(name string) error {
	if len(name) > 255 || !utf8.ValidString(name) {
		return ErrMalformedPacket
	}

	return validatePrintableToken(name)
}

// isPrintableToken reports whether s is a non-empty, printable, NUL-free
// token, the shape spec.md:60 requires of every decoded option key/value.
func isPrintableToken(s string) bool {
	return validatePrintableToken(s) == nil
}

func validatePrintableToken(s string) error {
	if len(s) < 1 {
		return ErrMalformedPacket
	}

	for _, r := range s {
		if r == 0 || !unicode.IsPrint(r) {
			return ErrMalformedPacket
		}
	}

	return nil
}
