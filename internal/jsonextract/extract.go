// Package jsonextract pulls the first balanced JSON value out of noisy model output.
//
// Language models wrap JSON in markdown fences, prepend explanations or get cut off
// mid-object when they hit their token budget. Extract handles all three: it strips
// fences, scans for the first balanced object or array while honoring string
// literals, and reports parse failures with enough context (length, offset, excerpt)
// to tell a truncated response from a malformed one.
package jsonextract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Shape selects which kind of JSON value to look for.
type Shape int

const (
	// Any accepts whichever of an object or array appears first.
	Any Shape = iota
	Object
	Array
)

func (s Shape) String() string {
	switch s {
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "value"
	}
}

const excerptRadius = 40

var (
	// ErrNoJSON is returned when the text contains no opening bracket of the requested shape.
	ErrNoJSON = errors.New("no JSON value found")
	// ErrUnbalanced is returned when the text ends before the value is closed.
	ErrUnbalanced = errors.New("unexpected end of JSON input")
	// ErrMismatched is returned when a closing bracket does not match its opener.
	ErrMismatched = errors.New("mismatched closing bracket")
)

// ParseError describes why the extracted text could not be decoded.
type ParseError struct {
	Cause   error
	Length  int
	Offset  int
	Excerpt string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonextract: %v (length=%d, offset=%d, excerpt=%q)", e.Cause, e.Length, e.Offset, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Truncated reports whether the failure looks like output cut off before completion.
func (e *ParseError) Truncated() bool {
	if errors.Is(e.Cause, ErrUnbalanced) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(e.Cause, &syntaxErr) {
		return strings.Contains(syntaxErr.Error(), "unexpected end of JSON input")
	}
	return false
}

// IsTruncated reports whether err wraps a ParseError for output that was cut off.
func IsTruncated(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr) && perr.Truncated()
}

// Extract locates the first balanced JSON value of the given shape in raw and decodes it into v.
func Extract(raw string, shape Shape, v any) error {
	slice, err := Slice(raw, shape)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(slice), v); err != nil {
		return newParseError(slice, err, decodeOffset(err, len(slice)))
	}
	return nil
}

// Slice returns the substring holding the first balanced JSON value of the given shape.
func Slice(raw string, shape Shape) (string, error) {
	text := StripFences(raw)
	start := findStart(text, shape)
	if start < 0 {
		return "", newParseError(text, fmt.Errorf("%w: expected %s", ErrNoJSON, shape), 0)
	}

	end, err := scanBalanced(text, start)
	if err != nil {
		candidate := text[start:]
		offset := len(candidate)
		if end >= 0 {
			offset = end - start
		}
		return "", newParseError(candidate, err, offset)
	}
	return text[start : end+1], nil
}

// StripFences removes a surrounding markdown code fence, with or without a language tag.
// Prose before the opening fence and after the closing fence is dropped as well. A "```"
// that appears only after the first bracket belongs to the value and is left alone.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	if bracket := strings.IndexAny(text, "{["); bracket >= 0 && bracket < open {
		return text
	}
	rest := text[open+3:]
	// Skip the language tag ("json", "JSON", "javascript") if present.
	i := 0
	for i < len(rest) && isTagChar(rest[i]) {
		i++
	}
	rest = rest[i:]
	if closeIdx := strings.LastIndex(rest, "```"); closeIdx >= 0 {
		rest = rest[:closeIdx]
	}
	return strings.TrimSpace(rest)
}

func isTagChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func findStart(text string, shape Shape) int {
	switch shape {
	case Object:
		return strings.IndexByte(text, '{')
	case Array:
		return strings.IndexByte(text, '[')
	default:
		return strings.IndexAny(text, "{[")
	}
}

// scanBalanced walks text from start and returns the index of the bracket closing the
// value opened at start. Brackets inside string literals are ignored. On failure it
// returns the offending index (or -1 when the input simply ran out) and an error.
func scanBalanced(text string, start int) (int, error) {
	stack := make([]byte, 0, 16)
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return i, fmt.Errorf("%w %q at offset %d", ErrMismatched, c, i-start)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: %d unclosed bracket(s)", ErrUnbalanced, len(stack))
}

func decodeOffset(err error, fallback int) int {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return int(syntaxErr.Offset)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return int(typeErr.Offset)
	}
	return fallback
}

func newParseError(text string, cause error, offset int) *ParseError {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	return &ParseError{
		Cause:   cause,
		Length:  len(text),
		Offset:  offset,
		Excerpt: excerpt(text, offset),
	}
}

func excerpt(text string, offset int) string {
	from := offset - excerptRadius
	if from < 0 {
		from = 0
	}
	to := offset + excerptRadius
	if to > len(text) {
		to = len(text)
	}
	return strings.ToValidUTF8(text[from:to], "")
}
