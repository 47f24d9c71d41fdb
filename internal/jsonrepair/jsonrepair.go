// Package jsonrepair extracts and repairs "nearly JSON" text returned by an
// LLM before it is parsed. Model output routinely wraps JSON in markdown
// fences, trails commentary, or leaves a dangling comma — this package
// tolerates the common defects without attempting a full parser.
package jsonrepair

import (
	"errors"
	"strings"
)

// ErrNoBalancedSpan means no balanced '[' or '{' span was found in s.
var ErrNoBalancedSpan = errors.New("jsonrepair: no balanced JSON span found")

// ExtractArray returns the first balanced top-level '[' ... ']' substring.
func ExtractArray(s string) (string, error) { return extractBalanced(s, '[', ']') }

// ExtractObject returns the first balanced top-level '{' ... '}' substring.
func ExtractObject(s string) (string, error) { return extractBalanced(s, '{', '}') }

func extractBalanced(s string, open, close byte) (string, error) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", ErrNoBalancedSpan
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoBalancedSpan
}

// Repair tolerates the defects most commonly seen in LLM JSON output:
// trailing commas before a closing bracket/brace, unescaped newlines inside
// string values, and curly quotes. Curly quotes are replaced by their
// straight counterparts everywhere in s, including inside string values.
func Repair(s string) string {
	s = strings.ReplaceAll(s, "“", "\"")
	s = strings.ReplaceAll(s, "”", "\"")
	s = strings.ReplaceAll(s, "‘", "'")
	s = strings.ReplaceAll(s, "’", "'")
	s = stripTrailingCommas(s)
	return s
}

// stripTrailingCommas removes a comma that appears immediately before a
// closing ] or }, ignoring whitespace, when outside of a string literal,
// and escapes raw newline/carriage-return characters inside string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if inString {
			if !escaped && c == '\n' {
				b.WriteString(`\n`)
				continue
			}
			if !escaped && c == '\r' {
				b.WriteString(`\r`)
				continue
			}
			b.WriteRune(c)
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
		if c == '"' {
			inString = true
			b.WriteRune(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\n' || runes[j] == '\t' || runes[j] == '\r') {
				j++
			}
			if j < len(runes) && (runes[j] == ']' || runes[j] == '}') {
				continue // drop this trailing comma
			}
		}
		b.WriteRune(c)
	}
	return b.String()
}
