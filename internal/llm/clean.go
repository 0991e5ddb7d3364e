// internal/llm/clean.go
package llm

import (
	"encoding/json"
	"strings"
	"unicode"
)

var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```JSON", "",
	"```", "",
	"\ufeff", "",
	"\u00a0", " ",
	"\u2028", "\n",
	"\u2029", "\n",
)

// Full-width punctuation some models emit outside strings.
var structuralPunctuation = map[rune]rune{
	'：': ':',
	'，': ',',
	'【': '[',
	'】': ']',
	'［': '[',
	'］': ']',
	'｛': '{',
	'｝': '}',
}

// CleanJSON extracts the first balanced JSON object or array from model
// output, dropping code fences, prose before and after, zero-width and
// control characters. Brackets in leading prose are skipped when a later
// candidate is valid JSON. Text without any bracket is returned trimmed so
// the caller's decoder reports the failure.
func CleanJSON(s string) string {
	s = jsonNoiseReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{［｛【")
	if start == -1 {
		return s
	}
	s = normalizeStructure(s[start:])

	first := ""
	for pos := 0; pos < len(s); {
		i := strings.IndexAny(s[pos:], "[{")
		if i == -1 {
			break
		}
		candidate, end, balanced := balancedPrefix(s[pos+i:])
		if json.Valid([]byte(candidate)) {
			return candidate
		}
		if pos == 0 {
			first = candidate
		}
		if !balanced {
			break
		}
		pos += i + end
	}
	return first
}

// balancedPrefix returns the bracketed value at the start of s and the byte
// offset just past it. Unbalanced input falls back to the last closing
// bracket and reports balanced as false.
func balancedPrefix(s string) (value string, end int, balanced bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[:i+1]), i + 1, true
			}
		}
	}

	if end := strings.LastIndexAny(s, "}]"); end != -1 {
		return strings.TrimSpace(s[:end+1]), len(s), false
	}
	return strings.TrimSpace(s), len(s), false
}

// normalizeStructure maps full-width punctuation outside strings to ASCII.
func normalizeStructure(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			b.WriteRune(r)
			continue
		}
		if r == '"' {
			inString = true
		} else if repl, ok := structuralPunctuation[r]; ok {
			r = repl
		}
		b.WriteRune(r)
	}
	return b.String()
}
