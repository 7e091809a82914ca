package intent

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseArguments turns the text between a pseudo-call's parentheses into
// an argument map. Text that is already a valid JSON object body is used
// as is. Otherwise single-quoted strings are rewritten with double quotes
// and bare keys (key: v or key=v) are quoted. Values keep the JSON type
// they were written with.
func ParseArguments(raw string) (map[string]any, error) {
	body := "{" + strings.TrimSpace(raw) + "}"
	if !gjson.Valid(body) {
		body = repairObject(body)
		if !gjson.Valid(body) {
			return nil, errInvalidJSON
		}
	}
	obj, ok := gjson.Parse(body).Value().(map[string]any)
	if !ok {
		return nil, errInvalidJSON
	}
	return obj, nil
}

var errInvalidJSON = errors.New("arguments are not a JSON object")

// repairObject quotes bare keys and normalizes string quoting. String
// literals are copied through untouched apart from their delimiters.
func repairObject(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	atKey := false
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			i = copyString(&b, s, i)
			atKey = false
			continue
		case c == '{' || c == ',':
			atKey = true
		case isSpace(c):
		case atKey && isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && (s[k] == ':' || s[k] == '=') {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteString(`":`)
				i = k + 1
				atKey = false
				continue
			}
			atKey = false
		default:
			atKey = false
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// copyString writes the string literal starting at s[start] as a
// double-quoted JSON string and returns the index just past it.
// An unterminated literal runs to the end of s.
func copyString(b *strings.Builder, s string, start int) int {
	quote := s[start]
	b.WriteByte('"')
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			if s[i+1] == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
			}
			i++
		case c == quote:
			b.WriteByte('"')
			return i + 1
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	return len(s)
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || (c >= '0' && c <= '9') }
