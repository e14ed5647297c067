package record

import (
	"strings"

	"github.com/justapithecus/tankreplay/types"
)

// nonFinite lists bare tokens that are not valid JSON numbers, longest
// literal first so "-Infinity" wins over "Infinity".
var nonFinite = []struct {
	literal     string
	placeholder string
}{
	{"-Infinity", types.NegativeUnbounded},
	{"+Infinity", types.PositiveUnbounded},
	{"Infinity", types.PositiveUnbounded},
	{"NaN", types.NotANumber},
}

// Sanitize rewrites bare Infinity, -Infinity and NaN tokens into quoted
// placeholders so the line decodes. Text inside string literals is left
// untouched.
func Sanitize(line string) string {
	if !strings.Contains(line, "Infinity") && !strings.Contains(line, "NaN") {
		return line
	}

	var b strings.Builder
	b.Grow(len(line) + 8)

	inString, escaped := false, false
	for i := 0; i < len(line); {
		c := line[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			i++
			continue
		}
		if literal, placeholder, ok := nonFiniteAt(line, i); ok {
			b.WriteByte('"')
			b.WriteString(placeholder)
			b.WriteByte('"')
			i += len(literal)
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func nonFiniteAt(s string, i int) (literal, placeholder string, ok bool) {
	if i > 0 && isTokenByte(s[i-1]) {
		return "", "", false
	}
	for _, nf := range nonFinite {
		if !strings.HasPrefix(s[i:], nf.literal) {
			continue
		}
		end := i + len(nf.literal)
		if end < len(s) && isTokenByte(s[end]) {
			continue
		}
		return nf.literal, nf.placeholder, true
	}
	return "", "", false
}

func isTokenByte(c byte) bool {
	return c == '_' || c == '.' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
