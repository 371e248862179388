package pathmap

import (
	"strconv"
	"strings"
)

// Remap substitutes placeholders in template.
//
// "$N" (N >= 1) is replaced by m.Captures[N-1]; positions out of range,
// including "$0", become the empty string. "$name" is replaced by
// params[name] and fails with an *UnresolvedPlaceholderError when the name is
// absent. "${...}" delimits either form. A "$" that starts neither form is
// copied as is.
func Remap(m Match, template string, params map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		tok, n, ok := scanToken(template[i:])
		if !ok {
			if n > 0 {
				return "", &UnresolvedPlaceholderError{Template: template, Token: template[i:]}
			}
			b.WriteByte(template[i])
			i++
			continue
		}

		if isDigit(tok[0]) {
			b.WriteString(positional(m.Captures, tok))
		} else {
			v, found := params[tok]
			if !found {
				return "", &UnresolvedPlaceholderError{Template: template, Token: template[i : i+n]}
			}
			b.WriteString(v)
		}
		i += n
	}
	return b.String(), nil
}

// Placeholders returns the tokens referenced by template in order of
// appearance, without the "$" or braces. Malformed tokens are ignored.
func Placeholders(template string) []string {
	var out []string
	for i := 0; i < len(template); {
		tok, n, ok := scanToken(template[i:])
		if !ok {
			i++
			continue
		}
		out = append(out, tok)
		i += n
	}
	return out
}

// scanToken reads a placeholder at the start of s. It returns the token
// name, the number of bytes consumed, and whether a token was found. A
// malformed braced token reports ok=false with n>0.
func scanToken(s string) (tok string, n int, ok bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", 0, false
	}

	switch c := s[1]; {
	case c == '{':
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return "", len(s), false
		}
		name := s[2:end]
		if !validToken(name) {
			return "", end + 1, false
		}
		return name, end + 1, true
	case isDigit(c):
		j := 2
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		return s[1:j], j, true
	case isLetter(c):
		j := 2
		for j < len(s) && (isLetter(s[j]) || isDigit(s[j]) || s[j] == '_') {
			j++
		}
		return s[1:j], j, true
	}
	return "", 0, false
}

func positional(captures []string, tok string) string {
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 1 || idx > len(captures) {
		return ""
	}
	return captures[idx-1]
}

func validToken(name string) bool {
	if name == "" {
		return false
	}
	if isDigit(name[0]) {
		for i := 1; i < len(name); i++ {
			if !isDigit(name[i]) {
				return false
			}
		}
		return true
	}
	if !isLetter(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isLetter(name[i]) && !isDigit(name[i]) && name[i] != '_' {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
