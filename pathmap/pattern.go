package pathmap

import (
	"errors"
	"regexp"
	"strings"
)

// Wildcard is the marker that matches any run of characters in a segment.
const Wildcard = '%'

var (
	errEmpty      = errors.New("empty pattern")
	errParent     = errors.New("parent segment not allowed")
	errUnbalanced = errors.New("unbalanced parentheses")
)

// Pattern is a compiled wildcard path pattern. It is immutable and safe for
// concurrent use.
type Pattern struct {
	source   string
	segments []segment
}

// segment is one compiled path component.
type segment struct {
	// text is the raw segment source.
	text string
	// literal is set when text holds no wildcard or group and matches by equality.
	literal bool
	// re matches the whole component.
	re *regexp.Regexp
}

// match reports whether name matches the segment and returns its captures.
func (s segment) match(name string) ([]string, bool) {
	if s.literal {
		return nil, name == s.text
	}
	sub := s.re.FindStringSubmatch(name)
	if sub == nil {
		return nil, false
	}
	if len(sub) == 1 {
		return nil, true
	}
	return sub[1:], true
}

// Compile parses a "/"-separated wildcard pattern.
//
// Outside parentheses a segment is literal text and "%" becomes a capturing
// wildcard. Inside a parenthesised group the text is a regular expression and
// "%" becomes a non-capturing ".*". A backslash outside a group escapes the
// next character.
func Compile(pattern string) (*Pattern, error) {
	var segs []segment
	for _, part := range strings.Split(pattern, "/") {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			return nil, &InvalidPatternError{Pattern: pattern, Segment: part, Err: errParent}
		}
		seg, err := compileSegment(part)
		if err != nil {
			return nil, &InvalidPatternError{Pattern: pattern, Segment: part, Err: err}
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return nil, &InvalidPatternError{Pattern: pattern, Err: errEmpty}
	}
	return &Pattern{source: pattern, segments: segs}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.source }

// Len returns the number of segments.
func (p *Pattern) Len() int { return len(p.segments) }

// NumCaptures returns the number of captures a full match produces.
func (p *Pattern) NumCaptures() int {
	n := 0
	for _, s := range p.segments {
		if s.re != nil {
			n += s.re.NumSubexp()
		}
	}
	return n
}

func compileSegment(text string) (segment, error) {
	if !strings.ContainsAny(text, "%()\\") {
		return segment{text: text, literal: true}, nil
	}

	expr, err := translate(text)
	if err != nil {
		return segment{}, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return segment{}, err
	}
	return segment{text: text, re: re}, nil
}

// translate turns one segment into an anchored regular expression.
func translate(text string) (string, error) {
	var out, lit strings.Builder
	out.WriteString("(?s)^")

	flush := func() {
		if lit.Len() > 0 {
			out.WriteString(regexp.QuoteMeta(lit.String()))
			lit.Reset()
		}
	}

	depth := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if depth == 0 {
			switch c {
			case '\\':
				if i+1 < len(text) {
					i++
					lit.WriteByte(text[i])
				} else {
					lit.WriteByte(c)
				}
			case Wildcard:
				flush()
				out.WriteString("(.*)")
			case '(':
				flush()
				out.WriteByte(c)
				depth++
			case ')':
				return "", errUnbalanced
			default:
				lit.WriteByte(c)
			}
			continue
		}

		switch c {
		case '\\':
			out.WriteByte(c)
			if i+1 < len(text) {
				i++
				out.WriteByte(text[i])
			}
		case '[':
			end := classEnd(text, i)
			out.WriteString(text[i:end])
			i = end - 1
		case Wildcard:
			out.WriteString(".*")
		case '(':
			out.WriteByte(c)
			depth++
		case ')':
			out.WriteByte(c)
			depth--
		default:
			out.WriteByte(c)
		}
	}
	if depth != 0 {
		return "", errUnbalanced
	}
	flush()
	out.WriteByte('$')
	return out.String(), nil
}

// classEnd returns the index just past the character class starting at
// text[start]. An unterminated class runs to the end and is left for the
// regexp compiler to reject.
func classEnd(text string, start int) int {
	i := start + 1
	if i < len(text) && text[i] == '^' {
		i++
	}
	if i < len(text) && text[i] == ']' {
		i++
	}
	for ; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case ']':
			return i + 1
		}
	}
	return len(text)
}
