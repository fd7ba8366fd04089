package rewriter

import (
	"strings"
)

type scanState uint8

const (
	stateNormal scanState = iota
	stateString
	stateLineComment
	stateBlockComment
	stateTemplate
	stateRegexp
)

// keywords after which a `/` starts a regular expression literal
var regexpKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true, "new": true,
	"delete": true, "void": true, "throw": true, "case": true, "do": true, "else": true,
	"yield": true, "await": true,
}

// regexpAllowed reports whether a `/` following the scanned output starts a regular
// expression literal rather than a division.
func regexpAllowed(out string) bool {
	i := len(out) - 1
	for i >= 0 && (out[i] == ' ' || out[i] == '\t' || out[i] == '\n' || out[i] == '\r') {
		i--
	}
	if i < 0 {
		return true
	}
	c := out[i]
	switch {
	case c == ')' || c == ']' || c == '"' || c == '\'' || c == '`':
		return false
	case (c == '+' || c == '-') && i > 0 && out[i-1] == c:
		// postfix increment or decrement
		return false
	case isIdentByte(c):
		end := i + 1
		for i >= 0 && isIdentByte(out[i]) {
			i--
		}
		return regexpKeywords[out[i+1:end]]
	}
	return true
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// StripComments removes line and block comments from the JavaScript source.
// Quote characters and comment markers inside string literals and template literals
// (including nested `${...}` expressions) and regular expression literals are left
// untouched. The line break that ends a line comment is kept.
func StripComments(src string) string {
	var (
		buf   strings.Builder
		state = stateNormal
		quote byte
		// brace depth of every open `${` expression, innermost last
		exprs []int
		// inside a `[...]` class of a regular expression literal
		class bool
	)
	buf.Grow(len(src))
	n := len(src)
	for i := 0; i < n; i++ {
		c := src[i]
		var next byte
		if i+1 < n {
			next = src[i+1]
		}
		switch state {
		case stateLineComment:
			if c == '\n' || c == '\r' {
				state = stateNormal
				buf.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		case stateString:
			buf.WriteByte(c)
			if c == '\\' && i+1 < n {
				buf.WriteByte(next)
				i++
			} else if c == quote {
				state = stateNormal
			}
		case stateRegexp:
			buf.WriteByte(c)
			switch {
			case c == '\\' && i+1 < n && next != '\n':
				buf.WriteByte(next)
				i++
			case c == '\n' || c == '\r':
				// unterminated literal
				state = stateNormal
			case c == '[':
				class = true
			case c == ']':
				class = false
			case c == '/' && !class:
				state = stateNormal
			}
		case stateTemplate:
			buf.WriteByte(c)
			if c == '\\' && i+1 < n {
				buf.WriteByte(next)
				i++
			} else if c == '`' {
				state = stateNormal
			} else if c == '$' && next == '{' {
				buf.WriteByte(next)
				i++
				exprs = append(exprs, 0)
				state = stateNormal
			}
		default:
			switch {
			case c == '/' && next == '/':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			case c == '/' && regexpAllowed(buf.String()):
				buf.WriteByte(c)
				class = false
				state = stateRegexp
			case c == '"' || c == '\'':
				buf.WriteByte(c)
				quote = c
				state = stateString
			case c == '`':
				buf.WriteByte(c)
				state = stateTemplate
			case c == '{' && len(exprs) > 0:
				buf.WriteByte(c)
				exprs[len(exprs)-1]++
			case c == '}' && len(exprs) > 0:
				buf.WriteByte(c)
				if depth := exprs[len(exprs)-1]; depth > 0 {
					exprs[len(exprs)-1] = depth - 1
				} else {
					// end of a template expression, back into the template
					exprs = exprs[:len(exprs)-1]
					state = stateTemplate
				}
			default:
				buf.WriteByte(c)
			}
		}
	}
	return buf.String()
}
