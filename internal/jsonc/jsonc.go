package jsonc

import (
	"github.com/goccy/go-json"
)

// Strip blanks out the comments and trailing commas of a JSONC document. Line breaks
// and offsets are kept, a parser reports errors at the positions of the input.
func Strip(src []byte) []byte {
	dst := make([]byte, len(src))
	copy(dst, src)
	lastComma := -1
	for i := 0; i < len(dst); i++ {
		switch c := dst[i]; {
		case c == '"':
			lastComma = -1
			for i++; i < len(dst) && dst[i] != '"'; i++ {
				if dst[i] == '\\' {
					i++
				}
			}
		case c == '/' && i+1 < len(dst) && dst[i+1] == '/':
			for ; i < len(dst) && dst[i] != '\n'; i++ {
				blank(dst, i)
			}
		case c == '/' && i+1 < len(dst) && dst[i+1] == '*':
			blank(dst, i)
			blank(dst, i+1)
			for i += 2; i < len(dst); i++ {
				if dst[i] == '*' && i+1 < len(dst) && dst[i+1] == '/' {
					blank(dst, i)
					blank(dst, i+1)
					i++
					break
				}
				blank(dst, i)
			}
		case c == ',':
			lastComma = i
		case c == '}' || c == ']':
			if lastComma >= 0 {
				dst[lastComma] = ' '
			}
			lastComma = -1
		case c > ' ':
			lastComma = -1
		}
	}
	return dst
}

// blank replaces the byte with a space, line breaks and tabs are kept.
func blank(b []byte, i int) {
	if b[i] != '\n' && b[i] != '\r' && b[i] != '\t' {
		b[i] = ' '
	}
}

// Unmarshal parses the JSONC data into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(Strip(data), v)
}
