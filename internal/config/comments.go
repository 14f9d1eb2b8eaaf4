package config

import "errors"

var errUnterminatedComment = errors.New("unterminated /* comment")

// stripJSONComments removes // line comments and /* block */ comments that
// appear outside string literals. Removed bytes are replaced by spaces (line
// breaks are kept) so decoder offsets still point at the right line.
func stripJSONComments(in []byte) ([]byte, error) {
	out := make([]byte, len(in))
	copy(out, in)

	inString := false
	escaped := false
	for i := 0; i < len(out); i++ {
		c := out[i]
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
		switch {
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			closed := false
			for ; i < len(out); i++ {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					closed = true
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
			if !closed {
				return nil, errUnterminatedComment
			}
		}
	}
	return out, nil
}
