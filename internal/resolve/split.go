package resolve

import (
	"errors"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

var ErrUnterminatedQuote = errors.New("unterminated quote in command")

// Split breaks a command string into argv using POSIX shell quoting rules
// for single quotes, double quotes and backslash escapes. Expansions are not
// performed.
func Split(command string) ([]string, error) {
	argv, _, err := split(command, -1)
	return argv, err
}

// Join quotes argv so that Split(Join(argv)) == argv.
func Join(argv []string) string { return shellescape.QuoteCommand(argv) }

// splitFirst returns the first token and the untouched remainder of command.
func splitFirst(command string) (string, string, error) {
	argv, end, err := split(command, 1)
	if err != nil {
		return "", "", err
	}
	if len(argv) == 0 {
		return "", "", nil
	}
	return argv[0], command[end:], nil
}

// split tokenizes up to limit tokens (limit < 0 means all) and returns the
// byte offset just past the last consumed token.
func split(s string, limit int) ([]string, int, error) {
	var (
		argv    []string
		cur     strings.Builder
		inToken bool
		quote   byte
		end     int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case quote == '"':
			switch {
			case c == '"':
				quote = 0
			case c == '\\' && i+1 < len(s) && strings.IndexByte("\"\\$`", s[i+1]) >= 0:
				i++
				cur.WriteByte(s[i])
			default:
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inToken = true
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
			inToken = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inToken {
				argv = append(argv, cur.String())
				cur.Reset()
				inToken = false
				end = i
				if limit > 0 && len(argv) == limit {
					return argv, end, nil
				}
			}
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, 0, ErrUnterminatedQuote
	}
	if inToken {
		argv = append(argv, cur.String())
		end = len(s)
	}
	return argv, end, nil
}
