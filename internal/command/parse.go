package command

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned for a line with an open quote.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Command is a parsed console line such as `/new secondary "~/my code" -- make`.
//
// Arguments follow POSIX shell quoting: single quotes are literal, double
// quotes honour backslash escapes, and a backslash outside quotes escapes the
// next character. An unquoted `--` ends the arguments; everything after it
// is kept verbatim as the startup command.
type Command struct {
	Name    string
	Args    []string
	Raw     string
	Command string

	// ends[0] is the offset in Raw just past the name, ends[i+1] just past
	// Args[i]; argsEnd is where the arguments stop.
	ends    []int
	argsEnd int
}

// Parse parses a line and returns a Command if it starts with "/".
func Parse(input string) (Command, bool, error) {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false, nil
	}
	raw := strings.TrimSpace(trimmed[1:])
	cmd := Command{Raw: raw, argsEnd: len(raw)}
	pos := 0
	for {
		start := skipSpace(raw, pos)
		if start >= len(raw) {
			break
		}
		if len(cmd.ends) > 0 && isSeparator(raw, start) {
			cmd.Command = strings.TrimSpace(raw[start+2:])
			cmd.argsEnd = start
			break
		}
		word, end, err := scanWord(raw, start)
		if err != nil {
			return cmd, true, err
		}
		pos = end
		if len(cmd.ends) == 0 {
			cmd.Name = strings.ToLower(word)
		} else {
			cmd.Args = append(cmd.Args, word)
		}
		cmd.ends = append(cmd.ends, end)
	}
	return cmd, true, nil
}

// Text returns argument n when it is the last one, otherwise the unparsed
// text from argument n onwards. `/rename 1 build logs` and
// `/rename 1 "build logs"` name the tab the same way.
func (c Command) Text(n int) string {
	switch {
	case n < 0 || n >= len(c.Args):
		return ""
	case n == len(c.Args)-1:
		return c.Args[n]
	default:
		return strings.TrimSpace(c.Raw[c.ends[n]:c.argsEnd])
	}
}

func isSeparator(raw string, i int) bool {
	return strings.HasPrefix(raw[i:], "--") && (i+2 == len(raw) || isSpace(raw[i+2]))
}

func scanWord(raw string, i int) (string, int, error) {
	var b strings.Builder
	for i < len(raw) && !isSpace(raw[i]) {
		switch c := raw[i]; c {
		case '\'':
			end := strings.IndexByte(raw[i+1:], '\'')
			if end < 0 {
				return "", len(raw), ErrUnterminatedQuote
			}
			b.WriteString(raw[i+1 : i+1+end])
			i += end + 2
		case '"':
			i++
			closed := false
			for i < len(raw) {
				if raw[i] == '"' {
					closed = true
					i++
					break
				}
				if raw[i] == '\\' && i+1 < len(raw) && strings.IndexByte(`"\$`+"`", raw[i+1]) >= 0 {
					i++
				}
				b.WriteByte(raw[i])
				i++
			}
			if !closed {
				return "", len(raw), ErrUnterminatedQuote
			}
		case '\\':
			if i+1 < len(raw) {
				i++
			}
			b.WriteByte(raw[i])
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i, nil
}

func skipSpace(raw string, i int) int {
	for i < len(raw) && isSpace(raw[i]) {
		i++
	}
	return i
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
