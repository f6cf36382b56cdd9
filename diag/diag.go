package diag

import (
	"regexp"
	"strings"
	"unicode"
)

// Level is the severity of a diagnostic. The zero value is an undefined
// level, used for messages the engine did not classify.
type Level string

const (
	LevelUndefined Level = ""
	LevelError     Level = "error"
	LevelWarning   Level = "warning"
)

// Message is a single diagnostic.
type Message struct {
	Message string `json:"message"`
	Level   Level  `json:"level,omitempty"`
}

const (
	sentinelError     = "Error"
	sentinelWarning   = "Warning"
	sentinelSeparator = ": "
)

var (
	errorLine   = regexp.MustCompile(`^Error: (.*)`)
	warningLine = regexp.MustCompile(`^Warning: (.*)`)
)

// ParseTokens decodes the sentinel token stream. The level set by a
// sentinel applies to every following token until the next sentinel.
func ParseTokens(tokens []string) []Message {
	var (
		msgs  []Message
		level = LevelUndefined
	)

	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) && tokens[i+1] == sentinelSeparator {
			switch tokens[i] {
			case sentinelError:
				level = LevelError
				i++
				continue
			case sentinelWarning:
				level = LevelWarning
				i++
				continue
			}
		}

		msgs = append(msgs, Message{
			Message: trimEnd(tokens[i]),
			Level:   level,
		})
	}

	return msgs
}

// ParseLines decodes stderr lines, one message per line. Prefixes are
// matched against the raw line; only trailing whitespace is trimmed.
func ParseLines(lines []string) []Message {
	msgs := make([]Message, 0, len(lines))

	for _, line := range lines {
		if m := errorLine.FindStringSubmatch(line); m != nil {
			msgs = append(msgs, Message{Message: trimEnd(m[1]), Level: LevelError})
		} else if m := warningLine.FindStringSubmatch(line); m != nil {
			msgs = append(msgs, Message{Message: trimEnd(m[1]), Level: LevelWarning})
		} else {
			msgs = append(msgs, Message{Message: trimEnd(line)})
		}
	}

	return msgs
}

func trimEnd(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// Parse decodes both channels, token messages first.
func Parse(tokens, lines []string) []Message {
	msgs := ParseTokens(tokens)
	return append(msgs, ParseLines(lines)...)
}

// FirstError returns the first error-level message, if any.
func FirstError(msgs []Message) (Message, bool) {
	for _, m := range msgs {
		if m.Level == LevelError {
			return m, true
		}
	}
	return Message{}, false
}
