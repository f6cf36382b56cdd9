package diag

import (
	"bytes"
	"strings"
	"sync"
)

// Buffer collects the token and line channels for one engine call scope.
// Writes through [Buffer.Write] are split into lines; an unterminated tail
// is held until more data arrives or [Buffer.Flush] is called.
//
// The zero value is ready to use.
type Buffer struct {
	tokens  []string
	lines   []string
	partial bytes.Buffer
	mu      sync.Mutex
}

// AppendToken pushes one token onto the sentinel stream.
func (b *Buffer) AppendToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = append(b.tokens, token)
}

// AppendError pushes a message preceded by the error sentinel.
func (b *Buffer) AppendError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = append(b.tokens, sentinelError, sentinelSeparator, msg)
}

// Write implements io.Writer for the line channel.
func (b *Buffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(data)

	for {
		content := b.partial.String()
		idx := strings.IndexByte(content, '\n')
		if idx == -1 {
			break
		}
		b.lines = append(b.lines, content[:idx])
		b.partial.Reset()
		b.partial.WriteString(content[idx+1:])
	}

	return len(data), nil
}

// Flush moves any unterminated tail into the line channel.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Buffer) flushLocked() {
	if b.partial.Len() > 0 {
		b.lines = append(b.lines, b.partial.String())
		b.partial.Reset()
	}
}

// Reset clears both channels.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = nil
	b.lines = nil
	b.partial.Reset()
}

// Tokens returns a copy of the token channel.
func (b *Buffer) Tokens() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tokens...)
}

// Lines flushes and returns a copy of the line channel.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
	return append([]string(nil), b.lines...)
}

// Messages parses the collected channels.
func (b *Buffer) Messages() []Message {
	return Parse(b.Tokens(), b.Lines())
}
