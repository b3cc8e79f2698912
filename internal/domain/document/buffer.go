// Package document holds in-memory selector documents.
package document

import (
	"strings"
	"sync"

	"github.com/corey/temmekit/internal/ports"
)

// Buffer is an in-memory ports.Document whose text is replaced wholesale on
// every edit. Reads always see the latest text.
type Buffer struct {
	uri  string
	path string
	lang string

	mu      sync.RWMutex
	text    string
	lines   []string
	version int
}

var _ ports.Document = (*Buffer)(nil)

// New creates a buffer.
func New(uri, path, languageID, text string) *Buffer {
	b := &Buffer{uri: uri, path: path, lang: languageID}
	b.Set(text, 0)
	return b
}

func (b *Buffer) URI() string        { return b.uri }
func (b *Buffer) Path() string       { return b.path }
func (b *Buffer) LanguageID() string { return b.lang }

// Text returns the current text.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Version returns the host-assigned version of the current text.
func (b *Buffer) Version() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// LineCount is at least 1, matching editors: an empty document has one line.
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// LineAt returns line i without its terminator.
func (b *Buffer) LineAt(i int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.lines) {
		return ""
	}
	return b.lines[i]
}

// Set replaces the text.
func (b *Buffer) Set(text string, version int) {
	lines := SplitLines(text)
	b.mu.Lock()
	b.text = text
	b.lines = lines
	b.version = version
	b.mu.Unlock()
}

// SplitLines splits on "\n" and strips a trailing "\r" from each line.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
