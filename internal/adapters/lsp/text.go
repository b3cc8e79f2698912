package lsp

import (
	"unicode/utf8"

	"github.com/corey/temmekit/internal/ports"
)

// applyChanges applies incremental edits in order. A change without a range
// replaces the whole text. It also returns the first line touched, 0 for a
// full replacement.
func applyChanges(text string, changes []textDocumentContentChangeEvent) (string, int) {
	firstLine := -1
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			firstLine = 0
			continue
		}
		start := offsetForPosition(text, change.Range.Start)
		end := offsetForPosition(text, change.Range.End)
		if end < start {
			end = start
		}
		text = text[:start] + change.Text + text[end:]
		if firstLine < 0 || change.Range.Start.Line < firstLine {
			firstLine = change.Range.Start.Line
		}
	}
	if firstLine < 0 {
		firstLine = 0
	}
	return text, firstLine
}

// offsetForPosition converts a UTF-16 position to a byte offset, clamped to
// the text.
func offsetForPosition(text string, pos ports.Position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	line := 0
	i := 0
	for i < len(text) && line < pos.Line {
		if text[i] == '\n' {
			line++
		}
		i++
	}
	if line < pos.Line {
		return len(text)
	}
	units := 0
	for i < len(text) && units < pos.Character {
		if text[i] == '\n' || text[i] == '\r' {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		i += size
	}
	return i
}

// lineEnd is the position just past the last character of line.
func lineEnd(doc ports.Document, line int) ports.Position {
	n := 0
	for _, r := range doc.LineAt(line) {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return ports.Position{Line: line, Character: n}
}
