package filehost

import (
	"os"

	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/ports"
)

// fileDocument reads its file on every access. An unreadable file reads as
// empty text.
type fileDocument struct {
	uri  string
	path string
	lang string
}

var _ ports.Document = (*fileDocument)(nil)

func (d *fileDocument) URI() string        { return d.uri }
func (d *fileDocument) Path() string       { return d.path }
func (d *fileDocument) LanguageID() string { return d.lang }

func (d *fileDocument) Text() string {
	b, err := os.ReadFile(d.path)
	if err != nil {
		return ""
	}
	return string(b)
}

func (d *fileDocument) LineCount() int {
	return len(document.SplitLines(d.Text()))
}

func (d *fileDocument) LineAt(i int) string {
	lines := document.SplitLines(d.Text())
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}
