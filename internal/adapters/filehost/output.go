package filehost

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/corey/temmekit/internal/domain/document"
)

// fileOutput overwrites a JSON file next to the document.
type fileOutput struct {
	path string
}

func (o *fileOutput) URI() string { return document.FileURI(o.path) }

// Path is the file being written.
func (o *fileOutput) Path() string { return o.path }

// Replace writes text through a temp file so watchers of the output never see
// a partial result.
func (o *fileOutput) Replace(_ context.Context, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(o.path), ".temme-out-*")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(tmp, text+"\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), o.path)
}

// panelOutput prints each result to a writer under a header line.
type panelOutput struct {
	w      io.Writer
	header *color.Color
	source string
}

func (o *panelOutput) URI() string { return "temme-output:" + o.source }

func (o *panelOutput) Replace(_ context.Context, text string) error {
	o.header.Fprintf(o.w, "── %s ──\n", displayPath(o.source))
	_, err := fmt.Fprintln(o.w, text)
	return err
}
