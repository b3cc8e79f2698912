// Package filehost implements ports.Editor over plain files.
//
// Documents are files on disk and their text is read fresh on every access.
// Saves reach the host through a ports.FileWatcher and are delivered to
// listeners on the caller's loop via Post. Diagnostics and messages are
// printed; results go to <doc>.json or to the panel writer.
package filehost

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/watch"
	"github.com/corey/temmekit/internal/ports"
)

// Options configures a Host. Everything but Recognize is optional.
type Options struct {
	// Recognize decides whether a language id / path pair is a selector
	// document.
	Recognize func(languageID, path string) bool
	// LanguageID is reported for recognized files.
	LanguageID string
	Watcher    ports.FileWatcher
	// Post delivers change events onto the host loop. Nil delivers them on the
	// watcher goroutine.
	Post func(func())
	// Out receives diagnostics and messages. Defaults to stderr.
	Out io.Writer
	// Panel receives panel output. Defaults to stdout.
	Panel io.Writer
	// Picker answers link prompts. Nil dismisses every prompt.
	Picker ports.Picker
	// Color enables ANSI colors on Out and Panel.
	Color  bool
	Logger *zap.Logger
}

// Host is a file-backed editor.
type Host struct {
	opts Options
	log  *zap.Logger

	errColor  *color.Color
	warnColor *color.Color
	infoColor *color.Color
	dimColor  *color.Color

	mu        sync.Mutex
	active    *fileDocument
	open      map[string]*fileDocument // by URI
	diags     map[string][]ports.Diagnostic
	listeners map[int]func(ports.ChangeEvent)
	nextID    int
}

var _ ports.Editor = (*Host)(nil)

// New creates a host.
func New(opts Options) *Host {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Panel == nil {
		opts.Panel = os.Stdout
	}
	if opts.Recognize == nil {
		opts.Recognize = func(string, string) bool { return true }
	}
	if opts.LanguageID == "" {
		opts.LanguageID = "temme"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		opts:      opts,
		log:       log,
		errColor:  color.New(color.FgRed, color.Bold),
		warnColor: color.New(color.FgYellow),
		infoColor: color.New(color.FgGreen),
		dimColor:  color.New(color.FgHiBlack),
		open:      make(map[string]*fileDocument),
		diags:     make(map[string][]ports.Diagnostic),
		listeners: make(map[int]func(ports.ChangeEvent)),
	}
	for _, c := range []*color.Color{h.errColor, h.warnColor, h.infoColor, h.dimColor} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return h
}

// Open makes path the active document and starts watching it for saves. The
// file must exist.
func (h *Host) Open(path string) (ports.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open %s: is a directory", path)
	}

	uri := document.FileURI(abs)
	h.mu.Lock()
	doc, ok := h.open[uri]
	if !ok {
		lang := "plaintext"
		if h.opts.Recognize("", abs) {
			lang = h.opts.LanguageID
		}
		doc = &fileDocument{uri: uri, path: abs, lang: lang}
		h.open[uri] = doc
	}
	h.active = doc
	h.mu.Unlock()

	if !ok && h.opts.Watcher != nil {
		if err := h.opts.Watcher.Track(abs, h.onFileChanged); err != nil {
			h.log.Warn("track document", zap.String("path", abs), zap.Error(err))
		}
	}
	return doc, nil
}

// Close stops watching path and forgets its diagnostics.
func (h *Host) Close(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	uri := document.FileURI(abs)
	h.mu.Lock()
	_, ok := h.open[uri]
	delete(h.open, uri)
	delete(h.diags, uri)
	if h.active != nil && h.active.uri == uri {
		h.active = nil
	}
	h.mu.Unlock()
	if ok && h.opts.Watcher != nil {
		h.opts.Watcher.Untrack(abs)
	}
}

func (h *Host) onFileChanged(path string) {
	deliver := func() { h.fire(path) }
	if h.opts.Post != nil {
		h.opts.Post(deliver)
		return
	}
	deliver()
}

// fire notifies listeners that path changed on disk.
func (h *Host) fire(path string) {
	uri := document.FileURI(path)
	h.mu.Lock()
	doc, ok := h.open[uri]
	if !ok {
		h.mu.Unlock()
		return
	}
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(ports.ChangeEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.listeners[id])
	}
	h.mu.Unlock()

	if !h.IsRecognized(doc) {
		return
	}
	h.log.Debug("document changed", zap.String("uri", uri))
	for _, fn := range fns {
		fn(ports.ChangeEvent{Document: doc})
	}
}

// ActiveDocument returns the most recently opened document.
func (h *Host) ActiveDocument() (ports.Document, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return nil, false
	}
	return h.active, true
}

// IsRecognized applies the configured recognizer.
func (h *Host) IsRecognized(doc ports.Document) bool {
	return h.opts.Recognize(doc.LanguageID(), doc.Path())
}

// OnDidChange registers fn for saves of recognized open documents.
func (h *Host) OnDidChange(fn func(ports.ChangeEvent)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// SetDiagnostics prints diags and retains them for uri.
func (h *Host) SetDiagnostics(uri string, diags []ports.Diagnostic) {
	h.mu.Lock()
	h.diags[uri] = append([]ports.Diagnostic(nil), diags...)
	h.mu.Unlock()

	name := displayPath(uri)
	for _, d := range diags {
		h.errColor.Fprintf(h.opts.Out, "%s:%d:%d: ", name, d.Range.Start.Line+1, d.Range.Start.Character+1)
		fmt.Fprintf(h.opts.Out, "%s ", severityName(d.Severity))
		fmt.Fprint(h.opts.Out, d.Message)
		h.dimColor.Fprintf(h.opts.Out, " (%s)\n", d.Source)
	}
}

// ClearDiagnostics drops the diagnostics of uri. Going from errors to clean
// is announced once.
func (h *Host) ClearDiagnostics(uri string) {
	h.mu.Lock()
	had := len(h.diags[uri]) > 0
	delete(h.diags, uri)
	h.mu.Unlock()
	if had {
		h.infoColor.Fprintf(h.opts.Out, "%s: ok\n", displayPath(uri))
	}
}

// Diagnostics returns the retained diagnostics of uri.
func (h *Host) Diagnostics(uri string) []ports.Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.Diagnostic(nil), h.diags[uri]...)
}

// ShowMessage prints message with a level prefix.
func (h *Host) ShowMessage(level ports.MessageLevel, message string) {
	c := h.infoColor
	switch level {
	case ports.LevelWarning:
		c = h.warnColor
	case ports.LevelError:
		c = h.errColor
	}
	c.Fprintf(h.opts.Out, "[%s] ", level)
	fmt.Fprintln(h.opts.Out, message)
}

// QuickPick defers to the configured picker.
func (h *Host) QuickPick(ctx context.Context, placeholder string, items []string) (string, error) {
	if h.opts.Picker == nil {
		h.log.Debug("no picker, prompt dismissed", zap.Int("items", len(items)))
		return "", ports.ErrNoSelection
	}
	return h.opts.Picker.QuickPick(ctx, placeholder, items)
}

// OpenOutput returns the sibling <doc>.json file or the panel writer.
func (h *Host) OpenOutput(_ context.Context, source ports.Document, kind ports.OutputKind) (ports.OutputSurface, error) {
	if kind == ports.OutputPanel {
		return &panelOutput{w: h.opts.Panel, header: h.dimColor, source: source.URI()}, nil
	}
	if source.Path() == "" {
		return nil, fmt.Errorf("document %s has no file path", source.URI())
	}
	path := watch.OutputPath(source.Path())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0644); err != nil {
			return nil, err
		}
	}
	return &fileOutput{path: path}, nil
}

func severityName(s ports.Severity) string {
	switch s {
	case ports.SeverityError:
		return "error:"
	case ports.SeverityWarning:
		return "warning:"
	case ports.SeverityInfo:
		return "info:"
	default:
		return "hint:"
	}
}

// displayPath prefers a cwd-relative path.
func displayPath(uri string) string {
	p := document.PathFromURI(uri)
	if p == "" {
		return uri
	}
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, p); err == nil && !filepath.IsAbs(rel) && len(rel) < len(p) {
			return rel
		}
	}
	return p
}
