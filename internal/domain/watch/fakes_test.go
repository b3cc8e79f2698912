package watch

import (
	"context"
	"fmt"

	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/ports"
)

type message struct {
	level ports.MessageLevel
	text  string
}

type fakeOutput struct {
	uri      string
	text     string
	replaces int
}

func (o *fakeOutput) URI() string { return o.uri }

func (o *fakeOutput) Replace(_ context.Context, text string) error {
	o.text = text
	o.replaces++
	return nil
}

// fakeEditor records everything the controller asks of the host.
type fakeEditor struct {
	active    ports.Document
	listeners map[int]func(ports.ChangeEvent)
	nextID    int
	maxLive   int
	messages  []message
	pickItems []string
	pickWith  func(items []string) (string, error)
	outputs   map[string]*fakeOutput
	openErr   error
}

func newFakeEditor(active ports.Document) *fakeEditor {
	return &fakeEditor{
		active:    active,
		listeners: make(map[int]func(ports.ChangeEvent)),
		outputs:   make(map[string]*fakeOutput),
	}
}

func (e *fakeEditor) SetDiagnostics(string, []ports.Diagnostic) {}
func (e *fakeEditor) ClearDiagnostics(string)                   {}

func (e *fakeEditor) ShowMessage(level ports.MessageLevel, text string) {
	e.messages = append(e.messages, message{level, text})
}

func (e *fakeEditor) QuickPick(_ context.Context, _ string, items []string) (string, error) {
	e.pickItems = items
	if e.pickWith == nil {
		return "", ports.ErrNoSelection
	}
	return e.pickWith(items)
}

func (e *fakeEditor) ActiveDocument() (ports.Document, bool) {
	return e.active, e.active != nil
}

func (e *fakeEditor) IsRecognized(doc ports.Document) bool {
	return doc.LanguageID() == "temme"
}

func (e *fakeEditor) OnDidChange(fn func(ports.ChangeEvent)) func() {
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	if len(e.listeners) > e.maxLive {
		e.maxLive = len(e.listeners)
	}
	return func() { delete(e.listeners, id) }
}

func (e *fakeEditor) OpenOutput(_ context.Context, source ports.Document, kind ports.OutputKind) (ports.OutputSurface, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	uri := source.URI() + ".json"
	if kind == ports.OutputPanel {
		uri = "panel:" + source.URI()
	}
	out, ok := e.outputs[uri]
	if !ok {
		out = &fakeOutput{uri: uri}
		e.outputs[uri] = out
	}
	return out, nil
}

// edit replaces the document text and fires a change event like a host would.
func (e *fakeEditor) edit(doc *document.Buffer, text string, line int) {
	doc.Set(text, doc.Version()+1)
	for _, fn := range e.listeners {
		fn(ports.ChangeEvent{Document: doc, FirstLine: line})
	}
}

func (e *fakeEditor) errors() []string {
	var out []string
	for _, m := range e.messages {
		if m.level == ports.LevelError {
			out = append(out, m.text)
		}
	}
	return out
}

type fakeFetcher struct {
	pages map[string]string
	calls int
	hook  func()
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	html, ok := f.pages[url]
	if !ok {
		return "", &ports.FetchError{Kind: ports.FetchHTTPError, URL: url, Status: 404}
	}
	return html, nil
}

type fakeHistory struct {
	records []ports.RunRecord
}

func (h *fakeHistory) Record(rec ports.RunRecord) error {
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) Recent(string, int) ([]ports.RunRecord, error) {
	return nil, fmt.Errorf("not used")
}
