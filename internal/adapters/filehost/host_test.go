package filehost

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/temmekit/internal/adapters/fetch"
	"github.com/corey/temmekit/internal/adapters/temme"
	"github.com/corey/temmekit/internal/domain/diagnose"
	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/status"
	"github.com/corey/temmekit/internal/domain/watch"
	"github.com/corey/temmekit/internal/ports"
)

// fakeWatcher lets tests fire save events by hand.
type fakeWatcher struct {
	mu      sync.Mutex
	tracked map[string]func(string)
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{tracked: make(map[string]func(string))}
}

func (w *fakeWatcher) Track(path string, fn func(string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[path] = fn
	return nil
}

func (w *fakeWatcher) Untrack(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, path)
}

func (w *fakeWatcher) Stop() error { return nil }

func (w *fakeWatcher) save(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	w.mu.Lock()
	fn := w.tracked[path]
	w.mu.Unlock()
	require.NotNil(t, fn, "path %s not tracked", path)
	fn(path)
}

type scriptedPicker struct {
	answer string
	asked  []string
}

func (p *scriptedPicker) QuickPick(_ context.Context, _ string, items []string) (string, error) {
	p.asked = items
	if p.answer == "" {
		return "", ports.ErrNoSelection
	}
	return p.answer, nil
}

func recognizeTemme(_, path string) bool { return strings.HasSuffix(path, ".temme") }

func newHost(t *testing.T, w ports.FileWatcher) (*Host, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, panel bytes.Buffer
	h := New(Options{
		Recognize: recognizeTemme,
		Watcher:   w,
		Out:       &out,
		Panel:     &panel,
	})
	return h, &out, &panel
}

func writeDoc(t *testing.T, dir, name, text string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(text), 0644))
	return p
}

func TestHost_OpenMakesActiveAndReadsFresh(t *testing.T) {
	h, _, _ := newHost(t, nil)
	_, ok := h.ActiveDocument()
	assert.False(t, ok)

	path := writeDoc(t, t.TempDir(), "a.temme", "div{$x}\n// https://a.test\n")
	doc, err := h.Open(path)
	require.NoError(t, err)

	active, ok := h.ActiveDocument()
	require.True(t, ok)
	assert.Equal(t, doc.URI(), active.URI())
	assert.Equal(t, document.FileURI(path), doc.URI())
	assert.Equal(t, "temme", doc.LanguageID())
	assert.True(t, h.IsRecognized(doc))
	assert.Equal(t, 3, doc.LineCount())
	assert.Equal(t, "// https://a.test", doc.LineAt(1))

	require.NoError(t, os.WriteFile(path, []byte("p{$y}"), 0644))
	assert.Equal(t, "p{$y}", doc.Text())
}

func TestHost_OpenErrors(t *testing.T) {
	h, _, _ := newHost(t, nil)
	_, err := h.Open(filepath.Join(t.TempDir(), "missing.temme"))
	assert.Error(t, err)
	_, err = h.Open(t.TempDir())
	assert.ErrorContains(t, err, "is a directory")
}

func TestHost_UnrecognizedFile(t *testing.T) {
	h, _, _ := newHost(t, nil)
	doc, err := h.Open(writeDoc(t, t.TempDir(), "notes.txt", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "plaintext", doc.LanguageID())
	assert.False(t, h.IsRecognized(doc))
}

func TestHost_ChangeEventsThroughPost(t *testing.T) {
	w := newFakeWatcher()
	var posted []func()
	var out bytes.Buffer
	h := New(Options{
		Recognize: recognizeTemme,
		Watcher:   w,
		Post:      func(fn func()) { posted = append(posted, fn) },
		Out:       &out,
	})
	path := writeDoc(t, t.TempDir(), "a.temme", "a")
	_, err := h.Open(path)
	require.NoError(t, err)

	var got []string
	unsubscribe := h.OnDidChange(func(ev ports.ChangeEvent) { got = append(got, ev.Document.Text()) })

	w.save(t, path, "b")
	assert.Empty(t, got, "delivery waits for the loop")
	require.Len(t, posted, 1)
	posted[0]()
	assert.Equal(t, []string{"b"}, got)

	unsubscribe()
	unsubscribe()
	w.save(t, path, "c")
	posted[1]()
	assert.Equal(t, []string{"b"}, got)
}

func TestHost_CloseUntracks(t *testing.T) {
	w := newFakeWatcher()
	h, _, _ := newHost(t, w)
	path := writeDoc(t, t.TempDir(), "a.temme", "a")
	_, err := h.Open(path)
	require.NoError(t, err)
	assert.Len(t, w.tracked, 1)

	h.Close(path)
	assert.Empty(t, w.tracked)
	_, ok := h.ActiveDocument()
	assert.False(t, ok)
}

func TestHost_DiagnosticsPrintedAndRetained(t *testing.T) {
	h, out, _ := newHost(t, nil)
	uri := document.FileURI("/tmp/x/a.temme")
	h.SetDiagnostics(uri, []ports.Diagnostic{{
		Range:    ports.Range{Start: ports.Position{Line: 1, Character: 3}},
		Severity: ports.SeverityError,
		Source:   "temme",
		Message:  `Expected "}" but end of input found.`,
	}})
	assert.Contains(t, out.String(), `a.temme:2:4: error: Expected "}" but end of input found. (temme)`)
	assert.Len(t, h.Diagnostics(uri), 1)

	out.Reset()
	h.ClearDiagnostics(uri)
	assert.Contains(t, out.String(), "a.temme: ok")
	assert.Empty(t, h.Diagnostics(uri))

	out.Reset()
	h.ClearDiagnostics(uri)
	assert.Empty(t, out.String(), "clean to clean is silent")
}

func TestHost_ShowMessage(t *testing.T) {
	h, out, _ := newHost(t, nil)
	h.ShowMessage(ports.LevelWarning, "Not a temme file.")
	h.ShowMessage(ports.LevelInfo, "Success")
	assert.Equal(t, "[warning] Not a temme file.\n[info] Success\n", out.String())
}

func TestHost_QuickPickWithoutPicker(t *testing.T) {
	h, _, _ := newHost(t, nil)
	_, err := h.QuickPick(context.Background(), "Choose an url:", []string{"a", "b"})
	assert.ErrorIs(t, err, ports.ErrNoSelection)
}

func TestHost_PanelOutput(t *testing.T) {
	h, _, panel := newHost(t, nil)
	doc, err := h.Open(writeDoc(t, t.TempDir(), "a.temme", "a"))
	require.NoError(t, err)

	out, err := h.OpenOutput(context.Background(), doc, ports.OutputPanel)
	require.NoError(t, err)
	require.NoError(t, out.Replace(context.Background(), `{"a": 1}`))
	assert.Contains(t, panel.String(), "a.temme")
	assert.Contains(t, panel.String(), `{"a": 1}`)
	assert.True(t, strings.HasPrefix(out.URI(), "temme-output:"))
}

func TestHost_FileOutputCreatesSibling(t *testing.T) {
	h, _, _ := newHost(t, nil)
	dir := t.TempDir()
	doc, err := h.Open(writeDoc(t, dir, "a.temme", "a"))
	require.NoError(t, err)

	out, err := h.OpenOutput(context.Background(), doc, ports.OutputFile)
	require.NoError(t, err)
	sibling := filepath.Join(dir, "a.temme.json")
	_, err = os.Stat(sibling)
	require.NoError(t, err)
	assert.Equal(t, document.FileURI(sibling), out.URI())

	require.NoError(t, out.Replace(context.Background(), "[]"))
	data, err := os.ReadFile(sibling)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

// End-to-end: the filesystem host driving the real engine and fetcher.

func newStack(t *testing.T, picker ports.Picker) (*Host, *fakeWatcher, *watch.Controller, *bytes.Buffer) {
	t.Helper()
	w := newFakeWatcher()
	var out bytes.Buffer
	h := New(Options{Recognize: recognizeTemme, Watcher: w, Out: &out, Picker: picker})
	engine := temme.New()
	ctrl := watch.New(watch.Deps{
		Editor:    h,
		Fetcher:   fetch.New(fetch.Config{}),
		Evaluator: engine,
	}, watch.Config{})
	reporter := diagnose.NewReporter(engine, h, diagnose.Options{})
	h.OnDidChange(func(ev ports.ChangeEvent) { reporter.Check(ev.Document) })
	return h, w, ctrl, &out
}

func readJSON(t *testing.T, path string) any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var v any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestRunOnce_WritesSiblingJSON(t *testing.T) {
	dir := t.TempDir()
	html := writeDoc(t, dir, "page.html", `<div class="a">hi</div>`)
	doc := writeDoc(t, dir, "a.temme", ".a{$a}\n// page file://"+html+"\n")

	h, _, ctrl, out := newStack(t, nil)
	_, err := h.Open(doc)
	require.NoError(t, err)

	require.NoError(t, ctrl.Run(context.Background(), ""))
	assert.Equal(t, map[string]any{"a": "hi"}, readJSON(t, doc+".json"))
	assert.Contains(t, out.String(), "[info] Success")
	assert.Equal(t, status.Ready, ctrl.Status())
}

func TestRunOnce_PicksAmongLinks(t *testing.T) {
	dir := t.TempDir()
	one := writeDoc(t, dir, "one.html", `<div class="a">one</div>`)
	two := writeDoc(t, dir, "two.html", `<div class="a">two</div>`)
	doc := writeDoc(t, dir, "a.temme", ".a{$a}\n// first file://"+one+"\n// second file://"+two+"\n")

	picker := &scriptedPicker{answer: "second file://" + two}
	h, _, ctrl, _ := newStack(t, picker)
	_, err := h.Open(doc)
	require.NoError(t, err)

	require.NoError(t, ctrl.Run(context.Background(), ""))
	assert.Equal(t, []string{"first file://" + one, "second file://" + two}, picker.asked)
	assert.Equal(t, map[string]any{"a": "two"}, readJSON(t, doc+".json"))
}

func TestRunOnce_MissingFileNotifies(t *testing.T) {
	dir := t.TempDir()
	doc := writeDoc(t, dir, "a.temme", ".a{$a}")
	h, _, ctrl, out := newStack(t, nil)
	_, err := h.Open(doc)
	require.NoError(t, err)

	err = ctrl.Run(context.Background(), "file://"+filepath.Join(dir, "gone.html"))
	var fe *ports.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ports.FetchNotFound, fe.Kind)
	assert.Contains(t, out.String(), "[error] file not found")
}

func TestWatch_ReevaluatesOnSave(t *testing.T) {
	dir := t.TempDir()
	html := writeDoc(t, dir, "page.html", `<ul><li>a</li><li>b</li></ul>`)
	doc := writeDoc(t, dir, "a.temme", "p@{$x}\n")

	h, w, ctrl, out := newStack(t, nil)
	_, err := h.Open(doc)
	require.NoError(t, err)

	require.NoError(t, ctrl.StartWatch(context.Background(), "file://"+html))
	assert.Equal(t, status.Watching, ctrl.Status())
	assert.Equal(t, []any{}, readJSON(t, doc+".json"))

	// An evaluation error keeps the last output.
	w.save(t, doc, "li@{$x|nosuchfilter}\n")
	assert.Equal(t, []any{}, readJSON(t, doc+".json"))

	// A syntax error is reported as a diagnostic and keeps the output too.
	w.save(t, doc, "li@{\n")
	assert.Equal(t, []any{}, readJSON(t, doc+".json"))
	assert.Len(t, h.Diagnostics(document.FileURI(doc)), 1)
	assert.Contains(t, out.String(), "error:")

	w.save(t, doc, "li@{$x}\n")
	assert.Equal(t, []any{map[string]any{"x": "a"}, map[string]any{"x": "b"}}, readJSON(t, doc+".json"))
	assert.Empty(t, h.Diagnostics(document.FileURI(doc)))

	ctrl.Stop()
	assert.Equal(t, status.Ready, ctrl.Status())
	w.save(t, doc, "li@{$y}\n")
	assert.Equal(t, []any{map[string]any{"x": "a"}, map[string]any{"x": "b"}}, readJSON(t, doc+".json"))
}

func TestPickModel_Keys(t *testing.T) {
	m := newPickModel("Choose an url:", []string{"a", "b", "c"})
	assert.Contains(t, m.View(), "Choose an url:")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, 2, next.(pickModel).chosen)

	m = newPickModel("p", []string{"a"})
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, -1, next.(pickModel).chosen)
	assert.Empty(t, next.View())
}
