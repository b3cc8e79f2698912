package watch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/corey/temmekit/internal/adapters/temme"
	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/status"
	"github.com/corey/temmekit/internal/ports"
)

// =============================================================================
// Watch controller: ready/running/watching transitions, fetch-once watch,
// run-once presentation, error policy
// =============================================================================

const page = "https://example.com/page"

type harness struct {
	c       *Controller
	doc     *document.Buffer
	editor  *fakeEditor
	fetcher *fakeFetcher
	history *fakeHistory
	logs    *observer.ObservedLogs
	seen    []status.Status
}

func newHarness(t *testing.T, text, html string) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		doc:     document.New("file:///w/a.temme", "/w/a.temme", "temme", text),
		fetcher: &fakeFetcher{pages: map[string]string{page: html}},
		history: &fakeHistory{},
		logs:    logs,
	}
	h.editor = newFakeEditor(h.doc)
	h.c = New(Deps{
		Editor:         h.editor,
		Fetcher:        h.fetcher,
		Evaluator:      temme.New(),
		History:        h.history,
		Logger:         zap.New(core),
		OnStatusChange: func(d status.Data) { h.seen = append(h.seen, d.Status) },
	}, Config{})
	return h
}

func (h *harness) output() *fakeOutput {
	return h.editor.outputs[h.doc.URI()+".json"]
}

func TestRun_WritesPrettyResultAndNotifies(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)

	require.NoError(t, h.c.Run(context.Background(), page))

	require.NotNil(t, h.output())
	assert.Equal(t, "{\n  \"a\": \"hi\"\n}", h.output().text)
	assert.Equal(t, []message{{ports.LevelInfo, "Success"}}, h.editor.messages)
	assert.Equal(t, []status.Status{status.Running, status.Ready}, h.seen)
	assert.Equal(t, status.Ready, h.c.Status())

	require.Len(t, h.history.records, 1)
	rec := h.history.records[0]
	assert.Equal(t, ports.RunOnce, rec.Kind)
	assert.True(t, rec.OK)
	assert.Equal(t, len(`<div class="a">hi</div>`), rec.Bytes)
}

func TestRun_FetchesFreshEachTime(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	require.NoError(t, h.c.Run(context.Background(), page))
	require.NoError(t, h.c.Run(context.Background(), page))
	assert.Equal(t, 2, h.fetcher.calls)
}

func TestRun_PanelOutput(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	h.c.SetConfig(Config{Output: ports.OutputPanel})
	require.NoError(t, h.c.Run(context.Background(), page))
	assert.Contains(t, h.editor.outputs, "panel:"+h.doc.URI())
}

func TestRun_FetchErrorNotifies(t *testing.T) {
	h := newHarness(t, ".a{$a}", "")

	err := h.c.Run(context.Background(), "https://example.com/missing")
	var fe *ports.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []string{fe.Error()}, h.editor.errors())
	assert.Equal(t, status.Ready, h.c.Status())
	require.Len(t, h.history.records, 1)
	assert.False(t, h.history.records[0].OK)
}

func TestRun_SyntaxErrorNotifies(t *testing.T) {
	h := newHarness(t, "div{", "<div></div>")
	err := h.c.Run(context.Background(), page)
	assert.True(t, ports.IsSyntaxError(err))
	assert.Len(t, h.editor.errors(), 1)
	assert.Nil(t, h.output())
}

func TestRun_NoActiveDocument(t *testing.T) {
	h := newHarness(t, "", "")
	h.editor.active = nil
	assert.ErrorIs(t, h.c.Run(context.Background(), page), ErrNoDocument)
	assert.Equal(t, []message{{ports.LevelWarning, "No temme file opened."}}, h.editor.messages)
	assert.Zero(t, h.fetcher.calls)
}

func TestRun_UnrecognizedDocument(t *testing.T) {
	h := newHarness(t, "", "")
	h.editor.active = document.New("file:///w/a.txt", "/w/a.txt", "plaintext", "")
	assert.ErrorIs(t, h.c.Run(context.Background(), page), ErrNotRecognized)
	assert.Equal(t, []message{{ports.LevelWarning, "Not a temme file."}}, h.editor.messages)
}

func TestRun_NoLinksInforms(t *testing.T) {
	h := newHarness(t, ".a{$a}", "")
	assert.ErrorIs(t, h.c.Run(context.Background(), ""), ports.ErrNoLinks)
	assert.Equal(t, []message{{ports.LevelInfo, "No link is found in current file."}}, h.editor.messages)
	assert.Empty(t, h.seen, "status must not move when no link resolves")
}

func TestRun_SingleLinkNeedsNoPrompt(t *testing.T) {
	h := newHarness(t, "// main "+page+"\n.a{$a}", `<div class="a">hi</div>`)
	require.NoError(t, h.c.Run(context.Background(), ""))
	assert.Nil(t, h.editor.pickItems)
}

func TestRun_CancelledPromptIsSilent(t *testing.T) {
	h := newHarness(t, "// a "+page+"\n// b https://example.com/other\n.a{$a}", "")
	err := h.c.Run(context.Background(), "")
	assert.ErrorIs(t, err, ports.ErrNoSelection)
	assert.Empty(t, h.editor.messages)
	assert.Equal(t, []string{"a " + page, "b https://example.com/other"}, h.editor.pickItems)
	assert.Zero(t, h.fetcher.calls)
}

func TestRun_PickedLinkIsFetched(t *testing.T) {
	h := newHarness(t, "// a https://example.com/other\n// b "+page+"\n.a{$a}", `<div class="a">hi</div>`)
	h.editor.pickWith = func(items []string) (string, error) { return items[1], nil }
	require.NoError(t, h.c.Run(context.Background(), ""))
	assert.Equal(t, "{\n  \"a\": \"hi\"\n}", h.output().text)
}

func TestStartWatch_FetchesOnceAndFollowsEdits(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div><div class="b">there</div>`)

	require.NoError(t, h.c.StartWatch(context.Background(), page))
	assert.Equal(t, status.Watching, h.c.Status())
	assert.Len(t, h.editor.listeners, 1)
	assert.Equal(t, "{\n  \"a\": \"hi\"\n}", h.output().text, "immediate pass populates output")

	h.editor.edit(h.doc, ".b{$b}", 0)
	assert.Equal(t, "{\n  \"b\": \"there\"\n}", h.output().text)
	h.editor.edit(h.doc, ".a{$a} .b{$b}", 0)
	assert.Equal(t, "{\n  \"a\": \"hi\",\n  \"b\": \"there\"\n}", h.output().text)

	assert.Equal(t, 1, h.fetcher.calls, "edits must not refetch")
	snap := h.c.Snapshot()
	assert.Equal(t, page, snap.URL)
	assert.Equal(t, h.doc.URI(), snap.Document)
	assert.NotEmpty(t, snap.Session)
}

func TestStartWatch_RestartStopsPriorSession(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)

	require.NoError(t, h.c.StartWatch(context.Background(), page))
	first := h.c.Snapshot().Session
	require.NoError(t, h.c.StartWatch(context.Background(), page))

	assert.Equal(t, 1, h.editor.maxLive, "listener count never exceeds one")
	assert.Len(t, h.editor.listeners, 1)
	assert.NotEqual(t, first, h.c.Snapshot().Session)
	assert.Equal(t, []status.Status{status.Watching, status.Ready, status.Watching}, h.seen)

	var kinds []ports.RunKind
	for _, r := range h.history.records {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []ports.RunKind{ports.WatchStart, ports.WatchStop, ports.WatchStart}, kinds)
}

func TestStop_WhenReadyIsNoop(t *testing.T) {
	h := newHarness(t, ".a{$a}", "")
	h.c.Stop()
	assert.Equal(t, status.Ready, h.c.Status())
	assert.Empty(t, h.seen)
	assert.Equal(t, 1, h.logs.FilterMessage("status is ready, nothing to stop").Len())
}

func TestStop_EndsWatch(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	require.NoError(t, h.c.StartWatch(context.Background(), page))
	h.c.Stop()

	assert.Equal(t, status.Ready, h.c.Status())
	assert.Empty(t, h.editor.listeners)
	assert.Equal(t, status.Data{Status: status.Ready, Since: h.c.Snapshot().Since}, h.c.Snapshot())

	before := h.output().replaces
	h.editor.edit(h.doc, ".a{$a} ", 0)
	assert.Equal(t, before, h.output().replaces)
}

func TestStop_WhileRunningChangesNothing(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	var during status.Status
	var busyErr error
	h.fetcher.hook = func() {
		h.c.Stop()
		during = h.c.Status()
		busyErr = h.c.StartWatch(context.Background(), page)
		h.fetcher.hook = nil
	}

	require.NotPanics(t, func() { require.NoError(t, h.c.Run(context.Background(), page)) })
	assert.Equal(t, status.Running, during)
	assert.ErrorIs(t, busyErr, ErrBusy)
	assert.Equal(t, status.Ready, h.c.Status())
	assert.GreaterOrEqual(t, h.logs.FilterMessage("cancelling a running task is not supported").Len(), 1)
}

func TestWatch_EvaluationErrorIsLoggedAndKeepsOutput(t *testing.T) {
	h := newHarness(t, "li@{$x}", `<div>text</div>`)

	require.NoError(t, h.c.StartWatch(context.Background(), page))
	assert.Equal(t, "[]", h.output().text)

	h.editor.edit(h.doc, "div{$x|nosuch}", 0)
	assert.Equal(t, "[]", h.output().text, "last good output stays")
	assert.Empty(t, h.editor.errors(), "evaluation errors are never notified during watch")

	entries := h.logs.FilterMessage("evaluation failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestWatch_SyntaxErrorIsLeftToDiagnostics(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	require.NoError(t, h.c.StartWatch(context.Background(), page))

	h.editor.edit(h.doc, ".a{", 0)
	assert.Equal(t, "{\n  \"a\": \"hi\"\n}", h.output().text)
	assert.Empty(t, h.editor.errors())
	assert.Zero(t, h.logs.FilterMessage("evaluation failed").Len())
}

func TestWatch_OtherDocumentsIgnored(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	require.NoError(t, h.c.StartWatch(context.Background(), page))
	before := h.output().replaces

	other := document.New("file:///w/b.temme", "/w/b.temme", "temme", ".b{$b}")
	for _, fn := range h.editor.listeners {
		fn(ports.ChangeEvent{Document: other})
	}
	assert.Equal(t, before, h.output().replaces)
}

func TestStartWatch_SetupFailureAborts(t *testing.T) {
	h := newHarness(t, ".a{$a}", "")

	err := h.c.StartWatch(context.Background(), "https://example.com/missing")
	require.Error(t, err)
	assert.Equal(t, status.Ready, h.c.Status())
	assert.Empty(t, h.editor.listeners)
	assert.Len(t, h.editor.errors(), 1)
	assert.Empty(t, h.seen)
}

func TestStartWatch_OutputFailureAborts(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	h.editor.openErr = errors.New("read-only")

	err := h.c.StartWatch(context.Background(), page)
	assert.ErrorContains(t, err, "read-only")
	assert.Equal(t, status.Ready, h.c.Status())
	assert.Empty(t, h.editor.listeners)
}

func TestRun_WhileWatchingKeepsSession(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	require.NoError(t, h.c.StartWatch(context.Background(), page))
	session := h.c.Snapshot().Session

	require.NoError(t, h.c.Run(context.Background(), page))
	assert.Equal(t, status.Watching, h.c.Status())
	assert.Len(t, h.editor.listeners, 1)
	assert.Equal(t, session, h.c.Snapshot().Session)
}

func TestDispose_StopsWatch(t *testing.T) {
	h := newHarness(t, ".a{$a}", `<div class="a">hi</div>`)
	require.NoError(t, h.c.StartWatch(context.Background(), page))
	h.c.Dispose()
	assert.Equal(t, status.Ready, h.c.Status())
	assert.Empty(t, h.editor.listeners)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "a.temme.json"), OutputPath(filepath.Join("dir", "a.temme")))
}

func TestPretty(t *testing.T) {
	s, err := Pretty([]any{})
	require.NoError(t, err)
	assert.Equal(t, "[]", s)
}
