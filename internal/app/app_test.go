package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/config"
	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/status"
	"github.com/corey/temmekit/internal/ports"
)

// syncBuffer collects host output written from the loop goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	root string
	html string
	out  *syncBuffer
	app  *App
}

func newFixture(t *testing.T, listen bool) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{root: root, out: &syncBuffer{}}
	f.html = f.write(t, "page.html", `<div class="a">hi</div><ul><li>a</li><li>b</li></ul>`)

	a, err := New(Config{
		ProjectRoot: root,
		Settings:    config.Default(),
		Listen:      listen,
		Out:         f.out,
		Panel:       f.out,
	})
	require.NoError(t, err)
	require.NoError(t, a.Start())
	t.Cleanup(func() { a.Stop() })
	f.app = a
	return f
}

func (f *fixture) write(t *testing.T, name, text string) string {
	t.Helper()
	p := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(p, []byte(text), 0644))
	return p
}

func (f *fixture) link() string { return "file://" + f.html }

func readOutput(t *testing.T, docPath string) string {
	t.Helper()
	data, err := os.ReadFile(docPath + ".json")
	if err != nil {
		return ""
	}
	return string(data)
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_CreatesProjectDirs(t *testing.T) {
	f := newFixture(t, false)
	for _, d := range []string{f.app.Paths.Root, f.app.Paths.LogDir, f.app.Paths.RunDir} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Base(f.root), f.app.ProjectID)
	assert.Nil(t, f.app.Server)
	assert.Nil(t, f.app.ShutdownCh())

	d, err := status.ReadJSON(f.app.Paths.Status)
	require.NoError(t, err)
	assert.Equal(t, status.Ready, d.Status)
}

func TestRun_WritesSiblingAndRecordsHistory(t *testing.T) {
	f := newFixture(t, false)
	doc := f.write(t, "a.temme", ".a{$a}\n// page "+f.link()+"\n")

	res, err := f.app.Run(context.Background(), doc, "")
	require.NoError(t, err)
	assert.Equal(t, doc+".json", res.Output)
	html, _ := os.ReadFile(f.html)
	assert.Equal(t, len(html), res.Bytes)
	assert.NotEmpty(t, res.Elapsed)
	assert.Equal(t, "{\n  \"a\": \"hi\"\n}\n", readOutput(t, doc))
	assert.Contains(t, f.out.String(), "[info] Success")

	hist, err := f.app.History(doc, 10)
	require.NoError(t, err)
	require.Equal(t, 1, hist.Count)
	assert.Equal(t, string(ports.RunOnce), hist.Runs[0].Kind)
	assert.True(t, hist.Runs[0].OK)
	assert.Equal(t, f.link(), hist.Runs[0].URL)

	// Documents are closed after a run.
	assert.Empty(t, f.app.opened)
	assert.Equal(t, "ready", f.app.Status().Status)
}

func TestRun_Failures(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.app.Run(context.Background(), filepath.Join(f.root, "missing.temme"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)

	doc := f.write(t, "b.temme", "p{$x}")
	_, err = f.app.Run(context.Background(), doc, "")
	assert.ErrorIs(t, err, ports.ErrNoLinks)
	assert.Contains(t, f.out.String(), "No link is found in current file.")

	_, err = f.app.Run(context.Background(), doc, "file://"+filepath.Join(f.root, "gone.html"))
	var fe *ports.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ports.FetchNotFound, fe.Kind)

	hist, err := f.app.History("", 10)
	require.NoError(t, err)
	require.Equal(t, 1, hist.Count, "only attempts that reached the fetch are recorded")
	assert.False(t, hist.Runs[0].OK)
}

func TestRun_SyntaxErrorIsReported(t *testing.T) {
	f := newFixture(t, false)
	doc := f.write(t, "a.temme", "div{\n")

	_, err := f.app.Run(context.Background(), doc, f.link())
	require.Error(t, err)
	assert.True(t, ports.IsSyntaxError(err))
	assert.Contains(t, f.out.String(), "a.temme:")
	assert.Contains(t, f.out.String(), "error:")
}

func TestWatch_FollowsSavesUntilStopped(t *testing.T) {
	f := newFixture(t, false)
	doc := f.write(t, "w.temme", "p@{$x}")

	st, err := f.app.Watch(context.Background(), doc, f.link())
	require.NoError(t, err)
	assert.Equal(t, "watching", st.Status)
	assert.Equal(t, document.FileURI(doc), st.Document)
	assert.Equal(t, f.link(), st.URL)
	assert.NotEmpty(t, st.Session)
	assert.Equal(t, "[]\n", readOutput(t, doc))

	onDisk, err := status.ReadJSON(f.app.Paths.Status)
	require.NoError(t, err)
	assert.Equal(t, status.Watching, onDisk.Status)

	f.write(t, "w.temme", "li@{$x}")
	require.Eventually(t, func() bool {
		return strings.Contains(readOutput(t, doc), `"x": "b"`)
	}, 3*time.Second, 20*time.Millisecond)

	st = f.app.StopWatch()
	assert.Equal(t, "ready", st.Status)
	assert.Empty(t, f.app.opened)

	// Saves after stop leave the output alone.
	before := readOutput(t, doc)
	f.write(t, "w.temme", ".a{$a}")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, readOutput(t, doc))

	hist, err := f.app.History(doc, 0)
	require.NoError(t, err)
	require.Equal(t, 2, hist.Count)
	assert.Equal(t, string(ports.WatchStop), hist.Runs[0].Kind)
	assert.Equal(t, string(ports.WatchStart), hist.Runs[1].Kind)
}

func TestWatch_ReplacesPreviousSession(t *testing.T) {
	f := newFixture(t, false)
	one := f.write(t, "one.temme", "p{$x}")
	two := f.write(t, "two.temme", ".a{$a}")

	first, err := f.app.Watch(context.Background(), one, f.link())
	require.NoError(t, err)
	second, err := f.app.Watch(context.Background(), two, f.link())
	require.NoError(t, err)

	assert.NotEqual(t, first.Session, second.Session)
	assert.Equal(t, document.FileURI(two), second.Document)
	assert.Equal(t, map[string]bool{two: true}, f.app.opened)
}

func TestStop_Idempotent(t *testing.T) {
	f := newFixture(t, false)
	doc := f.write(t, "a.temme", "p{$x}")
	_, err := f.app.Watch(context.Background(), doc, f.link())
	require.NoError(t, err)

	require.NoError(t, f.app.Stop())
	require.NoError(t, f.app.Stop())

	d, err := status.ReadJSON(f.app.Paths.Status)
	require.NoError(t, err)
	assert.Equal(t, status.Ready, d.Status)

	_, err = f.app.Run(context.Background(), doc, f.link())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDaemon_ServesSocket(t *testing.T) {
	f := newFixture(t, true)
	doc := f.write(t, "a.temme", ".a{$a}")
	client := socket.NewClient(f.app.Server.Addr())

	res, err := client.Run(doc, f.link())
	require.NoError(t, err)
	assert.Equal(t, doc+".json", res.Output)

	st, err := client.Watch(doc, f.link())
	require.NoError(t, err)
	assert.Equal(t, "watching", st.Status)

	st, err = client.Status()
	require.NoError(t, err)
	assert.Equal(t, "watching", st.Status)

	health, err := client.Health()
	require.NoError(t, err)
	assert.Equal(t, "watching", health.SessionStatus)
	assert.Equal(t, f.root, health.ProjectRoot)

	st, err = client.Stop()
	require.NoError(t, err)
	assert.Equal(t, "ready", st.Status)

	hist, err := client.History(doc, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, hist.Count)

	_, err = client.Run(filepath.Join(f.root, "nope.temme"), f.link())
	var se *socket.ServerError
	assert.ErrorAs(t, err, &se)

	require.NoError(t, client.Shutdown())
	select {
	case <-f.app.ShutdownCh():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not signalled")
	}
}

func TestDocumentURI(t *testing.T) {
	uri, err := DocumentURI("")
	require.NoError(t, err)
	assert.Empty(t, uri)

	uri, err = DocumentURI("file:///x/a.temme")
	require.NoError(t, err)
	assert.Equal(t, "file:///x/a.temme", uri)

	uri, err = DocumentURI("/x/a.temme")
	require.NoError(t, err)
	assert.Equal(t, "file:///x/a.temme", uri)
}

func TestStatusResult_ZeroSince(t *testing.T) {
	assert.Equal(t, int64(0), StatusResult(status.Data{Status: status.Ready}).Since)
	at := time.Unix(1700000000, 0)
	assert.Equal(t, int64(1700000000), StatusResult(status.Data{Status: status.Ready, Since: at}).Since)
}

// =============================================================================
// LSP wiring
// =============================================================================

func frame(t *testing.T, w io.Writer, msg map[string]any) {
	t.Helper()
	msg["jsonrpc"] = "2.0"
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, "Content-Length: %d\r\n\r\n%s", len(b), b)
	require.NoError(t, err)
}

func TestServeLSP_Lifecycle(t *testing.T) {
	root := t.TempDir()
	clientW, serverIn := io.Pipe()
	outR, serverOut := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- ServeLSP(context.Background(), clientW, serverOut, Config{ProjectRoot: root})
		serverOut.Close()
	}()

	var lines []string
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
	}()

	frame(t, serverIn, map[string]any{"id": 1, "method": "initialize", "params": map[string]any{"rootUri": document.FileURI(root)}})
	frame(t, serverIn, map[string]any{"id": 2, "method": "shutdown"})
	frame(t, serverIn, map[string]any{"method": "exit"})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lsp did not exit")
	}
	<-readDone
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "temme.runSelector")
	assert.Contains(t, joined, `"id":2`)

	_, err := os.Stat(NewPaths(root).DB)
	assert.NoError(t, err, "history database is opened under the project")
}
