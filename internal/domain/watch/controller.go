// Package watch owns the single watch session and the run-once command.
//
// The controller is driven from one host loop and holds no locks. Status
// moves between ready, running and watching; a change listener is registered
// exactly while the status is watching.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/domain/links"
	"github.com/corey/temmekit/internal/domain/status"
	"github.com/corey/temmekit/internal/ports"
)

var (
	// ErrBusy means a run-once command holds the session.
	ErrBusy = errors.New("a run is in progress")
	// ErrNoDocument means no document is active.
	ErrNoDocument = errors.New("no temme file opened")
	// ErrNotRecognized means the active document is not a selector document.
	ErrNotRecognized = errors.New("not a temme file")
)

// Config holds the user-tunable presentation settings.
type Config struct {
	Output ports.OutputKind
	Links  links.Mode
}

// Deps are the collaborators of a Controller. History, Logger,
// OnStatusChange and Now are optional.
type Deps struct {
	Editor    ports.Editor
	Fetcher   ports.Fetcher
	Evaluator ports.Evaluator
	History   ports.History
	Logger    *zap.Logger
	// OnStatusChange receives a snapshot after every status transition.
	OnStatusChange func(status.Data)
	Now            func() time.Time
}

// Controller is the watch session plus the run-once command.
type Controller struct {
	editor    ports.Editor
	fetcher   ports.Fetcher
	evaluator ports.Evaluator
	history   ports.History
	log       *zap.Logger
	onStatus  func(status.Data)
	now       func() time.Time
	cfg       Config

	status      status.Status
	since       time.Time
	doc         ports.Document
	url         string
	session     string
	markup      ports.Markup
	output      ports.OutputSurface
	unsubscribe func()
}

// New creates a controller in the ready state.
func New(d Deps, cfg Config) *Controller {
	c := &Controller{
		editor:    d.Editor,
		fetcher:   d.Fetcher,
		evaluator: d.Evaluator,
		history:   d.History,
		log:       d.Logger,
		onStatus:  d.OnStatusChange,
		now:       d.Now,
		status:    status.Ready,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.since = c.now()
	c.SetConfig(cfg)
	return c
}

// SetConfig replaces the presentation settings. A running watch keeps the
// output surface it opened.
func (c *Controller) SetConfig(cfg Config) {
	if cfg.Output == "" {
		cfg.Output = ports.OutputFile
	}
	if cfg.Links == "" {
		cfg.Links = links.ModeAuto
	}
	c.cfg = cfg
}

// Status returns the current status.
func (c *Controller) Status() status.Status { return c.status }

// Snapshot describes the session for status reporting.
func (c *Controller) Snapshot() status.Data {
	d := status.Data{Status: c.status, URL: c.url, Session: c.session, Since: c.since}
	if c.doc != nil {
		d.Document = c.doc.URI()
	}
	if c.output != nil {
		d.Output = c.output.URI()
	}
	return d
}

// Run fetches markup fresh, evaluates the active document once and presents
// the result. Failures are shown to the user and returned. A dismissed link
// prompt returns ports.ErrNoSelection without a notification.
//
// Run marks the session running only when it was ready; a live watch keeps
// its status and listener.
func (c *Controller) Run(ctx context.Context, url string) error {
	doc, err := c.activeDocument()
	if err != nil {
		return err
	}
	url, err = c.resolveURL(ctx, doc, url)
	if err != nil {
		return err
	}

	if c.status == status.Ready {
		c.setStatus(status.Running)
		defer c.setStatus(status.Ready)
	}

	start := c.now()
	size, err := c.runOnce(ctx, doc, url)
	c.record(ports.RunRecord{
		Kind:     ports.RunOnce,
		Document: doc.URI(),
		URL:      url,
		OK:       err == nil,
		Error:    errString(err),
		Bytes:    size,
		Elapsed:  c.now().Sub(start),
		At:       start,
	})
	if err != nil {
		c.log.Warn("run failed", zap.String("document", doc.URI()), zap.String("url", url), zap.Error(err))
		c.editor.ShowMessage(ports.LevelError, err.Error())
		return err
	}
	c.log.Info("run succeeded", zap.String("document", doc.URI()), zap.String("url", url), zap.Int("bytes", size))
	c.editor.ShowMessage(ports.LevelInfo, "Success")
	return nil
}

func (c *Controller) runOnce(ctx context.Context, doc ports.Document, url string) (int, error) {
	html, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	markup, err := c.evaluator.Load(html)
	if err != nil {
		return len(html), err
	}
	result, err := c.evaluator.Evaluate(markup, doc.Text())
	if err != nil {
		return len(html), err
	}
	text, err := Pretty(result)
	if err != nil {
		return len(html), err
	}
	out, err := c.editor.OpenOutput(ctx, doc, c.cfg.Output)
	if err != nil {
		return len(html), fmt.Errorf("open output: %w", err)
	}
	if err := out.Replace(ctx, text); err != nil {
		return len(html), fmt.Errorf("write output: %w", err)
	}
	return len(html), nil
}

// StartWatch stops any current session, then fetches markup once and
// re-evaluates the active document against it on every edit. It returns
// ErrBusy while a run is in progress.
func (c *Controller) StartWatch(ctx context.Context, url string) error {
	c.Stop()
	if c.status == status.Running {
		return ErrBusy
	}
	doc, err := c.activeDocument()
	if err != nil {
		return err
	}
	url, err = c.resolveURL(ctx, doc, url)
	if err != nil {
		return err
	}

	start := c.now()
	markup, out, err := c.setup(ctx, doc, url)
	if err != nil {
		c.record(ports.RunRecord{
			Kind: ports.WatchStart, Document: doc.URI(), URL: url,
			Error: err.Error(), Elapsed: c.now().Sub(start), At: start,
		})
		c.log.Warn("watch setup failed", zap.String("document", doc.URI()), zap.String("url", url), zap.Error(err))
		c.editor.ShowMessage(ports.LevelError, err.Error())
		return err
	}

	c.doc = doc
	c.url = url
	c.markup = markup
	c.output = out
	c.session = uuid.NewString()
	c.unsubscribe = c.editor.OnDidChange(c.onChange)
	c.setStatus(status.Watching)
	c.record(ports.RunRecord{
		Kind: ports.WatchStart, Document: doc.URI(), URL: url, OK: true,
		Bytes: markup.Size(), Elapsed: c.now().Sub(start), At: start,
	})
	c.log.Info("watch started",
		zap.String("session", c.session),
		zap.String("document", doc.URI()),
		zap.String("url", url),
		zap.String("output", out.URI()))

	c.reevaluate(ctx, 0)
	return nil
}

func (c *Controller) setup(ctx context.Context, doc ports.Document, url string) (ports.Markup, ports.OutputSurface, error) {
	html, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	markup, err := c.evaluator.Load(html)
	if err != nil {
		return nil, nil, err
	}
	out, err := c.editor.OpenOutput(ctx, doc, c.cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return markup, out, nil
}

func (c *Controller) onChange(ev ports.ChangeEvent) {
	if c.status != status.Watching || ev.Document.URI() != c.doc.URI() {
		return
	}
	c.reevaluate(context.Background(), ev.FirstLine)
}

// reevaluate refreshes the output from the cached markup. Syntax errors are
// left to the diagnostics reporter; other failures keep the last good output.
func (c *Controller) reevaluate(ctx context.Context, line int) {
	result, err := c.evaluator.Evaluate(c.markup, c.doc.Text())
	if err != nil {
		if ports.IsSyntaxError(err) {
			return
		}
		c.log.Warn("evaluation failed",
			zap.String("session", c.session),
			zap.String("document", c.doc.URI()),
			zap.Int("line", line),
			zap.Error(err))
		return
	}
	text, err := Pretty(result)
	if err != nil {
		c.log.Warn("render result", zap.String("session", c.session), zap.Error(err))
		return
	}
	if err := c.output.Replace(ctx, text); err != nil {
		c.log.Error("replace output", zap.String("session", c.session), zap.String("output", c.output.URI()), zap.Error(err))
	}
}

// Stop ends a watch session. It is a no-op when ready and only logs while a
// run is in progress, since runs cannot be cancelled.
func (c *Controller) Stop() {
	switch c.status {
	case status.Watching:
		c.unsubscribe()
		c.record(ports.RunRecord{
			Kind: ports.WatchStop, Document: c.doc.URI(), URL: c.url, OK: true,
			Elapsed: c.now().Sub(c.since), At: c.now(),
		})
		c.log.Info("watch stopped", zap.String("session", c.session), zap.String("document", c.doc.URI()))
		c.unsubscribe = nil
		c.markup = nil
		c.output = nil
		c.doc = nil
		c.url = ""
		c.session = ""
		c.setStatus(status.Ready)
	case status.Running:
		c.log.Info("cancelling a running task is not supported")
	default:
		c.log.Debug("status is ready, nothing to stop")
	}
}

// Dispose tears the session down at host shutdown.
func (c *Controller) Dispose() {
	c.Stop()
}

func (c *Controller) setStatus(s status.Status) {
	c.status = s
	c.since = c.now()
	if c.onStatus != nil {
		c.onStatus(c.Snapshot())
	}
}

func (c *Controller) activeDocument() (ports.Document, error) {
	doc, ok := c.editor.ActiveDocument()
	if !ok {
		c.editor.ShowMessage(ports.LevelWarning, "No temme file opened.")
		return nil, ErrNoDocument
	}
	if !c.editor.IsRecognized(doc) {
		c.editor.ShowMessage(ports.LevelWarning, "Not a temme file.")
		return nil, ErrNotRecognized
	}
	return doc, nil
}

// resolveURL returns url, or picks one from the document's links.
func (c *Controller) resolveURL(ctx context.Context, doc ports.Document, url string) (string, error) {
	if url != "" {
		return url, nil
	}
	picked, err := links.Choose(ctx, links.ExtractDocument(doc, c.cfg.Links), c.editor)
	switch {
	case errors.Is(err, ports.ErrNoLinks):
		c.editor.ShowMessage(ports.LevelInfo, "No link is found in current file.")
	case errors.Is(err, ports.ErrNoSelection):
		c.log.Debug("link prompt dismissed", zap.String("document", doc.URI()))
	}
	return picked, err
}

func (c *Controller) record(rec ports.RunRecord) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(rec); err != nil {
		c.log.Warn("record history", zap.String("kind", string(rec.Kind)), zap.Error(err))
	}
}

// Pretty renders a result as 2-space indented JSON.
func Pretty(result any) (string, error) {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render result: %w", err)
	}
	return string(b), nil
}

// OutputPath is the sibling file results are written to: <dir>/<file>.json.
func OutputPath(docPath string) string {
	return filepath.Join(filepath.Dir(docPath), filepath.Base(docPath)+".json")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
