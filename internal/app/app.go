// Package app wires together all adapters and domain logic.
// It provides lifecycle management for the temme daemon and the foreground
// commands: create, start, stop.
//
// Every call into the watch controller, the diagnostics reporter and the
// file host runs on one event loop goroutine. Socket requests and file
// change events reach it through exec and post.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/adapters/bbolt"
	"github.com/corey/temmekit/internal/adapters/fetch"
	"github.com/corey/temmekit/internal/adapters/filehost"
	fsw "github.com/corey/temmekit/internal/adapters/fsnotify"
	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/adapters/temme"
	"github.com/corey/temmekit/internal/config"
	"github.com/corey/temmekit/internal/domain/diagnose"
	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/status"
	"github.com/corey/temmekit/internal/domain/watch"
	"github.com/corey/temmekit/internal/ports"
)

// ErrStopped is returned for commands issued after Stop.
var ErrStopped = errors.New("app stopped")

// Config holds initialization parameters for the App.
type Config struct {
	ProjectRoot string
	ProjectID   string
	// Settings defaults to config.Default().
	Settings *config.Config
	Logger   *zap.Logger
	// Listen serves the daemon socket. Foreground commands leave it off.
	Listen bool

	// Out receives diagnostics and messages, Panel receives panel output.
	Out    io.Writer
	Panel  io.Writer
	Picker ports.Picker
	Color  bool

	// Fetcher overrides the markup fetcher (tests).
	Fetcher ports.Fetcher
}

// App is the top-level container wiring all components together.
type App struct {
	ProjectRoot string
	ProjectID   string
	Paths       *Paths

	Store      *bbolt.Store
	Watcher    *fsw.Watcher
	Host       *filehost.Host
	Engine     *temme.Engine
	Controller *watch.Controller
	Reporter   *diagnose.Reporter
	Server     *socket.Server // nil unless Config.Listen

	log      *zap.Logger
	settings *config.Config
	started  time.Time

	tasks    chan func()
	quit     chan struct{}
	loopDone chan struct{}
	running  atomic.Bool
	stopOnce sync.Once

	opened map[string]bool // abs paths open in Host; loop only

	mu       sync.Mutex // guards snapshot
	snapshot status.Data
}

// New creates an App with all dependencies wired. Does not start services.
func New(cfg Config) (*App, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("project root required")
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = filepath.Base(cfg.ProjectRoot)
	}
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	paths := NewPaths(cfg.ProjectRoot)
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create %s: %w", paths.Root, err)
	}

	store, err := bbolt.NewStore(paths.DB, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	watcher, err := fsw.NewWatcher()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	a := &App{
		ProjectRoot: cfg.ProjectRoot,
		ProjectID:   cfg.ProjectID,
		Paths:       paths,
		Store:       store,
		Watcher:     watcher,
		Engine:      temme.New(),
		log:         log,
		settings:    cfg.Settings,
		tasks:       make(chan func(), 64),
		quit:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		opened:      make(map[string]bool),
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = fetch.New(fetch.Config{
			Timeout:   cfg.Settings.HTTPTimeout(),
			UserAgent: cfg.Settings.UserAgent,
		})
	}

	a.Host = filehost.New(filehost.Options{
		Recognize:  cfg.Settings.Recognizes,
		LanguageID: cfg.Settings.LanguageID,
		Watcher:    watcher,
		Post:       a.post,
		Out:        cfg.Out,
		Panel:      cfg.Panel,
		Picker:     cfg.Picker,
		Color:      cfg.Color,
		Logger:     log.Named("host"),
	})
	a.Reporter = diagnose.NewReporter(a.Engine, a.Host, diagnose.Options{
		Delay:  cfg.Settings.Debounce(),
		Post:   a.post,
		Logger: log.Named("diagnose"),
	})
	a.Controller = watch.New(watch.Deps{
		Editor:         a.Host,
		Fetcher:        fetcher,
		Evaluator:      a.Engine,
		History:        store,
		Logger:         log.Named("watch"),
		OnStatusChange: a.onStatus,
	}, watch.Config{
		Output: cfg.Settings.OutputKind(),
		Links:  cfg.Settings.LinkMode(),
	})
	// Registered before any watch so diagnostics run ahead of re-evaluation.
	a.Host.OnDidChange(func(ev ports.ChangeEvent) { a.Reporter.Schedule(ev.Document) })
	a.snapshot = a.Controller.Snapshot()

	if cfg.Listen {
		a.Server = socket.NewServer(socket.SocketPath(cfg.ProjectRoot), &daemonCommands{a: a}, log.Named("socket"))
	}
	return a, nil
}

// Start begins the event loop and, for a daemon, the socket server.
func (a *App) Start() error {
	a.started = time.Now()
	if a.running.CompareAndSwap(false, true) {
		go a.loop()
	}
	if a.Server != nil {
		if err := a.Server.Start(); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	}
	a.mu.Lock()
	snap := a.snapshot
	a.mu.Unlock()
	a.writeStatus(snap)
	return nil
}

// Stop gracefully shuts down all services. The watch session ends and the
// store is closed. Idempotent.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		if a.Server != nil {
			a.Server.Stop()
		}
		teardown := func() {
			a.Controller.Dispose()
			a.Reporter.Stop()
			a.closeAll()
		}
		if a.running.Load() {
			if err := a.exec(context.Background(), teardown); err != nil {
				a.log.Warn("teardown", zap.Error(err))
			}
			close(a.quit)
			<-a.loopDone
		} else {
			teardown()
			close(a.quit)
		}
		a.Watcher.Stop()
		a.Store.Close()
		if a.Server != nil {
			a.Paths.CleanEphemeral()
		}
		a.log.Info("stopped", zap.Duration("uptime", time.Since(a.started)))
	})
	return nil
}

// ShutdownCh is closed when a client asks the daemon to shut down. Nil for
// foreground apps.
func (a *App) ShutdownCh() <-chan struct{} {
	if a.Server == nil {
		return nil
	}
	return a.Server.ShutdownCh()
}

func (a *App) loop() {
	defer close(a.loopDone)
	for {
		select {
		case fn := <-a.tasks:
			fn()
		case <-a.quit:
			return
		}
	}
}

// post queues fn on the loop. Work posted after Stop is dropped.
func (a *App) post(fn func()) {
	select {
	case a.tasks <- fn:
	case <-a.quit:
	}
}

// exec runs fn on the loop and waits for it to finish.
func (a *App) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case a.tasks <- task:
	case <-a.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-a.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run opens document and runs its selector once against url. An empty url
// picks among the document's links.
func (a *App) Run(ctx context.Context, path, url string) (socket.RunResult, error) {
	var (
		res    socket.RunResult
		runErr error
	)
	err := a.exec(ctx, func() {
		doc, err := a.open(path)
		if err != nil {
			runErr = err
			return
		}
		defer a.reconcile()

		start := time.Now()
		if err := a.Controller.Run(ctx, url); err != nil {
			runErr = err
			return
		}
		res.Elapsed = time.Since(start).Round(time.Millisecond).String()
		if a.settings.OutputKind() == ports.OutputFile {
			res.Output = watch.OutputPath(doc.Path())
		}
		if recs, err := a.Store.Recent(doc.URI(), 1); err == nil && len(recs) > 0 {
			res.Bytes = recs[0].Bytes
		}
	})
	if err != nil {
		return socket.RunResult{}, err
	}
	return res, runErr
}

// Watch opens document and starts watching it against url, replacing any
// previous session.
func (a *App) Watch(ctx context.Context, path, url string) (socket.StatusResult, error) {
	var watchErr error
	err := a.exec(ctx, func() {
		if _, err := a.open(path); err != nil {
			watchErr = err
			return
		}
		defer a.reconcile()
		watchErr = a.Controller.StartWatch(ctx, url)
	})
	if err != nil {
		return socket.StatusResult{}, err
	}
	return a.Status(), watchErr
}

// StopWatch ends the watch session, if any.
func (a *App) StopWatch() socket.StatusResult {
	err := a.exec(context.Background(), func() {
		a.Controller.Stop()
		a.reconcile()
	})
	if err != nil {
		a.log.Debug("stop watch", zap.Error(err))
	}
	return a.Status()
}

// Status returns the last published session snapshot.
func (a *App) Status() socket.StatusResult {
	a.mu.Lock()
	d := a.snapshot
	a.mu.Unlock()
	return StatusResult(d)
}

// History returns up to limit records for document, newest first. An empty
// document returns records of every document.
func (a *App) History(path string, limit int) (socket.HistoryResult, error) {
	uri, err := DocumentURI(path)
	if err != nil {
		return socket.HistoryResult{}, err
	}
	recs, err := a.Store.Recent(uri, limit)
	if err != nil {
		return socket.HistoryResult{}, fmt.Errorf("read history: %w", err)
	}
	return HistoryResult(recs), nil
}

// open makes path the host's active document and checks it.
func (a *App) open(path string) (ports.Document, error) {
	doc, err := a.Host.Open(path)
	if err != nil {
		return nil, err
	}
	a.opened[doc.Path()] = true
	if a.Host.IsRecognized(doc) {
		a.Reporter.Check(doc)
	}
	return doc, nil
}

// reconcile closes every document except the watched one.
func (a *App) reconcile() {
	snap := a.Controller.Snapshot()
	for path := range a.opened {
		uri := document.FileURI(path)
		if snap.Status == status.Watching && uri == snap.Document {
			continue
		}
		a.Host.Close(path)
		a.Reporter.Forget(uri)
		delete(a.opened, path)
	}
}

func (a *App) closeAll() {
	for path := range a.opened {
		a.Host.Close(path)
		delete(a.opened, path)
	}
}

// onStatus runs on the loop after every controller transition.
func (a *App) onStatus(d status.Data) {
	a.mu.Lock()
	a.snapshot = d
	a.mu.Unlock()
	a.writeStatus(d)
}

func (a *App) writeStatus(d status.Data) {
	if err := status.WriteJSON(a.Paths.Status, d); err != nil {
		a.log.Warn("write status", zap.String("path", a.Paths.Status), zap.Error(err))
	}
}

// DocumentURI maps a CLI document argument to the URI history is keyed by.
// URIs pass through; "" stays "".
func DocumentURI(path string) (string, error) {
	if path == "" || strings.HasPrefix(path, "file://") {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return document.FileURI(abs), nil
}

// StatusResult converts a snapshot to its wire format.
func StatusResult(d status.Data) socket.StatusResult {
	res := socket.StatusResult{
		Status:   string(d.Status),
		Document: d.Document,
		URL:      d.URL,
		Session:  d.Session,
		Output:   d.Output,
	}
	if !d.Since.IsZero() {
		res.Since = d.Since.Unix()
	}
	return res
}

// HistoryResult converts records to their wire format.
func HistoryResult(recs []ports.RunRecord) socket.HistoryResult {
	runs := make([]socket.RunInfo, len(recs))
	for i, r := range recs {
		runs[i] = socket.RunInfo{
			Kind:      string(r.Kind),
			Document:  r.Document,
			URL:       r.URL,
			OK:        r.OK,
			Error:     r.Error,
			Bytes:     r.Bytes,
			ElapsedMs: r.Elapsed.Milliseconds(),
			At:        r.At.Unix(),
		}
	}
	return socket.HistoryResult{Runs: runs, Count: len(runs)}
}

// daemonCommands exposes the App over the socket.
type daemonCommands struct {
	a *App
}

func (d *daemonCommands) Run(ctx context.Context, path, url string) (socket.RunResult, error) {
	return d.a.Run(ctx, path, url)
}

func (d *daemonCommands) Watch(ctx context.Context, path, url string) (socket.StatusResult, error) {
	return d.a.Watch(ctx, path, url)
}

func (d *daemonCommands) Stop() socket.StatusResult { return d.a.StopWatch() }

func (d *daemonCommands) Status() socket.StatusResult { return d.a.Status() }

func (d *daemonCommands) History(path string, limit int) (socket.HistoryResult, error) {
	return d.a.History(path, limit)
}

func (d *daemonCommands) ProjectRoot() string { return d.a.ProjectRoot }
