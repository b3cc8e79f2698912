// Package lsp hosts the selector tools behind the Language Server Protocol.
//
// One reader goroutine decodes stdin, routes client responses to waiting
// requests and queues everything else. One dispatcher goroutine runs every
// handler and every posted task in arrival order, so the watch controller and
// the diagnostics reporter only ever run on that goroutine.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/status"
	"github.com/corey/temmekit/internal/domain/watch"
	"github.com/corey/temmekit/internal/ports"
)

var (
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")

	errExit = errors.New("lsp exit")
)

// Command identifiers accepted by workspace/executeCommand.
const (
	CommandRun   = "temme.runSelector"
	CommandWatch = "temme.startWatch"
	CommandStop  = "temme.stop"
)

// Controller is the watch session as the server drives it.
type Controller interface {
	Run(ctx context.Context, url string) error
	StartWatch(ctx context.Context, url string) error
	Stop()
	Dispose()
	Snapshot() status.Data
	SetConfig(cfg watch.Config)
}

// Checker is the diagnostics reporter as the server drives it.
type Checker interface {
	Check(doc ports.Document)
	Schedule(doc ports.Document)
	Forget(uri string)
	Stop()
}

// Options configures a Server.
type Options struct {
	// Recognize decides whether a language id / path pair is a selector
	// document.
	Recognize func(languageID, path string) bool
	// Config is the initial presentation config, overridden by client settings.
	Config watch.Config
	// Outliner serves textDocument/documentSymbol. Nil disables it.
	Outliner ports.Outliner
	Logger   *zap.Logger
}

// Server is an LSP server and the ports.Editor the controller talks to.
type Server struct {
	in     *bufio.Reader
	closer io.Closer
	out    *bufio.Writer
	sendMu sync.Mutex
	log    *zap.Logger
	opts   Options

	ctrl    Controller
	checker Checker

	inbox *queue
	tasks chan func()
	quit  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan *rpcMessage
	nextID    atomic.Int64

	mu           sync.Mutex
	docs         map[string]*document.Buffer
	active       string
	listeners    map[int]func(ports.ChangeEvent)
	nextListener int
	cfg          watch.Config
	shutdown     bool
}

var _ ports.Editor = (*Server)(nil)

// NewServer creates a server reading from in and writing to out. When in is
// an io.Closer it is closed as the server stops so the reader unblocks.
func NewServer(in io.Reader, out io.Writer, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Recognize == nil {
		opts.Recognize = func(languageID, _ string) bool { return languageID == "temme" }
	}
	s := &Server{
		in:        bufio.NewReader(in),
		out:       bufio.NewWriter(out),
		log:       log,
		opts:      opts,
		inbox:     newQueue(),
		tasks:     make(chan func(), 64),
		quit:      make(chan struct{}),
		pending:   make(map[string]chan *rpcMessage),
		docs:      make(map[string]*document.Buffer),
		listeners: make(map[int]func(ports.ChangeEvent)),
		cfg:       opts.Config,
	}
	if c, ok := in.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Attach sets the session the server drives. It must be called before Run.
func (s *Server) Attach(ctrl Controller, checker Checker) {
	s.ctrl = ctrl
	s.checker = checker
}

// Post queues fn to run on the dispatcher. Work posted after the server
// stopped is dropped.
func (s *Server) Post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.quit:
	}
}

// Run serves until the client sends exit or closes the input. An exit after
// shutdown, and end of input, return nil.
func (s *Server) Run(ctx context.Context) error {
	if s.ctrl == nil || s.checker == nil {
		return errors.New("lsp: Attach must be called before Run")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return s.readLoop(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return s.dispatch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		close(s.quit)
		if s.closer != nil {
			s.closer.Close()
		}
		return nil
	})

	err := g.Wait()
	s.checker.Stop()
	s.ctrl.Dispose()
	if errors.Is(err, errExit) {
		return nil
	}
	return err
}

func (s *Server) readLoop(ctx context.Context) error {
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Warn("failed to parse message", zap.Error(err))
			continue
		}
		if msg.Method == "" {
			s.deliverResponse(&msg)
			continue
		}
		s.inbox.push(&msg)
	}
}

func (s *Server) deliverResponse(msg *rpcMessage) {
	key := string(msg.ID)
	s.pendingMu.Lock()
	ch, ok := s.pending[key]
	delete(s.pending, key)
	s.pendingMu.Unlock()
	if !ok {
		s.log.Debug("response without a waiting request", zap.String("id", key))
		return
	}
	ch <- msg
}

func (s *Server) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.tasks:
			fn()
		case <-s.inbox.ready:
			msg, ok := s.inbox.pop()
			if !ok {
				continue
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, msg *rpcMessage) error {
	s.mu.Lock()
	shutdown := s.shutdown
	s.mu.Unlock()
	if shutdown && msg.Method != "exit" {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeInvalidRequest, "server is shutting down")
		}
		return nil
	}

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		s.publishStatus()
		return nil
	case "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.ctrl.Stop()
		return s.sendResponse(msg.ID, nil)
	case "exit":
		if shutdown {
			return errExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "workspace/executeCommand":
		return s.handleExecuteCommand(ctx, msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/documentSymbol":
		return s.handleDocumentSymbol(msg)
	case "textDocument/codeAction":
		return s.handleCodeAction(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	if len(params.InitializationOptions) > 0 {
		s.applySettings(params.InitializationOptions)
	}
	s.log.Info("initialize", zap.String("root", params.RootURI))

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save:      saveOptions{IncludeText: true},
			},
			ExecuteCommandProvider: executeCommandOptions{
				Commands: []string{CommandRun, CommandWatch, CommandStop},
			},
			DocumentSymbolProvider: s.opts.Outliner != nil,
			CodeActionProvider:     true,
		},
		ServerInfo: serverInfo{Name: "temme"},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.badNotification(msg, err)
	}
	item := params.TextDocument
	buf := document.New(item.URI, document.PathFromURI(item.URI), item.LanguageID, item.Text)
	buf.Set(item.Text, item.Version)

	s.mu.Lock()
	s.docs[item.URI] = buf
	s.mu.Unlock()

	if s.IsRecognized(buf) {
		s.setActive(item.URI)
		s.checker.Check(buf)
	}
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.badNotification(msg, err)
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	buf, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok {
		s.log.Debug("change for unknown document", zap.String("uri", uri))
		return nil
	}
	text, firstLine := applyChanges(buf.Text(), params.ContentChanges)
	buf.Set(text, params.TextDocument.Version)

	if !s.IsRecognized(buf) {
		return nil
	}
	s.setActive(uri)
	s.checker.Schedule(buf)
	s.fire(ports.ChangeEvent{Document: buf, FirstLine: firstLine})
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.badNotification(msg, err)
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	buf, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok || params.Text == nil || *params.Text == buf.Text() {
		return nil
	}
	buf.Set(*params.Text, buf.Version())
	if s.IsRecognized(buf) {
		s.checker.Schedule(buf)
		s.fire(ports.ChangeEvent{Document: buf})
	}
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.badNotification(msg, err)
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	_, ok := s.docs[uri]
	delete(s.docs, uri)
	if s.active == uri {
		s.active = ""
	}
	s.mu.Unlock()
	if ok {
		s.checker.Forget(uri)
	}
	snap := s.ctrl.Snapshot()
	if snap.Status == status.Watching && snap.Document == uri {
		s.ctrl.Stop()
	}
	s.publishStatus()
	return nil
}

func (s *Server) badNotification(msg *rpcMessage, err error) error {
	s.log.Warn("invalid params", zap.String("method", msg.Method), zap.Error(err))
	return nil
}

func (s *Server) setActive(uri string) {
	s.mu.Lock()
	changed := s.active != uri
	s.active = uri
	s.mu.Unlock()
	if changed {
		s.publishStatus()
	}
}

func (s *Server) fire(ev ports.ChangeEvent) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Ints(ids)
	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.listeners[id]
		s.mu.Unlock()
		if ok {
			fn(ev)
		}
	}
}

// PublishStatus sends the temme/status notification for d.
func (s *Server) PublishStatus(d status.Data) {
	_, recognized := s.ActiveDocument()
	s.notify("temme/status", statusParams{
		Status:   string(d.Status),
		Label:    status.Label(d, recognized),
		Document: d.Document,
		URL:      d.URL,
		Session:  d.Session,
		Output:   d.Output,
	})
}

func (s *Server) publishStatus() {
	if s.ctrl == nil {
		return
	}
	s.PublishStatus(s.ctrl.Snapshot())
}

// call sends a request to the client and waits for its response.
func (s *Server) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	key := strconv.FormatInt(id, 10)
	ch := make(chan *rpcMessage, 1)
	s.pendingMu.Lock()
	s.pending[key] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, key)
		s.pendingMu.Unlock()
	}()

	if err := s.send(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.quit:
		return nil, errors.New("lsp: server stopped")
	}
}

// request sends a request whose response nobody waits for.
func (s *Server) request(method string, params any) {
	id := s.nextID.Add(1)
	if err := s.send(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}); err != nil {
		s.log.Warn("send request", zap.String("method", method), zap.Error(err))
	}
}

func (s *Server) notify(method string, params any) {
	if err := s.send(map[string]any{"jsonrpc": "2.0", "method": method, "params": params}); err != nil {
		s.log.Warn("send notification", zap.String("method", method), zap.Error(err))
	}
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	return s.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	return s.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   rpcError{Code: code, Message: message},
	})
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}
