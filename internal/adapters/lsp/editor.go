package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/watch"
	"github.com/corey/temmekit/internal/ports"
)

// ActiveDocument returns the recognized document most recently opened,
// edited or targeted by a command.
func (s *Server) ActiveDocument() (ports.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.docs[s.active]
	if !ok {
		return nil, false
	}
	return buf, true
}

// IsRecognized applies the configured recognizer.
func (s *Server) IsRecognized(doc ports.Document) bool {
	return s.opts.Recognize(doc.LanguageID(), doc.Path())
}

// OnDidChange registers fn for edits of recognized documents.
func (s *Server) OnDidChange(fn func(ports.ChangeEvent)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SetDiagnostics publishes diags for uri, replacing the previous set.
func (s *Server) SetDiagnostics(uri string, diags []ports.Diagnostic) {
	if diags == nil {
		diags = []ports.Diagnostic{}
	}
	s.notify("textDocument/publishDiagnostics", publishDiagnosticsParams{URI: uri, Diagnostics: diags})
}

// ClearDiagnostics publishes an empty set for uri.
func (s *Server) ClearDiagnostics(uri string) {
	s.SetDiagnostics(uri, nil)
}

// ShowMessage sends window/showMessage.
func (s *Server) ShowMessage(level ports.MessageLevel, message string) {
	typ := messageInfo
	switch level {
	case ports.LevelWarning:
		typ = messageWarning
	case ports.LevelError:
		typ = messageError
	}
	s.notify("window/showMessage", showMessageParams{Type: typ, Message: message})
}

// QuickPick asks through window/showMessageRequest with one action per item.
// A dismissed request returns ports.ErrNoSelection.
func (s *Server) QuickPick(ctx context.Context, placeholder string, items []string) (string, error) {
	actions := make([]messageActionItem, len(items))
	for i, item := range items {
		actions[i] = messageActionItem{Title: item}
	}
	raw, err := s.call(ctx, "window/showMessageRequest", showMessageRequestParams{
		Type:    messageInfo,
		Message: placeholder,
		Actions: actions,
	})
	if err != nil {
		return "", err
	}
	var picked *messageActionItem
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &picked); err != nil {
			return "", fmt.Errorf("showMessageRequest result: %w", err)
		}
	}
	if picked == nil || picked.Title == "" {
		return "", ports.ErrNoSelection
	}
	return picked.Title, nil
}

// OpenOutput opens the sibling <doc>.json in the editor, or returns a
// surface that streams results as temme/output notifications.
func (s *Server) OpenOutput(_ context.Context, source ports.Document, kind ports.OutputKind) (ports.OutputSurface, error) {
	if kind == ports.OutputPanel {
		return &panelOutput{s: s, uri: source.URI()}, nil
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
	out := &fileOutput{path: path}
	s.request("window/showDocument", showDocumentParams{URI: out.URI(), TakeFocus: false})
	return out, nil
}

type fileOutput struct {
	path string
}

func (o *fileOutput) URI() string { return document.FileURI(o.path) }

func (o *fileOutput) Replace(_ context.Context, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(o.path), ".temme-out-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(text + "\n"); err != nil {
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

type panelOutput struct {
	s   *Server
	uri string
}

func (o *panelOutput) URI() string { return "temme-output:" + o.uri }

func (o *panelOutput) Replace(_ context.Context, text string) error {
	o.s.log.Debug("panel output", zap.String("uri", o.uri), zap.Int("bytes", len(text)))
	return o.s.send(map[string]any{
		"jsonrpc": "2.0",
		"method":  "temme/output",
		"params":  outputParams{URI: o.uri, Text: text},
	})
}
