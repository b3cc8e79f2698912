// Package diagnose turns selector parse failures into editor diagnostics.
package diagnose

import (
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/ports"
)

// Source is the diagnostic source label shown by editors.
const Source = "temme"

// Options configures a Reporter.
type Options struct {
	// Delay coalesces rapid edits. Zero checks on every Schedule call.
	Delay time.Duration
	// Post moves debounced work back onto the host loop. Nil runs it on the
	// timer goroutine.
	Post   func(func())
	Logger *zap.Logger
}

// Reporter parses documents and publishes at most one diagnostic per
// document, replacing whatever was there before.
type Reporter struct {
	parser   ports.SelectorParser
	sink     ports.DiagnosticSink
	debounce *Debouncer
	log      *zap.Logger
}

// NewReporter creates a reporter publishing into sink.
func NewReporter(parser ports.SelectorParser, sink ports.DiagnosticSink, opts Options) *Reporter {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		parser:   parser,
		sink:     sink,
		debounce: NewDebouncer(opts.Delay, opts.Post),
		log:      log,
	}
}

// Check parses doc now. A clean parse clears the document's diagnostics.
func (r *Reporter) Check(doc ports.Document) {
	err := r.parser.Parse(doc.Text())
	if err == nil {
		r.sink.ClearDiagnostics(doc.URI())
		return
	}
	var se *ports.SyntaxError
	msg := err.Error()
	if errors.As(err, &se) {
		msg = se.Message
	} else {
		r.log.Warn("parser failed without a syntax error", zap.String("uri", doc.URI()), zap.Error(err))
	}
	r.log.Debug("syntax error", zap.String("uri", doc.URI()), zap.String("message", msg))
	r.sink.SetDiagnostics(doc.URI(), []ports.Diagnostic{{
		Range:    Range(doc, err),
		Severity: ports.SeverityError,
		Source:   Source,
		Message:  msg,
	}})
}

// Schedule checks doc after the configured idle delay. A newer Schedule for
// the same document replaces a pending one.
func (r *Reporter) Schedule(doc ports.Document) {
	r.debounce.Trigger(doc.URI(), func() { r.Check(doc) })
}

// Forget drops a pending check and the diagnostics of a closed document.
func (r *Reporter) Forget(uri string) {
	r.debounce.Cancel(uri)
	r.sink.ClearDiagnostics(uri)
}

// Stop cancels every pending check.
func (r *Reporter) Stop() {
	r.debounce.Stop()
}

// Range maps a parse failure onto doc. With a location the range starts at
// the reported position and ends at the end of the reported end line; without
// one it covers line 0.
func Range(doc ports.Document, err error) ports.Range {
	var se *ports.SyntaxError
	if !errors.As(err, &se) || se.Location == nil {
		return ports.Range{End: ports.Position{Character: utf16Len(doc.LineAt(0))}}
	}
	loc := se.Location
	startLine := clampLine(doc, loc.Start.Line-1)
	endLine := clampLine(doc, loc.End.Line-1)
	if endLine < startLine {
		endLine = startLine
	}
	return ports.Range{
		Start: ports.Position{Line: startLine, Character: maxZero(loc.Start.Column - 1)},
		End:   ports.Position{Line: endLine, Character: utf16Len(doc.LineAt(endLine))},
	}
}

func clampLine(doc ports.Document, line int) int {
	if n := doc.LineCount(); line >= n {
		line = n - 1
	}
	return maxZero(line)
}

func maxZero(x int) int {
	if x < 0 {
		return 0
	}
	return x
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 && r != utf8.RuneError {
			n += 2
		} else {
			n++
		}
	}
	return n
}
