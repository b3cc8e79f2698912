package ports

import "context"

// =============================================================================
// Host Editor Port
//
// Everything the controller needs from the editor hosting it. Two hosts
// implement it: the LSP server (a real editor on the other end of stdio) and
// the filesystem host (documents are files, changes come from fsnotify).
//
// Hosts deliver every callback on one logical thread. Implementations of the
// domain side hold no locks and rely on that.
// =============================================================================

// Document is an open selector document. Identity is the URI; Text and LineAt
// always return the current content, never a snapshot.
type Document interface {
	URI() string
	// Path is the filesystem path, empty for documents with no file behind them.
	Path() string
	LanguageID() string
	Text() string
	LineCount() int
	// LineAt returns line i without its terminator, "" when out of range.
	LineAt(i int) string
}

// ChangeEvent is delivered for every edit of a recognized document.
type ChangeEvent struct {
	Document Document
	// FirstLine is the zero-based first line touched by the edit, 0 when the
	// host cannot tell.
	FirstLine int
}

// Position is a zero-based editor position. Character counts UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a zero-based editor range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Severity follows LSP numbering.
type Severity int

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
	SeverityInfo    Severity = 3
	SeverityHint    Severity = 4
)

// Diagnostic is one problem reported against a document range.
type Diagnostic struct {
	Range    Range    `json:"range"`
	Severity Severity `json:"severity"`
	Source   string   `json:"source"`
	Message  string   `json:"message"`
}

// MessageLevel selects the kind of user notification.
type MessageLevel int

const (
	LevelInfo MessageLevel = iota
	LevelWarning
	LevelError
)

// String returns the level name.
func (l MessageLevel) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// OutputKind selects where results are presented.
type OutputKind string

const (
	// OutputFile writes <doc>.json next to the document and opens it.
	OutputFile OutputKind = "file"
	// OutputPanel renders into the host's side panel.
	OutputPanel OutputKind = "panel"
)

// OutputSurface receives pretty-printed results. Replace overwrites the whole
// content.
type OutputSurface interface {
	URI() string
	Replace(ctx context.Context, text string) error
}

// DiagnosticSink stores diagnostics keyed by document URI. Set replaces the
// previous set for that URI.
type DiagnosticSink interface {
	SetDiagnostics(uri string, diags []Diagnostic)
	ClearDiagnostics(uri string)
}

// Notifier shows interruptive messages to the user.
type Notifier interface {
	ShowMessage(level MessageLevel, message string)
}

// Picker asks the user for one choice among items. A dismissed prompt returns
// ErrNoSelection.
type Picker interface {
	QuickPick(ctx context.Context, placeholder string, items []string) (string, error)
}

// Editor is the full host surface.
type Editor interface {
	DiagnosticSink
	Notifier
	Picker

	// ActiveDocument returns the document the user is working in.
	ActiveDocument() (Document, bool)
	// IsRecognized reports whether doc belongs to the selector language.
	IsRecognized(doc Document) bool
	// OnDidChange registers fn for change events of recognized documents.
	// The returned function unregisters it; calling it twice is harmless.
	OnDidChange(fn func(ChangeEvent)) (unsubscribe func())
	// OpenOutput opens or reveals the output surface adjacent to source.
	OpenOutput(ctx context.Context, source Document, kind OutputKind) (OutputSurface, error)
}
