package ports

// SelectorParser validates selector text. The parsed tree is discarded; only
// the error matters. Failures are *SyntaxError.
type SelectorParser interface {
	Parse(selector string) error
}

// Markup is a loaded, reusable markup handle. Loading is the expensive step
// (parse HTML into a tree); evaluating against a handle is cheap, which is
// what makes fetch-once/evaluate-many watch sessions possible.
type Markup interface {
	// Size is the byte length of the source markup.
	Size() int
}

// Evaluator runs selector text against markup and returns a JSON-marshalable
// result. Evaluate fails with *SyntaxError when the selector does not parse
// and *EvaluationError for anything that goes wrong afterwards.
type Evaluator interface {
	Load(html string) (Markup, error)
	Evaluate(markup Markup, selector string) (any, error)
}

// SymbolKind classifies an outline entry.
type SymbolKind string

const (
	SymbolRule       SymbolKind = "rule"
	SymbolArray      SymbolKind = "array"
	SymbolCapture    SymbolKind = "capture"
	SymbolAssignment SymbolKind = "assignment"
)

// OutlineSymbol is one entry of a document outline. Start is where the
// statement begins.
type OutlineSymbol struct {
	Name     string
	Detail   string
	Kind     SymbolKind
	Start    SourcePos
	Children []OutlineSymbol
}

// Outliner lists the statements of selector text as a tree. Text that does
// not parse yields *SyntaxError.
type Outliner interface {
	Outline(selector string) ([]OutlineSymbol, error)
}
