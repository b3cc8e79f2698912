package temme

import (
	"strings"

	"github.com/corey/temmekit/internal/ports"
)

// Program is a parsed selector document.
type Program struct {
	Stmts []Stmt
}

// Stmt is one statement at any nesting level.
type Stmt interface {
	stmt()
}

// SelectorRule selects elements and evaluates its children against them.
//
//	li.item@items { $name }
type SelectorRule struct {
	Parts     []Part
	Array     bool   // "@" present
	ArrayName string // empty for a default array capture
	Children  []Stmt
	Pos       ports.SourcePos
}

// Part is one compound selector plus the combinator joining it to the
// previous part ("" for the first part, " " for descendant).
type Part struct {
	Combinator string
	CSS        string
	Captures   []AttrCapture
	Pos        ports.SourcePos
}

// AttrCapture is "[attr=$name|filter]".
type AttrCapture struct {
	Attr    string
	Name    string
	Filters []Filter
}

// ContentCapture is "$name|filter" inside a rule body: the text content of
// the element in scope.
type ContentCapture struct {
	Name    string
	Filters []Filter
	Pos     ports.SourcePos
}

// Assignment is "$name = literal".
type Assignment struct {
	Name  string
	Value any
	Pos   ports.SourcePos
}

// Filter is one "|name" step.
type Filter struct {
	Name string
	Pos  ports.SourcePos
}

func (*SelectorRule) stmt()   {}
func (*ContentCapture) stmt() {}
func (*Assignment) stmt()     {}

// CSS joins the rule's compounds into one CSS selector.
func (r *SelectorRule) CSS() string {
	var b strings.Builder
	for i, p := range r.Parts {
		if i > 0 {
			if p.Combinator == " " {
				b.WriteByte(' ')
			} else {
				b.WriteString(" " + p.Combinator + " ")
			}
		}
		b.WriteString(p.CSS)
	}
	return b.String()
}

// captures returns the attribute captures of the last compound.
func (r *SelectorRule) captures() []AttrCapture {
	if len(r.Parts) == 0 {
		return nil
	}
	return r.Parts[len(r.Parts)-1].Captures
}
