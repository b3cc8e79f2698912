package temme

import (
	"strings"

	"github.com/corey/temmekit/internal/ports"
)

var _ ports.Outliner = (*Engine)(nil)

// Outline parses selector text and lists its statements as a tree.
func (e *Engine) Outline(selector string) ([]ports.OutlineSymbol, error) {
	prog, err := Parse(selector)
	if err != nil {
		return nil, err
	}
	return outline(prog.Stmts), nil
}

func outline(stmts []Stmt) []ports.OutlineSymbol {
	var out []ports.OutlineSymbol
	for _, st := range stmts {
		switch s := st.(type) {
		case *SelectorRule:
			sym := ports.OutlineSymbol{
				Name:     s.CSS(),
				Kind:     ports.SymbolRule,
				Start:    s.Pos,
				Children: outline(s.Children),
			}
			if s.Array {
				sym.Kind = ports.SymbolArray
				sym.Detail = "@" + s.ArrayName
			}
			for _, c := range s.captures() {
				sym.Children = append(sym.Children, ports.OutlineSymbol{
					Name:   "$" + c.Name,
					Detail: "[" + c.Attr + "]" + filterChain(c.Filters),
					Kind:   ports.SymbolCapture,
					Start:  s.Parts[len(s.Parts)-1].Pos,
				})
			}
			out = append(out, sym)
		case *ContentCapture:
			out = append(out, ports.OutlineSymbol{
				Name:   "$" + s.Name,
				Detail: strings.TrimPrefix(filterChain(s.Filters), "|"),
				Kind:   ports.SymbolCapture,
				Start:  s.Pos,
			})
		case *Assignment:
			out = append(out, ports.OutlineSymbol{
				Name:  "$" + s.Name,
				Kind:  ports.SymbolAssignment,
				Start: s.Pos,
			})
		}
	}
	return out
}

func filterChain(filters []Filter) string {
	var b strings.Builder
	for _, f := range filters {
		b.WriteString("|")
		b.WriteString(f.Name)
	}
	return b.String()
}
