package lsp

import (
	"encoding/json"

	"github.com/corey/temmekit/internal/ports"
)

// LSP SymbolKind values used by the outline.
const (
	kindField    = 8
	kindConstant = 14
	kindArray    = 18
	kindObject   = 19
)

func (s *Server) handleDocumentSymbol(msg *rpcMessage) error {
	var params documentSymbolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	s.mu.Lock()
	buf, ok := s.docs[params.TextDocument.URI]
	s.mu.Unlock()
	if !ok || s.opts.Outliner == nil {
		return s.sendResponse(msg.ID, []documentSymbol{})
	}
	syms, err := s.opts.Outliner.Outline(buf.Text())
	if err != nil {
		// The outline of text that does not parse is empty; the diagnostic
		// says why.
		return s.sendResponse(msg.ID, []documentSymbol{})
	}
	return s.sendResponse(msg.ID, toDocumentSymbols(buf, syms))
}

func toDocumentSymbols(doc ports.Document, syms []ports.OutlineSymbol) []documentSymbol {
	out := make([]documentSymbol, 0, len(syms))
	for _, sym := range syms {
		line := sym.Start.Line - 1
		if line < 0 {
			line = 0
		}
		start := ports.Position{Line: line, Character: maxZero(sym.Start.Column - 1)}
		r := ports.Range{Start: start, End: lineEnd(doc, line)}
		if r.End.Character < start.Character {
			r.End = start
		}
		ds := documentSymbol{
			Name:           sym.Name,
			Detail:         sym.Detail,
			Kind:           symbolKind(sym.Kind),
			Range:          r,
			SelectionRange: r,
		}
		if len(sym.Children) > 0 {
			ds.Children = toDocumentSymbols(doc, sym.Children)
		}
		out = append(out, ds)
	}
	return out
}

func symbolKind(k ports.SymbolKind) int {
	switch k {
	case ports.SymbolArray:
		return kindArray
	case ports.SymbolCapture:
		return kindField
	case ports.SymbolAssignment:
		return kindConstant
	default:
		return kindObject
	}
}

func maxZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
