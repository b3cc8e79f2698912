package lsp

import (
	"encoding/json"

	"github.com/corey/temmekit/internal/domain/links"
	"github.com/corey/temmekit/internal/ports"
)

// handleCodeAction offers run and watch for every annotated link line the
// requested range touches. The commands carry [documentURI, url], so picking
// one skips the link prompt.
func (s *Server) handleCodeAction(msg *rpcMessage) error {
	var params codeActionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	buf, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok || !s.IsRecognized(buf) {
		return s.sendResponse(msg.ID, []codeAction{})
	}
	return s.sendResponse(msg.ID, linkActions(buf, params.Range))
}

func linkActions(doc ports.Document, r ports.Range) []codeAction {
	actions := []codeAction{}
	last := r.End.Line
	if n := doc.LineCount() - 1; last > n {
		last = n
	}
	for line := maxZero(r.Start.Line); line <= last; line++ {
		found := links.ExtractTagged([]string{doc.LineAt(line)})
		if len(found) == 0 {
			continue
		}
		label := found[0].Label()
		args := []string{doc.URI(), found[0].URL}
		actions = append(actions,
			codeAction{
				Title:   "Run selector with " + label,
				Kind:    "source",
				Command: &command{Title: "Run selector", Command: CommandRun, Arguments: args},
			},
			codeAction{
				Title:   "Start watch with " + label,
				Kind:    "source",
				Command: &command{Title: "Start watch", Command: CommandWatch, Arguments: args},
			},
		)
	}
	return actions
}
