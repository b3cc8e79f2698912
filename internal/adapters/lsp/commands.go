package lsp

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/domain/links"
	"github.com/corey/temmekit/internal/ports"
)

// handleExecuteCommand runs a session command. Arguments are
// [documentURI?, url?]; a known document URI becomes the active document.
// Failures were already shown to the user, so the response carries the
// session snapshot either way.
func (s *Server) handleExecuteCommand(ctx context.Context, msg *rpcMessage) error {
	var params executeCommandParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	docURI, url := stringArg(params.Arguments, 0), stringArg(params.Arguments, 1)
	if docURI != "" {
		s.mu.Lock()
		_, known := s.docs[docURI]
		s.mu.Unlock()
		if known {
			s.setActive(docURI)
		}
	}

	var err error
	switch params.Command {
	case CommandRun:
		err = s.ctrl.Run(ctx, url)
	case CommandWatch:
		err = s.ctrl.StartWatch(ctx, url)
	case CommandStop:
		s.ctrl.Stop()
	default:
		return s.sendError(msg.ID, codeInvalidParams, "unknown command: "+params.Command)
	}
	if err != nil && !errors.Is(err, ports.ErrNoSelection) {
		s.log.Info("command failed", zap.String("command", params.Command), zap.Error(err))
	}
	return s.sendResponse(msg.ID, s.ctrl.Snapshot())
}

func stringArg(args []json.RawMessage, i int) string {
	if i >= len(args) {
		return ""
	}
	var v string
	if err := json.Unmarshal(args[i], &v); err != nil {
		return ""
	}
	return v
}

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	var wrapped struct {
		Temme json.RawMessage `json:"temme"`
	}
	if err := json.Unmarshal(params.Settings, &wrapped); err == nil && len(wrapped.Temme) > 0 {
		s.applySettings(wrapped.Temme)
	}
	return nil
}

// applySettings merges client settings over the current config. Unknown
// values are ignored.
func (s *Server) applySettings(raw json.RawMessage) {
	var in settings
	if err := json.Unmarshal(raw, &in); err != nil {
		s.log.Warn("invalid settings", zap.Error(err))
		return
	}
	s.mu.Lock()
	cfg := s.cfg
	switch ports.OutputKind(in.Output) {
	case ports.OutputFile, ports.OutputPanel:
		cfg.Output = ports.OutputKind(in.Output)
	}
	if in.Links != "" {
		cfg.Links = links.ParseMode(in.Links)
	}
	s.cfg = cfg
	s.mu.Unlock()

	if s.ctrl != nil {
		s.ctrl.SetConfig(cfg)
	}
	s.log.Info("settings applied", zap.String("output", string(cfg.Output)), zap.String("links", string(cfg.Links)))
}
