// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package service is the entry point for inbound chat events. Channel
// adapters hand it raw text and button payloads; it returns the texts to send
// back, so the adapters stay free of business rules.
package service

import (
	"context"
	"errors"

	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/command"
	"github.com/toeirei/joinguard/internal/confirm"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/logging"
)

// Service dispatches chat events to the interpreter and the workflow.
type Service struct {
	interp   *command.Interpreter
	workflow *confirm.Workflow
}

// New wires a service. workflow may be nil, in which case button replies are
// only acknowledged.
func New(store *accounts.Store, workflow *confirm.Workflow) *Service {
	return &Service{interp: command.NewInterpreter(store), workflow: workflow}
}

// OnText handles a free-form message.
func (s *Service) OnText(ctx context.Context, senderID, text string) string {
	verb, arg := command.Split(text)
	return s.OnTextCommand(ctx, senderID, verb, arg)
}

// OnTextCommand handles a command already split into verb and argument.
func (s *Service) OnTextCommand(ctx context.Context, senderID, verb, arg string) string {
	cmd := command.FromParts(verb, arg)
	if u, ok := cmd.(command.Unknown); ok {
		logging.Debugf("service: unknown command %q from %s", u.Verb, senderID)
	}
	reply := s.interp.Execute(ctx, senderID, cmd)
	if _, ok := cmd.(command.CloseSessions); ok && s.workflow != nil {
		if n := s.workflow.Forget(senderID); n > 0 {
			logging.Infof("service: dropped %d pending challenges of %s after /closesessions", n, senderID)
		}
	}
	return reply
}

// OnButtonData handles a raw button payload such as "confirm: 1.2.3.4".
// ack answers the button press; notice is informational and may be empty.
// Follow-up notices are sent by the workflow itself.
func (s *Service) OnButtonData(ctx context.Context, senderID, data string) (ack, notice string) {
	verb, address, err := confirm.ParsePayload(data)
	if err != nil {
		logging.Warnf("service: ignoring malformed button payload %q from %s", data, senderID)
		return i18n.T("confirm.ack"), ""
	}
	return s.OnButtonReply(ctx, senderID, verb, address)
}

// OnButtonReply resolves a decoded approve/deny answer.
func (s *Service) OnButtonReply(ctx context.Context, senderID string, verb confirm.Verb, address string) (ack, notice string) {
	if s.workflow == nil {
		return i18n.T("confirm.ack"), ""
	}
	res, err := s.workflow.ResolveReply(ctx, senderID, verb, address)
	switch {
	case err == nil,
		errors.Is(err, confirm.ErrStaleChallenge),
		errors.Is(err, confirm.ErrUnrecognizedReply):
	default:
		logging.Errorf("service: %s reply from %s for %s failed: %v", verb, senderID, address, err)
	}
	return res.Ack, res.Notice
}
