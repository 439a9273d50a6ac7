// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package command

import (
	"context"
	"errors"
	"strings"

	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/logging"
	"github.com/toeirei/joinguard/internal/model"
)

// Store is the part of the account store the commands use.
type Store interface {
	FindByExternalID(id string) (model.Account, bool)
	CreateAccount(ctx context.Context, username, externalID string) (model.Account, error)
	RenameAccount(ctx context.Context, externalID, newUsername string) error
	ClearAddresses(ctx context.Context, externalID string) error
}

// Interpreter executes commands on behalf of a chat identity.
type Interpreter struct {
	store Store
}

// NewInterpreter returns an interpreter working on store.
func NewInterpreter(store Store) *Interpreter {
	return &Interpreter{store: store}
}

// Execute runs cmd for senderID and returns the reply text. Every command
// produces exactly one reply and at most one store mutation.
func (in *Interpreter) Execute(ctx context.Context, senderID string, cmd Command) string {
	switch c := cmd.(type) {
	case Start:
		return i18n.T("bot.start")
	case Help:
		return i18n.T("bot.help")
	case Register:
		return in.register(ctx, senderID, c.Username)
	case Status:
		return in.status(senderID)
	case ChangeUsername:
		return in.changeUsername(ctx, senderID, c.Username)
	case CloseSessions:
		return in.closeSessions(ctx, senderID)
	default:
		return i18n.T("bot.unknown")
	}
}

func (in *Interpreter) register(ctx context.Context, senderID, username string) string {
	if username == "" {
		return i18n.T("bot.register.usage")
	}
	if acc, ok := in.store.FindByExternalID(senderID); ok {
		return i18n.T("bot.register.already", acc.Username)
	}

	acc, err := in.store.CreateAccount(ctx, username, senderID)
	switch {
	case err == nil:
		return i18n.T("bot.register.success", acc.Username)
	case errors.Is(err, accounts.ErrNameTaken):
		return i18n.T("bot.name_taken")
	case errors.Is(err, accounts.ErrAlreadyRegistered):
		// Lost a race against another /register from the same identity.
		if cur, ok := in.store.FindByExternalID(senderID); ok {
			return i18n.T("bot.register.already", cur.Username)
		}
		return i18n.T("bot.register.already", username)
	case errors.Is(err, accounts.ErrBlankArgument):
		return i18n.T("bot.register.usage")
	default:
		logging.Errorf("command: register %q for %s failed: %v", username, senderID, err)
		return i18n.T("bot.error")
	}
}

func (in *Interpreter) status(senderID string) string {
	acc, ok := in.store.FindByExternalID(senderID)
	if !ok {
		return i18n.T("bot.status.none")
	}

	var b strings.Builder
	b.WriteString(i18n.T("bot.status.username", acc.Username))
	b.WriteString("\n")
	b.WriteString(i18n.T("bot.status.addresses"))
	b.WriteString(" ")
	if len(acc.TrustedAddresses) == 0 {
		b.WriteString(i18n.T("bot.status.addresses_none"))
	} else {
		b.WriteString(strings.Join(acc.TrustedAddresses, ", "))
	}
	return b.String()
}

func (in *Interpreter) changeUsername(ctx context.Context, senderID, username string) string {
	if username == "" {
		return i18n.T("bot.changeusername.usage")
	}

	err := in.store.RenameAccount(ctx, senderID, username)
	switch {
	case err == nil:
		return i18n.T("bot.changeusername.success", username)
	case errors.Is(err, accounts.ErrNotRegistered):
		return i18n.T("bot.not_registered")
	case errors.Is(err, accounts.ErrNameTaken):
		return i18n.T("bot.name_taken")
	default:
		logging.Errorf("command: rename of %s to %q failed: %v", senderID, username, err)
		return i18n.T("bot.error")
	}
}

func (in *Interpreter) closeSessions(ctx context.Context, senderID string) string {
	err := in.store.ClearAddresses(ctx, senderID)
	switch {
	case err == nil:
		return i18n.T("bot.closesessions.success")
	case errors.Is(err, accounts.ErrNotRegistered):
		return i18n.T("bot.not_registered")
	default:
		logging.Errorf("command: closing sessions of %s failed: %v", senderID, err)
		return i18n.T("bot.error")
	}
}
