// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package gate answers "may this player join?" for the game server.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/toeirei/joinguard/internal/confirm"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/logging"
	"github.com/toeirei/joinguard/internal/model"
	"github.com/toeirei/joinguard/internal/trust"
)

// Challenger issues approval prompts. *confirm.Workflow implements it.
type Challenger interface {
	IssueChallenge(ctx context.Context, account model.Account, address string) (confirm.Issued, error)
}

// Decision is the answer given to the game server.
type Decision struct {
	Allow   bool          `json:"allow"`
	Reason  string        `json:"reason,omitempty"`
	Verdict trust.Verdict `json:"-"`
}

// Gate turns trust verdicts into join decisions and triggers challenges.
type Gate struct {
	lookup     trust.AccountLookup
	challenger Challenger
	timeout    time.Duration

	wg sync.WaitGroup
}

// New returns a gate. challenger may be nil when no approval channel is
// running; connections that need confirmation are then rejected without a
// prompt.
func New(lookup trust.AccountLookup, challenger Challenger) *Gate {
	return &Gate{lookup: lookup, challenger: challenger, timeout: 30 * time.Second}
}

// OnPlayerConnect decides on a connection attempt. It never waits for the
// approval channel: challenges are issued in the background.
func (g *Gate) OnPlayerConnect(ctx context.Context, username, address string) Decision {
	d := trust.Evaluate(g.lookup, username, address)
	switch d.Verdict {
	case trust.Trusted:
		logging.Debugf("gate: %s joined from trusted address %s", username, address)
		return Decision{Allow: true, Verdict: d.Verdict}
	case trust.NeedsConfirmation:
		g.challenge(d.Account, address)
		return Decision{Reason: i18n.T("gate.confirm_required"), Verdict: d.Verdict}
	default:
		logging.Infof("gate: rejected unregistered player %s from %s", username, address)
		return Decision{Reason: i18n.T("gate.not_registered"), Verdict: d.Verdict}
	}
}

func (g *Gate) challenge(account model.Account, address string) {
	if g.challenger == nil {
		logging.Warnf("gate: %s needs confirmation for %s but no approval channel is running", account, address)
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		// Detached from the caller: the connection is rejected before the
		// prompt goes out.
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		if _, err := g.challenger.IssueChallenge(ctx, account, address); err != nil {
			if errors.Is(err, confirm.ErrRateLimited) {
				return
			}
			logging.Errorf("gate: could not send confirmation request to %s: %v", account, err)
		}
	}()
}

// Wait blocks until all background challenges have finished.
func (g *Gate) Wait() {
	g.wg.Wait()
}
