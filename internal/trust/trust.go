// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package trust decides whether a connection attempt may proceed.
package trust

import "github.com/toeirei/joinguard/internal/model"

// Verdict is the outcome of evaluating a connection attempt.
type Verdict int

const (
	// Unknown means no account exists for the username.
	Unknown Verdict = iota
	// Trusted means the address is in the account's trusted set.
	Trusted
	// NeedsConfirmation means the account exists but the address is new.
	NeedsConfirmation
)

func (v Verdict) String() string {
	switch v {
	case Unknown:
		return "unknown"
	case Trusted:
		return "trusted"
	case NeedsConfirmation:
		return "needs-confirmation"
	default:
		return "invalid"
	}
}

// AccountLookup is the read side of the account store.
type AccountLookup interface {
	FindByUsername(name string) (model.Account, bool)
}

// Decision carries the verdict and, unless it is Unknown, the matched account.
type Decision struct {
	Verdict Verdict
	Account model.Account
}

// Evaluate classifies a connection by username and address. It has no side
// effects; acting on NeedsConfirmation is up to the caller.
func Evaluate(lookup AccountLookup, username, address string) Decision {
	acc, ok := lookup.FindByUsername(username)
	if !ok {
		return Decision{Verdict: Unknown}
	}
	if acc.HasAddress(address) {
		return Decision{Verdict: Trusted, Account: acc}
	}
	return Decision{Verdict: NeedsConfirmation, Account: acc}
}
