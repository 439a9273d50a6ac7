// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package accounts

import (
	"fmt"
	"strings"

	"github.com/toeirei/joinguard/internal/logging"
	"github.com/toeirei/joinguard/internal/model"
)

// Snapshot is an immutable view of the account records. It is safe to share
// between goroutines; every accessor returns copies.
type Snapshot struct {
	accounts []model.Account
	byName   map[string]int
	byExt    map[string]int
}

func newSnapshot(accounts []model.Account) *Snapshot {
	s := &Snapshot{
		accounts: make([]model.Account, 0, len(accounts)),
		byName:   make(map[string]int, len(accounts)),
		byExt:    make(map[string]int, len(accounts)),
	}
	for _, a := range accounts {
		s.byName[model.UsernameKey(a.Username)] = len(s.accounts)
		s.byExt[a.ExternalID] = len(s.accounts)
		s.accounts = append(s.accounts, a.Clone())
	}
	return s
}

// Len returns the number of accounts.
func (s *Snapshot) Len() int { return len(s.accounts) }

// Accounts returns a deep copy of all records in storage order.
func (s *Snapshot) Accounts() []model.Account {
	out := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out
}

// FindByUsername looks up an account by case-insensitive username.
func (s *Snapshot) FindByUsername(name string) (model.Account, bool) {
	i, ok := s.byName[model.UsernameKey(name)]
	if !ok {
		return model.Account{}, false
	}
	return s.accounts[i].Clone(), true
}

// FindByExternalID looks up an account by exact chat identity.
func (s *Snapshot) FindByExternalID(id string) (model.Account, bool) {
	i, ok := s.byExt[id]
	if !ok {
		return model.Account{}, false
	}
	return s.accounts[i].Clone(), true
}

// Validate checks that accounts satisfy the store's uniqueness rules.
func Validate(accounts []model.Account) error {
	names := make(map[string]struct{}, len(accounts))
	exts := make(map[string]struct{}, len(accounts))
	for i, a := range accounts {
		if strings.TrimSpace(a.Username) == "" || strings.TrimSpace(a.ExternalID) == "" {
			return fmt.Errorf("record %d: %w", i, ErrBlankArgument)
		}
		key := model.UsernameKey(a.Username)
		if _, dup := names[key]; dup {
			return fmt.Errorf("record %d (%s): %w", i, a.Username, ErrNameTaken)
		}
		if _, dup := exts[a.ExternalID]; dup {
			return fmt.Errorf("record %d (%s): %w", i, a.ExternalID, ErrAlreadyRegistered)
		}
		names[key] = struct{}{}
		exts[a.ExternalID] = struct{}{}
	}
	return nil
}

// sanitize drops records from durable state that would break the uniqueness
// rules. The first record wins. Duplicate addresses inside a record collapse.
func sanitize(accounts []model.Account) []model.Account {
	names := make(map[string]struct{}, len(accounts))
	exts := make(map[string]struct{}, len(accounts))
	out := make([]model.Account, 0, len(accounts))
	for _, a := range accounts {
		if strings.TrimSpace(a.Username) == "" || strings.TrimSpace(a.ExternalID) == "" {
			logging.Warnf("accounts: skipping stored record with blank username or identity: %s", a)
			continue
		}
		key := model.UsernameKey(a.Username)
		if _, dup := names[key]; dup {
			logging.Warnf("accounts: skipping stored record with duplicate username: %s", a)
			continue
		}
		if _, dup := exts[a.ExternalID]; dup {
			logging.Warnf("accounts: skipping stored record with duplicate identity: %s", a)
			continue
		}
		names[key] = struct{}{}
		exts[a.ExternalID] = struct{}{}

		out = append(out, withUniqueAddresses(a))
	}
	return out
}

// withUniqueAddresses returns a copy of a without blank or repeated
// addresses. The first occurrence keeps its position.
func withUniqueAddresses(a model.Account) model.Account {
	c := a.Clone()
	addrs := make([]string, 0, len(c.TrustedAddresses))
	for _, addr := range c.TrustedAddresses {
		if addr == "" || containsString(addrs, addr) {
			continue
		}
		addrs = append(addrs, addr)
	}
	c.TrustedAddresses = addrs
	return c
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
