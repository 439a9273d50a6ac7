// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package accounts owns the account records: the binding between an in-game
// username, a chat identity and the set of trusted addresses.
//
// All mutations go through Store, which enforces the uniqueness rules and
// writes every successful change through to the configured db.Backend.
// Readers work on immutable snapshots and never take the write lock.
package accounts

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/toeirei/joinguard/internal/db"
	"github.com/toeirei/joinguard/internal/logging"
	"github.com/toeirei/joinguard/internal/model"
)

var (
	// ErrNotRegistered is returned when no account matches the username or identity.
	ErrNotRegistered = errors.New("not registered")
	// ErrAlreadyRegistered is returned when the identity already owns an account.
	ErrAlreadyRegistered = errors.New("identity already owns an account")
	// ErrNameTaken is returned when another account holds the username.
	ErrNameTaken = errors.New("username already taken")
	// ErrBlankArgument is returned when a required argument is empty.
	ErrBlankArgument = errors.New("blank argument")
)

// Options tunes persistence retries.
type Options struct {
	// Retries is the number of extra save attempts after a failure.
	Retries int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// DefaultOptions returns the retry policy used when none is configured.
func DefaultOptions() Options {
	return Options{Retries: 3, Backoff: 200 * time.Millisecond}
}

// Store is the single owner of account state.
type Store struct {
	backend db.Backend
	opts    Options

	// mu serializes read-modify-write sequences on the in-memory state.
	mu deadlock.Mutex
	// persistMu orders durable writes; it is never held together with mu.
	persistMu deadlock.Mutex

	snap atomic.Pointer[Snapshot]
}

// New creates an empty store on top of backend. Call Load to read durable state.
func New(backend db.Backend, opts Options) *Store {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	s := &Store{backend: backend, opts: opts}
	s.snap.Store(newSnapshot(nil))
	return s
}

// Snapshot returns the current immutable view of all accounts.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Load reads durable state into memory. When no durable state exists the
// store starts empty and persists that. A read failure is logged and the
// store keeps whatever it held before; the error is returned for callers
// that want to report it.
func (s *Store) Load(ctx context.Context) error {
	accounts, found, err := s.backend.Load(ctx)
	if err != nil {
		logging.Errorf("accounts: failed to read user data, keeping %d in-memory records: %v", s.Snapshot().Len(), err)
		return err
	}

	if !found {
		logging.Infof("accounts: no stored user data, starting empty")
		s.mu.Lock()
		s.snap.Store(newSnapshot(nil))
		s.mu.Unlock()
		return s.Save(ctx)
	}

	clean := sanitize(accounts)
	s.mu.Lock()
	s.snap.Store(newSnapshot(clean))
	s.mu.Unlock()
	logging.Infof("accounts: loaded %d records", len(clean))
	return nil
}

// Save persists the newest snapshot, retrying with exponential backoff.
// The final failure is logged and returned; in-memory state is kept either way.
func (s *Store) Save(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	delay := s.opts.Backoff
	var err error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				logging.Errorf("accounts: save abandoned after %d attempts: %v", attempt, ctx.Err())
				return errors.Join(err, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		// Always write the newest state, even if it was published by a
		// mutation that finished after the one that triggered this save.
		if err = s.backend.Save(ctx, s.snap.Load().Accounts()); err == nil {
			return nil
		}
		logging.Warnf("accounts: save attempt %d failed: %v", attempt+1, err)
	}
	logging.Errorf("accounts: failed to save user data, keeping changes in memory: %v", err)
	return err
}

// mutate applies fn to a private copy of the records under the write lock,
// publishes the result and persists it after releasing the lock. fn reports
// whether anything changed; unchanged results are neither published nor saved.
func (s *Store) mutate(ctx context.Context, fn func(accounts []model.Account) ([]model.Account, bool, error)) error {
	s.mu.Lock()
	next, changed, err := fn(s.snap.Load().Accounts())
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	s.snap.Store(newSnapshot(next))
	s.mu.Unlock()

	// Save failures are logged inside Save and do not fail the mutation.
	_ = s.Save(ctx)
	return nil
}

// FindByUsername returns the account whose username matches case-insensitively.
func (s *Store) FindByUsername(name string) (model.Account, bool) {
	return s.Snapshot().FindByUsername(name)
}

// FindByExternalID returns the account owned by the given chat identity.
func (s *Store) FindByExternalID(id string) (model.Account, bool) {
	return s.Snapshot().FindByExternalID(id)
}

// IsAddressTrusted reports whether address is in the account's trusted set.
// Matching is byte-exact.
func IsAddressTrusted(account model.Account, address string) bool {
	return account.HasAddress(address)
}

// CreateAccount registers username for externalID with an empty address set.
func (s *Store) CreateAccount(ctx context.Context, username, externalID string) (model.Account, error) {
	username = strings.TrimSpace(username)
	externalID = strings.TrimSpace(externalID)
	if username == "" || externalID == "" {
		return model.Account{}, ErrBlankArgument
	}

	created := model.Account{Username: username, ExternalID: externalID, TrustedAddresses: []string{}}
	err := s.mutate(ctx, func(accounts []model.Account) ([]model.Account, bool, error) {
		if indexByExternalID(accounts, externalID) >= 0 {
			return nil, false, ErrAlreadyRegistered
		}
		if indexByUsername(accounts, username) >= 0 {
			return nil, false, ErrNameTaken
		}
		return append(accounts, created), true, nil
	})
	if err != nil {
		return model.Account{}, err
	}
	logging.Infof("accounts: registered %s", created)
	return created.Clone(), nil
}

// RenameAccount changes the username of the account owned by externalID.
// A blank newUsername is a no-op. Changing only the letter case of one's own
// name is allowed.
func (s *Store) RenameAccount(ctx context.Context, externalID, newUsername string) error {
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return nil
	}
	return s.mutate(ctx, func(accounts []model.Account) ([]model.Account, bool, error) {
		i := indexByExternalID(accounts, externalID)
		if i < 0 {
			return nil, false, ErrNotRegistered
		}
		if j := indexByUsername(accounts, newUsername); j >= 0 && j != i {
			return nil, false, ErrNameTaken
		}
		if accounts[i].Username == newUsername {
			return accounts, false, nil
		}
		logging.Infof("accounts: %s renamed to %s", accounts[i], newUsername)
		accounts[i].Username = newUsername
		return accounts, true, nil
	})
}

// ApproveAddress adds address to the trusted set of username. Blank
// addresses are ignored and approving a trusted address changes nothing.
func (s *Store) ApproveAddress(ctx context.Context, username, address string) error {
	if strings.TrimSpace(address) == "" {
		return nil
	}
	return s.mutate(ctx, func(accounts []model.Account) ([]model.Account, bool, error) {
		i := indexByUsername(accounts, username)
		if i < 0 {
			return nil, false, ErrNotRegistered
		}
		if accounts[i].HasAddress(address) {
			return accounts, false, nil
		}
		accounts[i].TrustedAddresses = append(accounts[i].TrustedAddresses, address)
		return accounts, true, nil
	})
}

// ClearAddresses empties the trusted set of the account owned by externalID.
// It persists even when the set was already empty.
func (s *Store) ClearAddresses(ctx context.Context, externalID string) error {
	return s.mutate(ctx, func(accounts []model.Account) ([]model.Account, bool, error) {
		i := indexByExternalID(accounts, externalID)
		if i < 0 {
			return nil, false, ErrNotRegistered
		}
		accounts[i].TrustedAddresses = []string{}
		return accounts, true, nil
	})
}

// DeleteAccount removes the account for username. It is an operator tool;
// the chat commands never delete accounts.
func (s *Store) DeleteAccount(ctx context.Context, username string) error {
	return s.mutate(ctx, func(accounts []model.Account) ([]model.Account, bool, error) {
		i := indexByUsername(accounts, username)
		if i < 0 {
			return nil, false, ErrNotRegistered
		}
		return append(accounts[:i], accounts[i+1:]...), true, nil
	})
}

// Replace swaps the whole record set, for restores. The input must already
// satisfy the uniqueness rules. Repeated addresses inside a record collapse.
func (s *Store) Replace(ctx context.Context, accounts []model.Account) error {
	if err := Validate(accounts); err != nil {
		return err
	}
	return s.mutate(ctx, func([]model.Account) ([]model.Account, bool, error) {
		next := make([]model.Account, 0, len(accounts))
		for _, a := range accounts {
			next = append(next, withUniqueAddresses(a))
		}
		return next, true, nil
	})
}

func indexByUsername(accounts []model.Account, name string) int {
	for i, a := range accounts {
		if model.SameUsername(a.Username, name) {
			return i
		}
	}
	return -1
}

func indexByExternalID(accounts []model.Account, id string) int {
	for i, a := range accounts {
		if a.ExternalID == id {
			return i
		}
	}
	return -1
}
