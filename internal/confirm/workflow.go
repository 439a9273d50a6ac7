// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package confirm runs the approve/deny conversation for new addresses.
//
// A challenge is issued when a registered player connects from an address
// that is not trusted yet. It is remembered in a pending table keyed by
// (external identity, address) until it is answered or expires, so repeated
// connection attempts do not flood the user with prompts and old buttons
// cannot approve anything once the challenge is gone.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/logging"
	"github.com/toeirei/joinguard/internal/model"
	"golang.org/x/time/rate"
)

var (
	// ErrUnrecognizedReply is returned when a reply comes from an identity
	// that owns no account.
	ErrUnrecognizedReply = errors.New("reply from unrecognized identity")
	// ErrStaleChallenge is returned when a reply matches no live challenge.
	ErrStaleChallenge = errors.New("no pending challenge for this address")
	// ErrChannelDispatch wraps failures of the approval channel.
	ErrChannelDispatch = errors.New("approval channel dispatch failed")
	// ErrRateLimited is returned when an account received too many prompts.
	ErrRateLimited = errors.New("too many prompts for this account")
)

// Store is the part of the account store the workflow needs.
type Store interface {
	FindByExternalID(id string) (model.Account, bool)
	ApproveAddress(ctx context.Context, username, address string) error
}

// Options configures challenge lifetime and prompt throttling.
type Options struct {
	// TTL is how long a challenge stays answerable.
	TTL time.Duration
	// PromptInterval is the average spacing of prompts per account. Zero
	// disables throttling.
	PromptInterval time.Duration
	// PromptBurst is how many prompts an account may receive back to back.
	PromptBurst int
	// Clock defaults to the wall clock.
	Clock Clock
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{TTL: 10 * time.Minute, PromptInterval: 30 * time.Second, PromptBurst: 3}
}

// Issued describes the outcome of IssueChallenge.
type Issued struct {
	Challenge model.PendingChallenge
	// Duplicate is set when a live challenge already existed and no new
	// prompt was sent.
	Duplicate bool
}

// Resolution describes the outcome of ResolveReply.
type Resolution struct {
	Verb    Verb
	Account model.Account
	Address string
	// Ack acknowledges the button press, whatever the outcome.
	Ack string
	// Notice is the follow-up message sent to the user, if any.
	Notice string
}

type pendingKey struct {
	externalID string
	address    string
}

// Workflow issues challenges and resolves replies.
type Workflow struct {
	store   Store
	channel Channel
	opts    Options

	mu       deadlock.Mutex
	pending  map[pendingKey]model.PendingChallenge
	limiters map[string]*rate.Limiter
}

// New creates a workflow.
func New(store Store, channel Channel, opts Options) *Workflow {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}
	if opts.PromptBurst < 1 {
		opts.PromptBurst = 1
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Workflow{
		store:    store,
		channel:  channel,
		opts:     opts,
		pending:  make(map[pendingKey]model.PendingChallenge),
		limiters: make(map[string]*rate.Limiter),
	}
}

// IssueChallenge asks the owner of account to approve or deny address.
func (w *Workflow) IssueChallenge(ctx context.Context, account model.Account, address string) (Issued, error) {
	if strings.TrimSpace(address) == "" || strings.TrimSpace(account.ExternalID) == "" {
		return Issued{}, accounts.ErrBlankArgument
	}

	key := pendingKey{externalID: account.ExternalID, address: address}
	now := w.opts.Clock.Now()

	w.mu.Lock()
	if existing, ok := w.pending[key]; ok {
		if !existing.Expired(now) {
			w.mu.Unlock()
			logging.Debugf("confirm: challenge %s for %s still pending, not prompting again", existing.ID, account)
			return Issued{Challenge: existing, Duplicate: true}, nil
		}
		delete(w.pending, key)
	}
	if !w.limiterFor(account.ExternalID).AllowN(now, 1) {
		w.mu.Unlock()
		logging.Warnf("confirm: prompt for %s from %s throttled", account, address)
		return Issued{}, ErrRateLimited
	}
	ch := model.PendingChallenge{
		ID:         uuid.NewString(),
		ExternalID: account.ExternalID,
		Username:   account.Username,
		Address:    address,
		CreatedAt:  now,
		ExpiresAt:  now.Add(w.opts.TTL),
	}
	w.pending[key] = ch
	w.mu.Unlock()

	text := i18n.T("confirm.prompt", account.Username, address)
	options := []Option{
		{Label: i18n.T("confirm.button.confirm"), Payload: Payload(Approve, address)},
		{Label: i18n.T("confirm.button.deny"), Payload: Payload(Deny, address)},
	}
	if err := w.channel.SendPrompt(ctx, account.ExternalID, text, options); err != nil {
		w.mu.Lock()
		if cur, ok := w.pending[key]; ok && cur.ID == ch.ID {
			delete(w.pending, key)
		}
		w.mu.Unlock()
		return Issued{}, fmt.Errorf("%w: %w", ErrChannelDispatch, err)
	}

	logging.Infof("confirm: login of %s from %s needs confirmation (challenge %s)", account, address, ch.ID)
	return Issued{Challenge: ch}, nil
}

// ResolveReply applies the answer of senderID for address.
func (w *Workflow) ResolveReply(ctx context.Context, senderID string, verb Verb, address string) (Resolution, error) {
	res := Resolution{Verb: verb, Address: address, Ack: i18n.T("confirm.ack")}
	if verb != Approve && verb != Deny {
		return res, ErrMalformedPayload
	}

	acc, ok := w.store.FindByExternalID(senderID)
	if !ok {
		logging.Warnf("confirm: ignoring %s reply from unknown identity %s", verb, senderID)
		return res, ErrUnrecognizedReply
	}
	res.Account = acc

	key := pendingKey{externalID: senderID, address: address}
	now := w.opts.Clock.Now()

	w.mu.Lock()
	ch, ok := w.pending[key]
	live := ok && !ch.Expired(now)
	if ok {
		delete(w.pending, key)
	}
	w.mu.Unlock()

	if !live {
		logging.Infof("confirm: %s reply from %s for %s has no live challenge", verb, acc, address)
		res.Notice = i18n.T("confirm.stale", address)
		w.notify(ctx, senderID, res.Notice)
		return res, ErrStaleChallenge
	}

	switch verb {
	case Approve:
		if err := w.store.ApproveAddress(ctx, acc.Username, address); err != nil {
			logging.Errorf("confirm: approving %s for %s failed: %v", address, acc, err)
			return res, err
		}
		logging.Infof("confirm: player %s approved join from %s", acc.Username, address)
		res.Notice = i18n.T("confirm.approved", address)
	case Deny:
		logging.Infof("confirm: player %s denied join from %s", acc.Username, address)
		res.Notice = i18n.T("confirm.denied", address)
	}
	w.notify(ctx, senderID, res.Notice)
	return res, nil
}

// notify sends a follow-up message. Failures are logged only.
func (w *Workflow) notify(ctx context.Context, destinationID, text string) {
	if err := w.channel.SendText(ctx, destinationID, text); err != nil {
		logging.Warnf("confirm: failed to notify %s: %v", destinationID, err)
	}
}

// Sweep drops challenges that expired at now and forgets idle rate limiters.
// It returns the number of challenges removed.
func (w *Workflow) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for k, ch := range w.pending {
		if ch.Expired(now) {
			delete(w.pending, k)
			removed++
		}
	}
	for id, l := range w.limiters {
		if l.TokensAt(now) >= float64(l.Burst()) {
			delete(w.limiters, id)
		}
	}
	return removed
}

// Forget drops every pending challenge of externalID, so prompts sent before
// the identity revoked its addresses can no longer approve anything. It
// returns the number of challenges removed.
func (w *Workflow) Forget(externalID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for k := range w.pending {
		if k.externalID == externalID {
			delete(w.pending, k)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (w *Workflow) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.Sweep(w.opts.Clock.Now()); n > 0 {
				logging.Debugf("confirm: swept %d expired challenges", n)
			}
		}
	}
}

// Pending lists the outstanding challenges, oldest first.
func (w *Workflow) Pending() []model.PendingChallenge {
	w.mu.Lock()
	out := make([]model.PendingChallenge, 0, len(w.pending))
	for _, ch := range w.pending {
		out = append(out, ch)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// limiterFor returns the prompt limiter of externalID. Callers hold w.mu.
func (w *Workflow) limiterFor(externalID string) *rate.Limiter {
	l, ok := w.limiters[externalID]
	if !ok {
		limit := rate.Inf
		if w.opts.PromptInterval > 0 {
			limit = rate.Every(w.opts.PromptInterval)
		}
		l = rate.NewLimiter(limit, w.opts.PromptBurst)
		w.limiters[externalID] = l
	}
	return l
}
