// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/confirm"
	"github.com/toeirei/joinguard/internal/db"
	"github.com/toeirei/joinguard/internal/gate"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/trust"
)

type captureChannel struct {
	mu      sync.Mutex
	prompts map[string][]confirm.Option
	sent    int
	texts   []string
}

func (c *captureChannel) SendText(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureChannel) SendPrompt(_ context.Context, dest, _ string, options []confirm.Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompts == nil {
		c.prompts = map[string][]confirm.Option{}
	}
	c.prompts[dest] = options
	c.sent++
	return nil
}

func newService(t *testing.T) (*Service, *accounts.Store, *confirm.Workflow, *captureChannel) {
	t.Helper()
	i18n.Init("en")
	store := accounts.New(db.NewJSONFile(filepath.Join(t.TempDir(), "users.json")), accounts.Options{})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := &captureChannel{}
	wf := confirm.New(store, ch, confirm.DefaultOptions())
	return New(store, wf), store, wf, ch
}

// Walks through register, rejected join, approval and accepted join.
func TestFullLoginConfirmationFlow(t *testing.T) {
	svc, store, wf, ch := newService(t)
	ctx := context.Background()
	g := gate.New(store, wf)

	if d := g.OnPlayerConnect(ctx, "Steve", "1.2.3.4"); d.Allow || d.Verdict != trust.Unknown {
		t.Fatalf("unregistered player must be rejected: %+v", d)
	}

	if got := svc.OnText(ctx, "123", "/register Steve"); got != "You successfully registered: Steve" {
		t.Fatalf("unexpected register reply %q", got)
	}

	d := g.OnPlayerConnect(ctx, "Steve", "1.2.3.4")
	g.Wait()
	if d.Allow || d.Verdict != trust.NeedsConfirmation {
		t.Fatalf("new address must be rejected: %+v", d)
	}
	opts := ch.prompts["123"]
	if len(opts) != 2 {
		t.Fatalf("expected prompt with two options, got %v", opts)
	}

	ack, notice := svc.OnButtonData(ctx, "123", opts[0].Payload)
	if ack != "✅ Response received" || notice != "✅ Access approved for 1.2.3.4" {
		t.Fatalf("unexpected reply handling: %q %q", ack, notice)
	}

	if d := g.OnPlayerConnect(ctx, "Steve", "1.2.3.4"); !d.Allow {
		t.Fatalf("approved address must be allowed: %+v", d)
	}
}

func (c *captureChannel) promptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// After /closesessions a formerly trusted address needs confirmation again,
// and prompts sent before the revoke are dead.
func TestCloseSessionsRequiresConfirmationAgain(t *testing.T) {
	svc, store, wf, ch := newService(t)
	ctx := context.Background()
	g := gate.New(store, wf)

	svc.OnText(ctx, "123", "/register Steve")
	g.OnPlayerConnect(ctx, "Steve", "1.2.3.4")
	g.Wait()
	svc.OnButtonData(ctx, "123", confirm.Payload(confirm.Approve, "1.2.3.4"))
	if d := g.OnPlayerConnect(ctx, "Steve", "1.2.3.4"); !d.Allow {
		t.Fatalf("approved address must be allowed: %+v", d)
	}

	// A prompt still open when the user revokes everything.
	g.OnPlayerConnect(ctx, "Steve", "5.6.7.8")
	g.Wait()
	if len(wf.Pending()) != 1 {
		t.Fatalf("expected one pending challenge, got %+v", wf.Pending())
	}

	if got := svc.OnText(ctx, "123", "/closesessions"); got != i18n.T("bot.closesessions.success") {
		t.Fatalf("unexpected closesessions reply %q", got)
	}
	if len(wf.Pending()) != 0 {
		t.Fatalf("closesessions must drop pending challenges, got %+v", wf.Pending())
	}

	_, notice := svc.OnButtonData(ctx, "123", confirm.Payload(confirm.Approve, "5.6.7.8"))
	if notice != i18n.T("confirm.stale", "5.6.7.8") {
		t.Fatalf("old prompt must be stale, got %q", notice)
	}
	if acc, _ := store.FindByExternalID("123"); accounts.IsAddressTrusted(acc, "5.6.7.8") {
		t.Fatal("old prompt must not approve after closesessions")
	}

	before := ch.promptCount()
	d := g.OnPlayerConnect(ctx, "Steve", "1.2.3.4")
	g.Wait()
	if d.Allow || d.Verdict != trust.NeedsConfirmation {
		t.Fatalf("revoked address must need confirmation: %+v", d)
	}
	if ch.promptCount() != before+1 {
		t.Fatalf("expected a new prompt, sent %d -> %d", before, ch.promptCount())
	}
}

func TestOnButtonData_Malformed(t *testing.T) {
	svc, _, _, _ := newService(t)
	ack, notice := svc.OnButtonData(context.Background(), "123", "garbage")
	if ack != "✅ Response received" || notice != "" {
		t.Fatalf("malformed payload should only be acknowledged, got %q %q", ack, notice)
	}
}

func TestOnButtonReply_WithoutWorkflow(t *testing.T) {
	_, store, _, _ := newService(t)
	svc := New(store, nil)
	ack, notice := svc.OnButtonReply(context.Background(), "123", confirm.Approve, "1.2.3.4")
	if ack == "" || notice != "" {
		t.Fatalf("unexpected result %q %q", ack, notice)
	}
}

func TestOnTextCommand_RenameConflict(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	svc.OnText(ctx, "123", "/register Steve")
	svc.OnText(ctx, "456", "/register Alex")

	got := svc.OnTextCommand(ctx, "123", "/changeusername", "Alex")
	if got != i18n.T("bot.name_taken") {
		t.Fatalf("expected name-taken reply, got %q", got)
	}
	if acc, _ := store.FindByExternalID("123"); acc.Username != "Steve" {
		t.Fatalf("record must be unchanged, got %q", acc.Username)
	}
}
