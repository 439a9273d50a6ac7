// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/db"
	"github.com/toeirei/joinguard/internal/logging"
	"github.com/toeirei/joinguard/internal/model"
)

// setupTestEnv isolates config discovery and returns the path of a JSON
// account file seeded with seed.
func setupTestEnv(t *testing.T, seed []model.Account) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	logging.SetOutput(io.Discard)
	log.SetOutput(io.Discard)
	t.Cleanup(func() {
		logging.SetOutput(os.Stderr)
		log.SetOutput(os.Stderr)
	})

	path := filepath.Join(dir, "users.json")
	if seed != nil {
		if err := db.NewJSONFile(path).Save(context.Background(), seed); err != nil {
			t.Fatalf("seeding accounts: %v", err)
		}
	}
	return path
}

// executeCommand runs a fresh root command against the JSON file at dsn and
// returns what it printed.
func executeCommand(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--db-type", "json", "--db-dsn", dsn, "--lang", "en"}, args...))
	err := cmd.Execute()
	closeServices()
	return buf.String(), err
}

func loadAccounts(t *testing.T, path string) []model.Account {
	t.Helper()
	list, _, err := db.NewJSONFile(path).Load(context.Background())
	if err != nil {
		t.Fatalf("loading %s: %v", path, err)
	}
	return list
}

func findSubcommand(root *cobra.Command, name string) *cobra.Command {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func seedAccounts() []model.Account {
	return []model.Account{
		{Username: "Steve", ExternalID: "1001", TrustedAddresses: []string{"1.2.3.4"}},
		{Username: "Alex", ExternalID: "1002", TrustedAddresses: []string{}},
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "check", "accounts", "backup", "restore", "migrate", "version"} {
		sub := findSubcommand(root, name)
		if sub == nil {
			t.Fatalf("%s command not found", name)
		}
		if sub.Short == "" {
			t.Errorf("%s command missing short help", name)
		}
	}
	accountsCmd := findSubcommand(root, "accounts")
	for _, name := range []string{"list", "revoke", "delete"} {
		if findSubcommand(accountsCmd, name) == nil {
			t.Errorf("accounts %s command not found", name)
		}
	}
	for _, name := range []string{"config", "db-type", "db-dsn", "lang", "log-level", "verbose"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag --%s", name)
		}
	}
}

func TestServeCmd_HelpText(t *testing.T) {
	serve := findSubcommand(NewRootCmd(), "serve")
	if !strings.Contains(serve.Long, "SIGTERM") {
		t.Fatalf("serve help should mention shutdown signals, got: %s", serve.Long)
	}
}

func TestCheckCmd_Verdicts(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())

	cases := []struct {
		user, addr, want string
	}{
		{"steve", "1.2.3.4", "trusted"},
		{"Steve", "5.6.7.8", "needs-confirmation"},
		{"Herobrine", "1.2.3.4", "unknown"},
	}
	for _, tc := range cases {
		out, err := executeCommand(t, dsn, "check", tc.user, tc.addr)
		if err != nil {
			t.Fatalf("check %s %s: %v", tc.user, tc.addr, err)
		}
		if !strings.Contains(out, ": "+tc.want) {
			t.Errorf("check %s %s: expected verdict %q, got %q", tc.user, tc.addr, tc.want, out)
		}
	}
}

func TestUnreadableAccountFileDoesNotStopCommands(t *testing.T) {
	dsn := setupTestEnv(t, nil)
	if err := os.WriteFile(dsn, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(t, dsn, "check", "Steve", "1.2.3.4")
	if err != nil {
		t.Fatalf("check must run on an empty store, got %v", err)
	}
	if !strings.Contains(out, ": unknown") {
		t.Fatalf("expected unknown verdict, got %q", out)
	}

	kept, _ := filepath.Glob(dsn + ".corrupt-*")
	if len(kept) != 1 {
		t.Fatalf("expected the unreadable file to be kept aside, got %v", kept)
	}
	if data, _ := os.ReadFile(kept[0]); string(data) != "{not json" {
		t.Fatalf("kept file lost its content: %q", data)
	}
	if list := loadAccounts(t, dsn); len(list) != 0 {
		t.Fatalf("expected a fresh empty account file, got %v", list)
	}
}

func TestUnknownLanguageIsReported(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())
	_, err := executeCommand(t, dsn, "--lang", "xx", "check", "Steve", "1.2.3.4")
	if err == nil || !strings.Contains(err.Error(), `"xx"`) {
		t.Fatalf("expected the unknown language to be reported, got %v", err)
	}
}

func TestCheckCmd_RequiresTwoArgs(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())
	if _, err := executeCommand(t, dsn, "check", "Steve"); err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestAccountsList_Plain(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())

	out, err := executeCommand(t, dsn, "accounts", "list")
	if err != nil {
		t.Fatalf("accounts list: %v", err)
	}
	for _, want := range []string{"USERNAME", "Steve", "1001", "1.2.3.4", "Alex", "none"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "╭") {
		t.Errorf("expected plain output when not writing to a terminal:\n%s", out)
	}
}

func TestAccountsList_Empty(t *testing.T) {
	dsn := setupTestEnv(t, nil)

	out, err := executeCommand(t, dsn, "accounts", "list")
	if err != nil {
		t.Fatalf("accounts list: %v", err)
	}
	if !strings.Contains(out, "No accounts registered.") {
		t.Fatalf("unexpected output: %q", out)
	}
	// A missing file is created on first load.
	if _, err := os.Stat(dsn); err != nil {
		t.Fatalf("expected account file to be created: %v", err)
	}
}

func TestRenderAccounts_Styled(t *testing.T) {
	var buf bytes.Buffer
	renderAccounts(&buf, seedAccounts(), true)
	out := buf.String()
	for _, want := range []string{"╭", "Steve", "Alex", "1.2.3.4"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
}

func TestAccountsRevoke(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())

	out, err := executeCommand(t, dsn, "accounts", "revoke", "steve")
	if err != nil {
		t.Fatalf("accounts revoke: %v", err)
	}
	if !strings.Contains(out, "Steve") {
		t.Errorf("expected confirmation naming Steve, got %q", out)
	}
	for _, a := range loadAccounts(t, dsn) {
		if a.Username == "Steve" && len(a.TrustedAddresses) != 0 {
			t.Fatalf("expected no trusted addresses after revoke, got %v", a.TrustedAddresses)
		}
	}
}

func TestAccountsDelete(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())

	if _, err := executeCommand(t, dsn, "accounts", "delete", "Alex"); err != nil {
		t.Fatalf("accounts delete: %v", err)
	}
	list := loadAccounts(t, dsn)
	if len(list) != 1 || list[0].Username != "Steve" {
		t.Fatalf("expected only Steve to remain, got %v", list)
	}

	_, err := executeCommand(t, dsn, "accounts", "delete", "Alex")
	if !errors.Is(err, accounts.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered for a second delete, got %v", err)
	}
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())
	backupPath := filepath.Join(filepath.Dir(dsn), "snapshot.json")

	out, err := executeCommand(t, dsn, "backup", backupPath)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.Contains(out, "2 accounts") {
		t.Errorf("unexpected backup output %q", out)
	}
	if _, err := os.Stat(backupPath + ".zst"); err != nil {
		t.Fatalf("expected .zst to be appended: %v", err)
	}

	if _, err := executeCommand(t, dsn, "accounts", "delete", "Steve"); err != nil {
		t.Fatalf("accounts delete: %v", err)
	}
	if _, err := executeCommand(t, dsn, "restore", backupPath+".zst"); err != nil {
		t.Fatalf("restore: %v", err)
	}

	list := loadAccounts(t, dsn)
	if len(list) != 2 {
		t.Fatalf("expected 2 accounts after restore, got %v", list)
	}
	if list[0].Username != "Steve" || len(list[0].TrustedAddresses) != 1 || list[0].TrustedAddresses[0] != "1.2.3.4" {
		t.Fatalf("Steve not restored intact: %+v", list[0])
	}
}

func TestRestore_MissingFile(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())
	if _, err := executeCommand(t, dsn, "restore", "does-not-exist.json.zst"); err == nil {
		t.Fatal("expected an error for a missing backup")
	}
	if len(loadAccounts(t, dsn)) != 2 {
		t.Fatal("accounts must be untouched when restore fails")
	}
}

func TestMigrate_ToSQLite(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())
	target := filepath.Join(filepath.Dir(dsn), "target.db")

	out, err := executeCommand(t, dsn, "migrate", "--to-type", "sqlite", "--to-dsn", target)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 2 accounts") {
		t.Errorf("unexpected migrate output %q", out)
	}

	b, err := db.NewBackend(db.TypeSQLite, target)
	if err != nil {
		t.Fatalf("opening target: %v", err)
	}
	defer func() { _ = b.Close() }()
	list, found, err := b.Load(context.Background())
	if err != nil || !found {
		t.Fatalf("loading target: found=%v err=%v", found, err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 migrated accounts, got %v", list)
	}
}

func TestMigrate_RequiresTarget(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())
	if _, err := executeCommand(t, dsn, "migrate", "--to-type", "sqlite"); err == nil {
		t.Fatal("expected an error without --to-dsn")
	}
}

func TestConfigFlag_MissingFile(t *testing.T) {
	dsn := setupTestEnv(t, seedAccounts())
	if _, err := executeCommand(t, dsn, "--config", "nope.yaml", "accounts", "list"); err == nil {
		t.Fatal("expected an error for a missing --config file")
	}
}

func TestVersionCmd(t *testing.T) {
	dsn := setupTestEnv(t, nil)
	out, err := executeCommand(t, dsn, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "version: ") || !strings.Contains(out, "commit: ") {
		t.Fatalf("unexpected version output %q", out)
	}
}
