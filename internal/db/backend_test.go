// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/joinguard/internal/model"
	_ "modernc.org/sqlite"
)

func sampleAccounts() []model.Account {
	return []model.Account{
		{Username: "Steve", ExternalID: "123", TrustedAddresses: []string{"1.2.3.4", "5.6.7.8"}},
		{Username: "Alex", ExternalID: "456", TrustedAddresses: []string{}},
	}
}

func newTestSQLBackend(t *testing.T) *SQLBackend {
	t.Helper()
	dsn := "file:test_" + t.Name() + "?mode=memory&cache=shared"
	b, err := NewSQLFromDSN(TypeSQLite, dsn)
	if err != nil {
		t.Fatalf("NewSQLFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestJSONFile_MissingFileIsNotFound(t *testing.T) {
	j := NewJSONFile(filepath.Join(t.TempDir(), "config", "users.json"))
	accounts, found, err := j.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || len(accounts) != 0 {
		t.Fatalf("expected no state, got found=%v accounts=%v", found, accounts)
	}
}

func TestJSONFile_RoundTripAndLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "users.json")
	j := NewJSONFile(path)
	ctx := context.Background()

	if err := j.Save(ctx, sampleAccounts()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	for _, key := range []string{`"username"`, `"ip"`, `"externalChatId"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("expected key %s in file, got:\n%s", key, raw)
		}
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file should not survive a successful save")
	}

	got, found, err := j.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load failed: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, sampleAccounts()) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, sampleAccounts())
	}
}

func TestJSONFile_CorruptFileReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err := NewJSONFile(path).Load(context.Background())
	if err == nil {
		t.Fatalf("expected decode error for corrupt file")
	}
}

func TestJSONFile_MoveAsideKeepsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	j := NewJSONFile(path)
	moved, err := j.MoveAside(time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MoveAside: %v", err)
	}
	if moved != path+".corrupt-20261019T083000Z" {
		t.Fatalf("unexpected destination %q", moved)
	}
	if data, err := os.ReadFile(moved); err != nil || string(data) != "{not json" {
		t.Fatalf("moved file lost its content: %q %v", data, err)
	}
	if _, found, err := j.Load(context.Background()); found || err != nil {
		t.Fatalf("original path should now be missing: found=%v err=%v", found, err)
	}
}

func TestJSONFile_NullAddressesBecomeEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte(`[{"username":"Steve","ip":null,"externalChatId":"1"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, _, err := NewJSONFile(path).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got[0].TrustedAddresses == nil {
		t.Fatalf("expected empty address slice, got nil")
	}
}

func TestRunMigrationsSqlite(t *testing.T) {
	dsn := "file:test_migrations?mode=memory&cache=shared"
	dbConn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer func() { _ = dbConn.Close() }()

	if err := RunMigrations(dbConn, TypeSQLite); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	// Second run must be a no-op.
	if err := RunMigrations(dbConn, TypeSQLite); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}

	var version string
	if err := dbConn.QueryRow("SELECT version FROM schema_migrations").Scan(&version); err != nil {
		t.Fatalf("query schema_migrations failed: %v", err)
	}
	if version != "000001_create_accounts" {
		t.Fatalf("unexpected migration version %q", version)
	}
}

func TestSQLBackend_RoundTrip(t *testing.T) {
	b := newTestSQLBackend(t)
	ctx := context.Background()

	got, found, err := b.Load(ctx)
	if err != nil || !found || len(got) != 0 {
		t.Fatalf("fresh db: got=%v found=%v err=%v", got, found, err)
	}

	if err := b.Save(ctx, sampleAccounts()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, _, err = b.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, sampleAccounts()) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, sampleAccounts())
	}

	// A later, smaller snapshot replaces everything.
	next := []model.Account{{Username: "Alex", ExternalID: "456", TrustedAddresses: []string{"9.9.9.9"}}}
	if err := b.Save(ctx, next); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	got, _, _ = b.Load(ctx)
	if !reflect.DeepEqual(got, next) {
		t.Fatalf("replace mismatch: got %#v", got)
	}
}

func TestSQLBackend_DuplicateUsernameRejected(t *testing.T) {
	b := newTestSQLBackend(t)
	dup := []model.Account{
		{Username: "Player1", ExternalID: "1"},
		{Username: "player1", ExternalID: "2"},
	}
	err := b.Save(context.Background(), dup)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Column != "username" {
		t.Fatalf("expected a username constraint error, got %v", err)
	}
	// The failed transaction must not leave partial state behind.
	got, _, _ := b.Load(context.Background())
	if len(got) != 0 {
		t.Fatalf("expected rollback, got %v", got)
	}
}

func TestSQLBackend_DuplicateIdentityRejected(t *testing.T) {
	b := newTestSQLBackend(t)
	if err := b.Save(context.Background(), sampleAccounts()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	dup := []model.Account{
		{Username: "Steve", ExternalID: "123"},
		{Username: "Alex", ExternalID: "123"},
	}
	err := b.Save(context.Background(), dup)
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Column != "identity" {
		t.Fatalf("expected an identity constraint error, got %v", err)
	}
	got, _, _ := b.Load(context.Background())
	if !reflect.DeepEqual(got, sampleAccounts()) {
		t.Fatalf("previous snapshot should survive a failed save, got %#v", got)
	}
}

func TestNewBackend_Types(t *testing.T) {
	b, err := NewBackend(TypeJSON, filepath.Join(t.TempDir(), "u.json"))
	if err != nil {
		t.Fatalf("json backend: %v", err)
	}
	if _, ok := b.(*JSONFile); !ok {
		t.Fatalf("expected *JSONFile, got %T", b)
	}
	if _, err := NewBackend(TypeJSON, " "); err == nil {
		t.Fatalf("expected error for blank json path")
	}
	if _, err := NewBackend("oracle", "x"); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\nCREATE TABLE b (y INT);\n")
	if len(got) != 2 || got[0] != "CREATE TABLE a (x INT)" {
		t.Fatalf("unexpected split: %#v", got)
	}
}

// Uniqueness in SQL must not be looser than the store's own rules: ids and
// addresses are byte-exact, usernames only fold case.
func TestMySQLMigration_UniqueColumnsAreBinary(t *testing.T) {
	raw, err := embeddedMigrations.ReadFile("migrations/mysql/000001_create_accounts.up.sql")
	if err != nil {
		t.Fatalf("reading mysql migration: %v", err)
	}
	script := string(raw)
	for _, col := range []string{"username_key", "external_id", "address"} {
		found := false
		for _, line := range strings.Split(script, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, col+" ") {
				found = true
				if !strings.Contains(line, "COLLATE utf8mb4_bin") {
					t.Errorf("column %s must use utf8mb4_bin, got %q", col, line)
				}
			}
		}
		if !found {
			t.Errorf("column %s not found in mysql migration", col)
		}
	}
}

func TestSQLBackend_AccentAndCaseVariantsAreDistinct(t *testing.T) {
	b := newTestSQLBackend(t)
	ctx := context.Background()
	in := []model.Account{
		{Username: "José", ExternalID: "1", TrustedAddresses: []string{"fe80::A", "fe80::a"}},
		{Username: "Jose", ExternalID: "2", TrustedAddresses: []string{}},
	}
	if err := b.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, in)
	}
}
