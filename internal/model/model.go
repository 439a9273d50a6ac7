// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the plain data types shared by the store, the
// confirmation workflow and the CLI.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Account binds an in-game username to an identity on the approval channel
// and to the set of addresses the owner has approved.
//
// The JSON layout is the on-disk format of the json backend; the field name
// "ip" holds the full list of trusted addresses.
type Account struct {
	Username         string   `json:"username"`
	TrustedAddresses []string `json:"ip"`
	ExternalID       string   `json:"externalChatId"`
}

// String returns the "username (externalID)" representation.
func (a Account) String() string {
	return fmt.Sprintf("%s (%s)", a.Username, a.ExternalID)
}

// Clone returns a deep copy so callers never share the address slice.
func (a Account) Clone() Account {
	a.TrustedAddresses = slices.Clone(a.TrustedAddresses)
	if a.TrustedAddresses == nil {
		a.TrustedAddresses = []string{}
	}
	return a
}

// HasAddress reports whether address is in the trusted set. Matching is
// byte-exact: no case folding, no subnet logic.
func (a Account) HasAddress(address string) bool {
	return slices.Contains(a.TrustedAddresses, address)
}

// UsernameKey is the case-folded form used for username uniqueness.
func UsernameKey(name string) string {
	return strings.ToLower(name)
}

// SameUsername compares usernames the way the store enforces uniqueness.
func SameUsername(a, b string) bool {
	return UsernameKey(a) == UsernameKey(b)
}

// PendingChallenge is an outstanding approve/deny prompt for one address of
// one account. It lives in memory only.
type PendingChallenge struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Address    string    `json:"address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is no longer answerable at now.
func (p PendingChallenge) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// BackupData is the export format used by backup, restore and migrate.
type BackupData struct {
	// SchemaVersion helps in handling migrations during restore.
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	Accounts      []Account `json:"accounts"`
}

// CurrentSchemaVersion is written into every new backup.
const CurrentSchemaVersion = 1
