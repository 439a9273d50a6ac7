// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db contains the persistence backends used by the account store.
//
// Backends
//   - `JSONFile` keeps the whole account list in one pretty-printed JSON
//     file. It is the default and matches the layout older installations
//     already have on disk.
//   - `SQLBackend` stores the same data in two tables (`accounts`,
//     `trusted_addresses`) through Bun, on SQLite, PostgreSQL or MySQL.
//     Schema changes live in `migrations/<type>/*.up.sql` and are applied by
//     `RunMigrations` when the backend is opened.
//
// Both backends persist complete snapshots. The account store owns all
// invariants; the backends only enforce uniqueness as a second line of
// defence (see `ErrDuplicate`).
//
// Testing notes
//   - Prefer `NewBackend("sqlite", "file:<name>?mode=memory&cache=shared")`
//     in tests that need real SQL semantics and migrations.
//   - Use `NewJSONFile(filepath.Join(t.TempDir(), "users.json"))` for file
//     round trips.
package db
