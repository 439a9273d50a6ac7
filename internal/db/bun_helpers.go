// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// rawExecer is satisfied by both *bun.DB and bun.Tx.
type rawExecer interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

// accountTables lists the tables Save rewrites, children first so the
// foreign key from trusted_addresses never points at a removed account.
var accountTables = []string{"trusted_addresses", "accounts"}

// clearAccountTables empties every account table. Bun refuses a Delete
// without WHERE, hence the raw statements.
func clearAccountTables(ctx context.Context, exec rawExecer) error {
	for _, table := range accountTables {
		if _, err := exec.NewRaw("DELETE FROM ?", bun.Ident(table)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
