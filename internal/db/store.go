// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"

	"github.com/toeirei/joinguard/internal/model"
)

// Backend persists complete account snapshots. Implementations replace the
// whole durable state on every Save; there is no partial update path.
type Backend interface {
	// Load returns the durable accounts. found is false when no durable
	// state exists yet (for example a missing JSON file).
	Load(ctx context.Context) (accounts []model.Account, found bool, err error)
	// Save replaces the durable state with accounts.
	Save(ctx context.Context, accounts []model.Account) error
	// Close releases resources held by the backend.
	Close() error
}
