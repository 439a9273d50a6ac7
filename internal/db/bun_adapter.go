// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	"github.com/toeirei/joinguard/internal/model"
	"github.com/uptrace/bun"
)

// AccountModel maps the `accounts` table for Bun queries.
type AccountModel struct {
	bun.BaseModel `bun:"table:accounts"`
	ID            int64  `bun:"id,pk"`
	Username      string `bun:"username"`
	UsernameKey   string `bun:"username_key"`
	ExternalID    string `bun:"external_id"`
}

// TrustedAddressModel maps the `trusted_addresses` table.
type TrustedAddressModel struct {
	bun.BaseModel `bun:"table:trusted_addresses"`
	AccountID     int64  `bun:"account_id"`
	Position      int    `bun:"position"`
	Address       string `bun:"address"`
}

// SQLBackend stores snapshots in a SQL database through Bun.
type SQLBackend struct {
	bun    *bun.DB
	dbType string
}

var _ Backend = (*SQLBackend)(nil)

// Type returns the configured database type.
func (s *SQLBackend) Type() string { return s.dbType }

// Load reads all accounts ordered by insertion. A migrated database always
// counts as existing state, so found is true on success.
func (s *SQLBackend) Load(ctx context.Context) ([]model.Account, bool, error) {
	var am []AccountModel
	if err := s.bun.NewSelect().Model(&am).OrderExpr("id").Scan(ctx); err != nil {
		return nil, false, fmt.Errorf("load accounts: %w", err)
	}
	var tm []TrustedAddressModel
	if err := s.bun.NewSelect().Model(&tm).OrderExpr("account_id, position").Scan(ctx); err != nil {
		return nil, false, fmt.Errorf("load trusted addresses: %w", err)
	}

	byID := make(map[int64][]string, len(am))
	for _, t := range tm {
		byID[t.AccountID] = append(byID[t.AccountID], t.Address)
	}
	out := make([]model.Account, 0, len(am))
	for _, a := range am {
		out = append(out, accountModelToModel(a, byID[a.ID]))
	}
	return out, true, nil
}

// Save replaces both tables inside a single transaction.
func (s *SQLBackend) Save(ctx context.Context, accounts []model.Account) error {
	tx, err := s.bun.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearAccountTables(ctx, tx); err != nil {
		return err
	}

	if len(accounts) > 0 {
		am := make([]AccountModel, 0, len(accounts))
		var tm []TrustedAddressModel
		for i, a := range accounts {
			id := int64(i + 1)
			am = append(am, AccountModel{
				ID:          id,
				Username:    a.Username,
				UsernameKey: model.UsernameKey(a.Username),
				ExternalID:  a.ExternalID,
			})
			for pos, addr := range a.TrustedAddresses {
				tm = append(tm, TrustedAddressModel{AccountID: id, Position: pos, Address: addr})
			}
		}
		if _, err := tx.NewInsert().Model(&am).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert accounts: %w", MapDBError(err))
		}
		if len(tm) > 0 {
			if _, err := tx.NewInsert().Model(&tm).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert trusted addresses: %w", MapDBError(err))
			}
		}
	}

	return tx.Commit()
}

// Close closes the underlying database handle.
func (s *SQLBackend) Close() error {
	return s.bun.Close()
}

func accountModelToModel(a AccountModel, addresses []string) model.Account {
	if addresses == nil {
		addresses = []string{}
	}
	return model.Account{
		Username:         a.Username,
		ExternalID:       a.ExternalID,
		TrustedAddresses: addresses,
	}
}
