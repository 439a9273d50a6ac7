// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"strings"
)

// ErrDuplicate is returned when a snapshot violates a uniqueness constraint
// of the backend (username or external id).
var ErrDuplicate = errors.New("duplicate record")

// ConstraintError names the account column whose uniqueness a save violated.
// It matches ErrDuplicate with errors.Is.
type ConstraintError struct {
	Column string // "username", "identity" or "address"
	Err    error
}

func (e *ConstraintError) Error() string {
	return "duplicate " + e.Column + ": " + e.Err.Error()
}

func (e *ConstraintError) Unwrap() error { return e.Err }

func (e *ConstraintError) Is(target error) bool { return target == ErrDuplicate }

// MapDBError turns unique violations reported by sqlite, postgres (23505) or
// mysql (1062) into a *ConstraintError. Anything else is returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate") &&
		!strings.Contains(msg, "23505") && !strings.Contains(msg, "1062") {
		return err
	}
	return &ConstraintError{Column: violatedColumn(msg), Err: err}
}

// violatedColumn reads the constraint or column name out of a driver message.
// Index names follow the migrations: accounts_username_key_key,
// accounts_external_id_key, uq_account_address and so on.
func violatedColumn(msg string) string {
	switch {
	case strings.Contains(msg, "external_id"):
		return "identity"
	case strings.Contains(msg, "address"):
		return "address"
	default:
		return "username"
	}
}
