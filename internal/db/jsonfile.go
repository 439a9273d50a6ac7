// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/toeirei/joinguard/internal/model"
)

// JSONFile stores snapshots as a pretty-printed JSON array of accounts:
//
//	[{"username": "...", "ip": ["..."], "externalChatId": "..."}]
type JSONFile struct {
	path string
}

var _ Backend = (*JSONFile)(nil)

// NewJSONFile returns a backend writing to path. The file and its directory
// are created on the first Save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the file location.
func (j *JSONFile) Path() string { return j.path }

// Load decodes the file. A missing file reports found=false.
func (j *JSONFile) Load(_ context.Context) ([]model.Account, bool, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", j.path, err)
	}

	var accounts []model.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", j.path, err)
	}
	for i := range accounts {
		if accounts[i].TrustedAddresses == nil {
			accounts[i].TrustedAddresses = []string{}
		}
	}
	return accounts, true, nil
}

// Save writes the snapshot atomically: temp file, fsync, rename.
func (j *JSONFile) Save(_ context.Context, accounts []model.Account) error {
	if accounts == nil {
		accounts = []model.Account{}
	}
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp := j.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	_ = f.Close()

	if err := os.Rename(tmp, j.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// MoveAside renames the file to "<path>.corrupt-<timestamp>" so that the
// next Save cannot overwrite data that failed to load. It returns the new
// location.
func (j *JSONFile) MoveAside(now time.Time) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%s", j.path, now.UTC().Format("20060102T150405Z"))
	if err := os.Rename(j.path, dest); err != nil {
		return "", fmt.Errorf("moving %s aside: %w", j.path, err)
	}
	return dest, nil
}

// Close is a no-op for file storage.
func (j *JSONFile) Close() error { return nil }
