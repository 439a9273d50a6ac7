// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package backup reads and writes Zstandard-compressed JSON exports of the
// account records.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/joinguard/internal/model"
)

// New wraps accounts in a BackupData stamped with the current schema version.
func New(accounts []model.Account, now time.Time) *model.BackupData {
	if accounts == nil {
		accounts = []model.Account{}
	}
	return &model.BackupData{
		SchemaVersion: model.CurrentSchemaVersion,
		CreatedAt:     now.UTC(),
		Accounts:      accounts,
	}
}

// DefaultFilename returns "joinguard-backup-YYYY-MM-DD.json.zst".
func DefaultFilename(now time.Time) string {
	return fmt.Sprintf("joinguard-backup-%s.json.zst", now.Format("2006-01-02"))
}

// NormalizeFilename appends ".zst" when missing.
func NormalizeFilename(name string) string {
	if !strings.HasSuffix(name, ".zst") {
		return name + ".zst"
	}
	return name
}

// Write streams data as pretty-printed JSON through a zstd encoder.
func Write(w io.Writer, data *model.BackupData) error {
	zstdWriter, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("could not create zstd writer: %w", err)
	}

	encoder := json.NewEncoder(zstdWriter)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		_ = zstdWriter.Close()
		return fmt.Errorf("could not encode json to zstd writer: %w", err)
	}
	if err := zstdWriter.Close(); err != nil {
		return fmt.Errorf("could not flush zstd writer: %w", err)
	}
	return nil
}

// Read decodes a backup written by Write. Backups from a newer schema
// version are rejected.
func Read(r io.Reader) (*model.BackupData, error) {
	zstdReader, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zstdReader.Close()

	var data model.BackupData
	if err := json.NewDecoder(zstdReader).Decode(&data); err != nil {
		return nil, fmt.Errorf("could not decode json from zstd reader: %w", err)
	}
	if data.SchemaVersion > model.CurrentSchemaVersion {
		return nil, fmt.Errorf("backup schema version %d is newer than supported version %d", data.SchemaVersion, model.CurrentSchemaVersion)
	}
	for i := range data.Accounts {
		if data.Accounts[i].TrustedAddresses == nil {
			data.Accounts[i].TrustedAddresses = []string{}
		}
	}
	return &data, nil
}

// WriteFile writes a backup to filename.
func WriteFile(filename string, data *model.BackupData) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	if err := Write(file, data); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// ReadFile reads a backup from filename.
func ReadFile(filename string) (*model.BackupData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return Read(file)
}
