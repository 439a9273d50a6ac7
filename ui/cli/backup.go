// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/backup"
	"github.com/toeirei/joinguard/internal/db"
	"github.com/toeirei/joinguard/internal/i18n"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup [output-file]",
		Short: "Create a compressed (zstd) JSON backup of the accounts",
		Long: `Dumps all accounts into a single, Zstandard-compressed JSON file.

If an output file is specified, '.zst' will be appended to the name if it's not already present.
If no output file is specified, a default filename 'joinguard-backup-YYYY-MM-DD.json.zst' is used.

Examples:
  # Backup to a default file (e.g., joinguard-backup-2026-10-19.json.zst)
  joinguard backup

  # Backup to a specific file
  joinguard backup my-backup.json`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			outputFile := backup.DefaultFilename(now)
			if len(args) > 0 {
				outputFile = backup.NormalizeFilename(args[0])
			}
			data := backup.New(store.Snapshot().Accounts(), now)
			if err := backup.WriteFile(outputFile, data); err != nil {
				return fmt.Errorf("could not write backup: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.backup.success", len(data.Accounts), outputFile))
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file.zst>",
		Short: "Replace all accounts with the contents of a backup",
		Long: `Restores the accounts from a Zstandard-compressed JSON backup file.
WARNING: the current accounts are replaced completely. This is not reversible.

Example:
  joinguard restore ./joinguard-backup-2026-10-19.json.zst`,
		Args:    cobra.ExactArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := backup.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("could not read backup: %w", err)
			}
			if err := store.Replace(cmd.Context(), data.Accounts); err != nil {
				return fmt.Errorf("backup %s is not usable: %w", args[0], err)
			}
			// Replace keeps going on save failures; an operator needs to know.
			if err := store.Save(cmd.Context()); err != nil {
				return fmt.Errorf("restored accounts could not be saved: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.restore.success", len(data.Accounts), args[0]))
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate --to-type <db-type> --to-dsn <target-dsn>",
		Short: "Copy all accounts into another storage backend",
		Long: `Copies every account from the configured storage into a new target.

This command automates the following steps:
1. Reads the accounts from the source storage.
2. Connects to the target specified by --to-type and --to-dsn.
3. Applies all necessary database schema migrations to the target.
4. Replaces the target's contents with the source accounts.

Point database.type and database.dsn at the target afterwards.

Example:
  joinguard migrate --to-type postgres --to-dsn "host=localhost user=joinguard dbname=joinguard"`,
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			targetType, _ := cmd.Flags().GetString("to-type")
			targetDsn, _ := cmd.Flags().GetString("to-dsn")
			if targetType == "" || targetDsn == "" {
				return errors.New("both --to-type and --to-dsn are required")
			}
			if targetType == appConfig.Database.Type && targetDsn == appConfig.Database.Dsn {
				return errors.New("target is the configured storage")
			}

			list := store.Snapshot().Accounts()
			if err := accounts.Validate(list); err != nil {
				return err
			}

			target, err := db.NewBackend(targetType, targetDsn)
			if err != nil {
				return fmt.Errorf("could not open target storage: %w", err)
			}
			defer func() {
				if err := target.Close(); err != nil {
					log.Warnf("closing target storage: %v", err)
				}
			}()

			if err := target.Save(cmd.Context(), list); err != nil {
				return fmt.Errorf("could not write accounts to target: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.migrate.success", len(list), targetType))
			return nil
		},
	}
	cmd.Flags().String("to-type", "", `Target storage type ("json", "sqlite", "postgres", "mysql")`)
	cmd.Flags().String("to-dsn", "", "Target storage location (file path or DSN)")
	return cmd
}
