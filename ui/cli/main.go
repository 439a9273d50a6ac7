// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for Joinguard using Cobra. It
// defines the root command, the shared flags, the service bootstrap used by
// every subcommand and the build version helpers.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/config"
	"github.com/toeirei/joinguard/internal/db"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/logging"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

var verbose bool
var showVersionFlag bool

var appConfig config.Config

// backend and store are opened by setupDefaultServices and released by
// closeServices.
var backend db.Backend
var store *accounts.Store

func setupDefaultServices(cmd *cobra.Command, args []string) error {
	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), optionalConfigPath)
	// A "file not found" error is expected on first run.
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		if writeErr := config.WriteConfigFile(&appConfig, false); writeErr != nil {
			// The app can run on defaults.
			log.Warnf("could not write default config file: %v", writeErr)
		} else {
			log.Debug("wrote default config to user config path")
		}
	} else if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.SetLevel(appConfig.Log.Level)
	if verbose {
		logging.SetLevel("debug")
	}
	log.SetLevel(logging.L.GetLevel())
	i18n.Init(appConfig.Language)

	closeServices()
	backend, err = db.NewBackend(appConfig.Database.Type, appConfig.Database.Dsn)
	if err != nil {
		return fmt.Errorf("could not open %s storage: %w", appConfig.Database.Type, err)
	}
	store = accounts.New(backend, accounts.Options{
		Retries: appConfig.Persist.Retries,
		Backoff: appConfig.Persist.Backoff,
	})
	if err := store.Load(cmd.Context()); err != nil {
		log.Warnf("could not load accounts, continuing with an empty store: %v", err)
		quarantineAccountFile(cmd.Context())
	}
	return nil
}

// quarantineAccountFile moves an unreadable account file out of the way and
// starts a fresh one, so the first save does not destroy what failed to load.
func quarantineAccountFile(ctx context.Context) {
	jf, ok := backend.(*db.JSONFile)
	if !ok {
		return
	}
	moved, err := jf.MoveAside(time.Now())
	if err != nil {
		log.Errorf("could not move unreadable account file aside: %v", err)
		return
	}
	log.Warnf("unreadable account file kept as %s", moved)
	if err := store.Load(ctx); err != nil {
		log.Errorf("could not start a new account file: %v", err)
	}
}

// closeServices releases the storage backend, if one is open.
func closeServices() {
	if backend == nil {
		return
	}
	if err := backend.Close(); err != nil {
		log.Warnf("closing storage: %v", err)
	}
	backend = nil
	store = nil
}

// Execute runs the CLI entrypoint. The root main package should call this
// function and handle process exit.
func Execute() error {
	defer closeServices()
	return NewRootCmd().Execute()
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if cmd.Flags().Changed("config") {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return nil, fmt.Errorf("could not read --config flag: %w", err)
		}
		if path == "" {
			return nil, nil
		}
		// Make sure the user-provided file exists to avoid unwanted behavior.
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		return &path, nil
	}
	return nil, nil
}

// NewRootCmd creates and configures a new root cobra command.
// This function is used to create the main application command as well as
// fresh instances for isolated testing.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "joinguard",
		Short: "Joinguard confirms game server logins over Telegram.",
		Long: `Joinguard binds in-game usernames to Telegram accounts. When a player
joins from an address that was never approved, the login is refused and the
owner gets a Telegram message with Confirm and Deny buttons. Confirmed
addresses are trusted from then on.

Run 'joinguard serve' to start the bot and the host hook.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if showVersionFlag {
				fmt.Fprintln(cmd.OutOrStdout(), compositeVersion())
				os.Exit(0)
			}
			if verbose {
				db.SetDebug(true)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeServices()
		},
	}

	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logs, SQL tracing)")
	cmd.PersistentFlags().BoolVarP(&showVersionFlag, "version", "V", false, "Print version and exit")
	cmd.PersistentFlags().String("config", "", "config file")
	cmd.PersistentFlags().String("db-type", "", `Storage type ("json", "sqlite", "postgres", "mysql")`)
	cmd.PersistentFlags().String("db-dsn", "", "Storage location (file path or DSN)")
	cmd.PersistentFlags().String("lang", "", fmt.Sprintf("Reply language (%s)", strings.Join(i18n.AvailableTags(), ", ")))
	cmd.PersistentFlags().String("log-level", "", `Log level ("debug", "info", "warn", "error")`)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}

	cmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newAccountsCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newMigrateCmd(),
		versionCmd,
	)

	return cmd
}

// compositeVersion renders version, commit and build date on one line.
func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out = out + " (" + c + ")"
	}
	if d != "" {
		out = out + " built: " + d
	}
	return out
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If `info` is nil, it reads build info from
// the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := version
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if infoLocal, found := debug.ReadBuildInfo(); found {
			info = infoLocal
		}
	}

	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		// If Main doesn't contain the version (some build paths), try to
		// find our module in the dependencies and use that version.
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/joinguard" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}

		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	// As a last resort, show the ldflags commit to aid support.
	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}

	return resolvedVersion, resolvedCommit, resolvedDate
}
