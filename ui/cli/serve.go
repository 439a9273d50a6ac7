// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/toeirei/joinguard/internal/config"
	"github.com/toeirei/joinguard/internal/confirm"
	"github.com/toeirei/joinguard/internal/gate"
	"github.com/toeirei/joinguard/internal/hostapi"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/service"
	"github.com/toeirei/joinguard/internal/telegram"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the host hook",
		Long: `Starts the Telegram bot, the challenge sweeper and the HTTP hook that the
game server plugin calls on every join attempt.

If the bot credentials are missing or still hold the placeholders, the bot is
disabled and the hook keeps answering: unknown players are rejected and
players on new addresses are asked to confirm, but no prompt can be sent.

Stops cleanly on SIGINT or SIGTERM.`,
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

// runServe blocks until ctx is cancelled or the hook server fails.
func runServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var challenger gate.Challenger

	bot, err := telegram.New(appConfig)
	switch {
	case errors.Is(err, config.ErrBotNotConfigured):
		log.Warn(i18n.T("cli.serve.bot_disabled", err))
	case err != nil:
		log.Error(i18n.T("cli.serve.bot_disabled", err))
	default:
		wf := confirm.New(store, bot, confirm.Options{
			TTL:            appConfig.Challenge.TTL,
			PromptInterval: appConfig.Challenge.PromptInterval,
			PromptBurst:    appConfig.Challenge.PromptBurst,
		})
		challenger = wf

		wg.Add(2)
		go func() {
			defer wg.Done()
			wf.RunSweeper(ctx, appConfig.Challenge.SweepInterval)
		}()
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx, service.New(store, wf)); err != nil {
				log.Errorf("telegram bot stopped: %v", err)
			}
		}()
	}

	g := gate.New(store, challenger)
	srv := hostapi.NewServer(hostapi.ServerConfig{
		Listen: appConfig.Host.Listen,
		Token:  appConfig.Host.Token,
	}, g)

	log.Infof("joinguard serving %d accounts from %s storage, replies in %s", store.Snapshot().Len(), appConfig.Database.Type, i18n.GetLang())
	err = srv.Start(ctx)
	cancel()
	wg.Wait()
	g.Wait()
	if err != nil {
		return err
	}
	log.Info("joinguard stopped")
	return nil
}
