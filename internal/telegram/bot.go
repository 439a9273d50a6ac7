// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package telegram is the approval channel backed by a Telegram bot. It
// delivers prompts with inline buttons and feeds incoming messages and button
// presses to a Handler.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/toeirei/joinguard/internal/config"
	"github.com/toeirei/joinguard/internal/confirm"
	"github.com/toeirei/joinguard/internal/logging"
)

// pollTimeout is the long-poll timeout in seconds.
const pollTimeout = 30

// Handler receives inbound chat events. *service.Service implements it.
type Handler interface {
	OnText(ctx context.Context, senderID, text string) string
	OnButtonData(ctx context.Context, senderID, data string) (ack, notice string)
}

// sender is the subset of *tgbotapi.BotAPI used for outbound calls.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is a connected Telegram bot.
type Bot struct {
	api *tgbotapi.BotAPI
	out sender
}

var _ confirm.Channel = (*Bot)(nil)

// New validates the credentials in cfg and connects to the Bot API. It
// returns an error wrapping config.ErrBotNotConfigured for blank or
// placeholder credentials, without touching the network.
func New(cfg config.Config) (*Bot, error) {
	if err := cfg.ValidateBot(); err != nil {
		return nil, err
	}
	_ = tgbotapi.SetLogger(botLogger{})

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(cfg.TelegramAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to start Telegram bot (incorrect bot username or API key): %w", err)
	}
	want := strings.TrimPrefix(strings.TrimSpace(cfg.TelegramBotName), "@")
	if !strings.EqualFold(api.Self.UserName, want) {
		return nil, fmt.Errorf("failed to start Telegram bot: token belongs to @%s, configured bot is @%s", api.Self.UserName, want)
	}
	logging.Infof("telegram: bot @%s connected", api.Self.UserName)
	return &Bot{api: api, out: api}, nil
}

// SendText sends a plain message to a chat.
func (b *Bot) SendText(ctx context.Context, destinationID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(destinationID)
	if err != nil {
		return err
	}
	_, err = b.out.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendPrompt sends a message with one inline button per option.
func (b *Bot) SendPrompt(ctx context.Context, destinationID, text string, options []confirm.Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(destinationID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(options) > 0 {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(options))
		for _, o := range options {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(o.Label, o.Payload))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	_, err = b.out.Send(msg)
	return err
}

// Run long-polls for updates and dispatches them to h until ctx is cancelled.
// Updates are handled one at a time, in arrival order.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, h, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, h Handler, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		q := upd.CallbackQuery
		senderID := callbackSender(q)
		ack, _ := h.OnButtonData(ctx, senderID, q.Data)
		if _, err := b.out.Request(tgbotapi.NewCallback(q.ID, ack)); err != nil {
			logging.Warnf("telegram: failed to answer callback from %s: %v", senderID, err)
		}
	case upd.Message != nil && upd.Message.Text != "":
		chatID := upd.Message.Chat.ID
		reply := h.OnText(ctx, strconv.FormatInt(chatID, 10), upd.Message.Text)
		if reply == "" {
			return
		}
		if _, err := b.out.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
			logging.Warnf("telegram: failed to reply to %d: %v", chatID, err)
		}
	}
}

// callbackSender identifies the chat a button belongs to; prompts are sent
// to the account's chat, so that is the identity to match.
func callbackSender(q *tgbotapi.CallbackQuery) string {
	if q.Message != nil && q.Message.Chat != nil {
		return strconv.FormatInt(q.Message.Chat.ID, 10)
	}
	if q.From != nil {
		return strconv.FormatInt(q.From.ID, 10)
	}
	return ""
}

func parseChatID(id string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", id, err)
	}
	return chatID, nil
}

// botLogger routes the library's log output to the debug log.
type botLogger struct{}

func (botLogger) Println(v ...interface{}) {
	logging.Debugf("telegram: %s", strings.TrimSpace(fmt.Sprintln(v...)))
}

func (botLogger) Printf(format string, v ...interface{}) {
	logging.Debugf("telegram: "+format, v...)
}
