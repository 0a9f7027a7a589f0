package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/standupbuddy/standupbuddy/internal/conversation"
)

const (
	pollTimeout    = 30 // seconds, long-poll hold time
	pollRetryDelay = 3 * time.Second
)

// Bot runs the inbound update loop and routes every update through the
// conversation machine.
type Bot struct {
	api     *tgbotapi.BotAPI
	msg     *Messenger
	machine *conversation.Machine
}

// NewAPI authorizes against the Bot API.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorizing bot: %w", err)
	}
	return api, nil
}

// NewBot builds the update loop. The Bot sends through the given Messenger
// so all outbound traffic shares one rate limit.
func NewBot(api *tgbotapi.BotAPI, msg *Messenger, machine *conversation.Machine) *Bot {
	return &Bot{api: api, msg: msg, machine: machine}
}

// Username returns the authorized bot account's username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run polls for updates until the context is cancelled. Updates are
// handled sequentially; per-update failures are logged and skipped.
// A 409 from the API means another poller holds this token and is fatal;
// transient poll errors back off and retry.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("polling for updates", "bot", b.Username())

	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = pollTimeout

		updates, err := b.api.GetUpdates(cfg)
		if err != nil {
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
				return fmt.Errorf("another instance is polling this token: %w", err)
			}
			slog.Warn("polling failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil && !update.Message.From.IsBot:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Ack first so the client stops showing the spinner even if handling
	// fails below.
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		slog.Warn("answering callback", "error", err)
	}

	reply, err := b.machine.HandleButton(ctx, cq.From.ID, cq.Data)
	if err != nil {
		slog.Error("handling button", "user", cq.From.ID, "action", cq.Data, "error", err)
		return
	}

	if reply.Edit && cq.Message != nil {
		if b.editMessage(cq.Message.Chat.ID, cq.Message.MessageID, reply) {
			return
		}
		// Message too old to edit; fall through to a fresh one.
	}
	b.sendReply(ctx, cq.From.ID, reply)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	if msg.IsCommand() {
		var reply conversation.Reply
		var err error
		switch msg.Command() {
		case "start":
			reply, err = b.machine.Start(ctx, userID, displayName(msg.From))
		case "help":
			reply = b.machine.Help()
		default:
			return
		}
		if err != nil {
			slog.Error("handling command", "user", userID, "command", msg.Command(), "error", err)
			return
		}
		b.sendReply(ctx, userID, reply)
		return
	}

	isReply := msg.ReplyToMessage != nil &&
		msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == b.api.Self.ID

	reply, err := b.machine.HandleText(ctx, userID, msg.Text, isReply)
	if err != nil {
		slog.Error("handling text", "user", userID, "error", err)
		return
	}
	if reply != nil {
		b.sendReply(ctx, userID, *reply)
	}
}

func (b *Bot) sendReply(ctx context.Context, chatID int64, reply conversation.Reply) {
	if err := b.msg.limiter.Wait(ctx); err != nil {
		return
	}
	out := tgbotapi.NewMessage(chatID, reply.Text)
	if kb := inlineKeyboard(reply.Keyboard); kb != nil {
		out.ReplyMarkup = *kb
	}
	if _, err := b.api.Send(out); err != nil {
		slog.Warn("sending reply", "chat", chatID, "error", err)
	}
}

// editMessage rewrites a previous menu message in place. Reports whether
// the edit went through.
func (b *Bot) editMessage(chatID int64, messageID int, reply conversation.Reply) bool {
	var c tgbotapi.Chattable
	if kb := inlineKeyboard(reply.Keyboard); kb != nil {
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, reply.Text, *kb)
	} else {
		c = tgbotapi.NewEditMessageText(chatID, messageID, reply.Text)
	}
	if _, err := b.api.Send(c); err != nil {
		slog.Debug("editing message", "chat", chatID, "error", err)
		return false
	}
	return true
}

func inlineKeyboard(rows [][]conversation.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Action))
		}
		out = append(out, buttons)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &kb
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.UserName
	}
	return name
}
