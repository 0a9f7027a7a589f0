// Package telegram adapts the conversation machine and the standup engine
// to the Telegram Bot API: long polling in, rate-limited sends out.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// sendRate caps outbound messages per second, below the platform's 30/s
// broadcast limit so prompt fan-out cannot trip flood control.
const sendRate = 25

// Messenger delivers outbound messages with global send pacing. All sends
// in the process share one limiter.
type Messenger struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

// NewMessenger creates a Messenger over an authorized bot client.
func NewMessenger(api *tgbotapi.BotAPI) *Messenger {
	return &Messenger{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendRate),
	}
}

// SendText delivers a plain message to one chat.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := m.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SendPrompt delivers a standup prompt with a forced reply, so the answer
// comes back attached to the prompt.
func (m *Messenger) SendPrompt(ctx context.Context, chatID int64, text string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("sending prompt: %w", err)
	}
	return nil
}
