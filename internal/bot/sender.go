package bot

import (
	"context"
	"fmt"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// TeleSender delivers plain text messages to Telegram users. The bot
// instance is bound after startup because the dispatcher and notifier
// are constructed before the transport exists.
type TeleSender struct {
	mu  sync.RWMutex
	bot *tele.Bot
}

// NewTeleSender returns an unbound sender. Send fails until Bind.
func NewTeleSender() *TeleSender {
	return &TeleSender{}
}

// Bind attaches the live bot instance.
func (s *TeleSender) Bind(bot *tele.Bot) {
	s.mu.Lock()
	s.bot = bot
	s.mu.Unlock()
}

// Send delivers one text message. The Telegram client manages its own
// request deadlines; ctx cancellation is checked before the call.
func (s *TeleSender) Send(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	bot := s.bot
	s.mu.RUnlock()
	if bot == nil {
		return fmt.Errorf("bot: sender not bound")
	}
	_, err := bot.Send(tele.ChatID(userID), text)
	return err
}
