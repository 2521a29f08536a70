// Package bot binds the conversation engine to the Telegram transport:
// it translates updates into engine events, runs transitions under the
// per-user session lock, and renders engine actions back into messages
// with inline keyboards.
package bot

import (
	"context"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"log/slog"

	coreconfig "github.com/m3rciful/aromabot/core/config"
	"github.com/m3rciful/aromabot/core/logger"
	"github.com/m3rciful/aromabot/core/telegram"
	tghelpers "github.com/m3rciful/aromabot/core/telegram/helpers"
	"github.com/m3rciful/aromabot/core/telegram/keyboard"
	"github.com/m3rciful/aromabot/core/telegram/middleware"
	"github.com/m3rciful/aromabot/internal/engine"
	"github.com/m3rciful/aromabot/internal/session"
)

// Bot glues the engine and session manager to telebot routes.
type Bot struct {
	cfg      *coreconfig.Config
	engine   *engine.Engine
	sessions *session.Manager
}

// New wires the handler set. The transport itself is owned by
// telegram.RunTelegram.
func New(cfg *coreconfig.Config, eng *engine.Engine, sessions *session.Manager) *Bot {
	return &Bot{cfg: cfg, engine: eng, sessions: sessions}
}

// Middlewares returns the global chain in application order.
func (b *Bot) Middlewares() []telegram.Middleware {
	mws := []telegram.Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logging", Use: middleware.LoggerMiddleware},
	}
	if b.cfg.RateLimit.IntervalMS > 0 {
		exclude := make(map[string]struct{}, len(b.cfg.RateLimit.ExcludeUpdates))
		for _, kind := range b.cfg.RateLimit.ExcludeUpdates {
			exclude[kind] = struct{}{}
		}
		mws = append(mws, telegram.Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval: time.Duration(b.cfg.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:  exclude,
			}),
		})
	}
	return mws
}

// Routes returns every handler binding.
func (b *Bot) Routes() []telegram.Route {
	adminOpts := middleware.OperatorOptions{
		IsOperator: b.cfg.IsOperator,
		OnReject: func(c tele.Context) error {
			return c.Send("У вас нет прав для выполнения этой команды.")
		},
	}
	return []telegram.Route{
		{Endpoint: "/start", Handler: b.handleStart},
		{Endpoint: "/admin", Handler: middleware.OperatorOnly(adminOpts, b.handleAdmin(""))},
		{Endpoint: "/broadcast", Handler: middleware.OperatorOnly(adminOpts, b.handleAdmin(engine.AdminBroadcast))},
		{Endpoint: "/stats", Handler: middleware.OperatorOnly(adminOpts, b.handleAdmin(engine.AdminStats))},
		{Endpoint: tele.OnCallback, Handler: b.handleCallback},
		{Endpoint: tele.OnText, Handler: b.handleText},
		{Endpoint: tele.OnPhoto, Handler: b.handlePhoto},
	}
}

// Commands is published to Telegram on startup.
func (b *Bot) Commands() []tele.Command {
	return []tele.Command{
		{Text: "start", Description: "Начать работу с ботом"},
	}
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	firstName := strings.TrimSpace(sender.FirstName)
	if firstName == "" {
		firstName = "друг"
	}

	actions := b.engine.Start(ctx, sender.ID, firstName)
	b.sessions.Reset(sender.ID)
	return b.send(c, actions)
}

// handleAdmin serves the privileged commands. An empty action opens the
// admin menu.
func (b *Bot) handleAdmin(action string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, "admin")
		userID := c.Sender().ID

		var actions []engine.Action
		b.sessions.Do(userID, func(st engine.State, acc engine.Accumulated) (engine.State, engine.Accumulated) {
			next, out := b.engine.AdminAction(ctx, userID, action, st)
			actions = out
			if next != st {
				return next, engine.Accumulated{}
			}
			return st, acc
		})
		return b.send(c, actions)
	}
}

func (b *Bot) handleCallback(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	key, payload := parseSelection(c.Callback())
	if key == "" {
		return c.Respond()
	}

	ctx := tghelpers.WithHandler(c, "callback")
	userID := sender.ID

	var actions []engine.Action
	b.sessions.Do(userID, func(st engine.State, acc engine.Accumulated) (engine.State, engine.Accumulated) {
		if key == engine.SelectAdmin {
			next, out := b.engine.AdminAction(ctx, userID, payload, st)
			actions = out
			if next != st {
				return next, engine.Accumulated{}
			}
			return st, acc
		}
		next, nextAcc, out := b.engine.Handle(ctx, userID, engine.SelectionEvent(key, payload), st, acc)
		actions = out
		return next, nextAcc
	})

	if err := c.Respond(); err != nil {
		logger.Warn(ctx, "bot", "callback.respond",
			slog.String("err", err.Error()),
		)
	}
	return b.send(c, actions)
}

func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		// unrecognized command, not conversation input
		return nil
	}

	ctx := tghelpers.WithHandler(c, "text")
	return b.dispatch(c, ctx, sender.ID, engine.TextEvent(text))
}

func (b *Bot) handlePhoto(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return nil
	}

	ctx := tghelpers.WithHandler(c, "photo")
	return b.dispatch(c, ctx, sender.ID, engine.PhotoEvent(msg.Photo.FileID))
}

// dispatch runs one transition under the user's session lock and sends
// the resulting actions after the lock is released.
func (b *Bot) dispatch(c tele.Context, ctx context.Context, userID int64, ev engine.Event) error {
	var actions []engine.Action
	b.sessions.Do(userID, func(st engine.State, acc engine.Accumulated) (engine.State, engine.Accumulated) {
		next, nextAcc, out := b.engine.Handle(ctx, userID, ev, st, acc)
		actions = out
		return next, nextAcc
	})
	return b.send(c, actions)
}

func (b *Bot) send(c tele.Context, actions []engine.Action) error {
	for _, action := range actions {
		if action.Text == "" {
			continue
		}
		var err error
		if action.Menu != nil {
			err = c.Send(action.Text, renderMenu(action.Menu))
		} else {
			err = c.Send(action.Text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// renderMenu converts an engine menu into an inline keyboard. Key and
// payload round-trip through callback data as "key|payload".
func renderMenu(menu *engine.Menu) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(menu.Rows))
	for _, row := range menu.Rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, btn := range row {
			r = append(r, keyboard.InlineBtn{
				Text:   btn.Label,
				Unique: btn.Key,
				Data:   btn.Payload,
			})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}

// parseSelection extracts the selection key and payload from a callback.
// Telebot resolves the "\fkey|payload" form only for registered unique
// endpoints; the catch-all handler parses the raw data itself.
func parseSelection(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}
