// Package broadcast fans one message out to many recipients. Failures
// are isolated per recipient: every recipient is attempted no matter
// how many sends before it failed.
package broadcast

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"log/slog"

	"github.com/m3rciful/aromabot/core/logger"
)

// Sender delivers one message over the messaging channel.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Options bounds the fan-out.
type Options struct {
	// Concurrency caps parallel sends; values below one fall back to 8.
	Concurrency int
	// SendTimeout bounds each individual delivery so one slow
	// recipient cannot stall the dispatch; zero means 10s.
	SendTimeout time.Duration
	// RetryTransient enables a single retry after flood-wait and
	// deadline errors.
	RetryTransient bool
}

// Dispatcher delivers broadcasts through a Sender.
type Dispatcher struct {
	sender         Sender
	concurrency    int
	sendTimeout    time.Duration
	retryTransient bool
}

// NewDispatcher returns a Dispatcher with normalized options.
func NewDispatcher(sender Sender, opts Options) *Dispatcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 8
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		sender:         sender,
		concurrency:    opts.Concurrency,
		sendTimeout:    opts.SendTimeout,
		retryTransient: opts.RetryTransient,
	}
}

// Dispatch sends text to every recipient and reports (delivered, total).
// It returns only after every recipient has been attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, recipients []int64) (int, int) {
	total := len(recipients)
	if total == 0 {
		return 0, 0
	}

	start := time.Now()
	var sent atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for _, userID := range recipients {
		g.Go(func() error {
			if err := d.sendOne(ctx, userID, text); err != nil {
				logger.Warn(ctx, "broadcast", "send",
					slog.String("status", "fail"),
					slog.Int64("user_id", userID),
					slog.String("err", err.Error()),
				)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	delivered := int(sent.Load())
	logger.Info(ctx, "broadcast", "broadcast.done",
		slog.Int("recipients", total),
		slog.Int("sent", delivered),
		slog.Int("failed", total-delivered),
		slog.Duration("duration", logger.Took(start)),
	)
	return delivered, total
}

func (d *Dispatcher) sendOne(ctx context.Context, userID int64, text string) error {
	err := d.attempt(ctx, userID, text)
	if err == nil || !d.retryTransient {
		return err
	}
	delay, ok := transientDelay(err)
	if !ok {
		return err
	}
	if delay > d.sendTimeout {
		delay = d.sendTimeout
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(delay):
	}
	return d.attempt(ctx, userID, text)
}

func (d *Dispatcher) attempt(ctx context.Context, userID int64, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.Send(sendCtx, userID, text)
}

// transientDelay classifies retryable failures and picks the wait
// before the second attempt.
func transientDelay(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, true
	}
	return 0, false
}
