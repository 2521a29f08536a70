// Package recommend implements the periodic recommendation push: every
// user with a completed survey gets a fresh generated recommendation on
// the scheduler's cadence.
package recommend

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/m3rciful/aromabot/core/logger"
	"github.com/m3rciful/aromabot/internal/domain"
)

// Store is the subset of the record store the push needs.
type Store interface {
	UserIDs(ctx context.Context) ([]int64, error)
	Profile(ctx context.Context, userID int64) (domain.Profile, error)
	AddRecommendation(ctx context.Context, userID int64, text string) error
}

// Generator produces recommendation text from a profile.
type Generator interface {
	Recommend(ctx context.Context, profile domain.Profile, query string) (string, error)
}

// Sender delivers one message over the messaging channel.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

const pushHeader = "Ваша персональная рекомендация на сегодня:\n\n"

// Service walks the user base sequentially. The generation client
// already throttles itself; a per-user failure skips that user only.
type Service struct {
	store Store
	gen   Generator
	send  Sender
}

func NewService(store Store, gen Generator, send Sender) *Service {
	return &Service{store: store, gen: gen, send: send}
}

// Run pushes one recommendation to every user with a complete profile.
func (s *Service) Run(ctx context.Context) error {
	userIDs, err := s.store.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("recommend: list users: %w", err)
	}

	var pushed, skipped, failed int
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch err := s.pushOne(ctx, userID); {
		case err == nil:
			pushed++
		case errors.Is(err, errIncomplete):
			skipped++
		default:
			failed++
			logger.Warn(ctx, "recommend", "push.user",
				slog.String("status", "fail"),
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
	}

	logger.Info(ctx, "recommend", "push.done",
		slog.Int("recipients", len(userIDs)),
		slog.Int("sent", pushed),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
	)
	return nil
}

var errIncomplete = errors.New("profile incomplete")

func (s *Service) pushOne(ctx context.Context, userID int64) error {
	profile, err := s.store.Profile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if !profile.Complete() {
		return errIncomplete
	}

	text, err := s.gen.Recommend(ctx, profile, "")
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := s.send.Send(ctx, userID, pushHeader+text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := s.store.AddRecommendation(ctx, userID, text); err != nil {
		logger.Warn(ctx, "recommend", "push.log",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
	return nil
}
