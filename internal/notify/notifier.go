// Package notify alerts the configured operator set. Delivery is
// fire-and-forget with the same per-recipient failure isolation as the
// broadcast dispatcher, but without an aggregate result.
package notify

import (
	"context"

	"log/slog"

	"github.com/m3rciful/aromabot/core/logger"
)

// Sender delivers one message over the messaging channel.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Service fans alerts out to operators.
type Service struct {
	sender    Sender
	operators []int64
}

// NewService captures the operator set at construction time.
func NewService(sender Sender, operators []int64) *Service {
	return &Service{sender: sender, operators: append([]int64(nil), operators...)}
}

// Notify attempts delivery to every operator. Failures are logged and
// swallowed; a dead operator account never blocks the caller's flow.
func (s *Service) Notify(ctx context.Context, text string) {
	for _, operatorID := range s.operators {
		if err := s.sender.Send(ctx, operatorID, text); err != nil {
			logger.Warn(ctx, "notify", "operator.send",
				slog.String("status", "fail"),
				slog.Int64("user_id", operatorID),
				slog.String("err", err.Error()),
			)
		}
	}
}
