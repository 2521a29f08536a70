package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubSender struct {
	sent    []int64
	failFor map[int64]bool
}

func (s *stubSender) Send(_ context.Context, userID int64, _ string) error {
	if s.failFor[userID] {
		return errors.New("forbidden")
	}
	s.sent = append(s.sent, userID)
	return nil
}

func TestNotifyReachesAllOperators(t *testing.T) {
	sender := &stubSender{}
	svc := NewService(sender, []int64{10, 20, 30})

	svc.Notify(context.Background(), "новое обращение")

	require.Equal(t, []int64{10, 20, 30}, sender.sent)
}

func TestNotifyIsolatesFailures(t *testing.T) {
	sender := &stubSender{failFor: map[int64]bool{20: true}}
	svc := NewService(sender, []int64{10, 20, 30})

	svc.Notify(context.Background(), "новое обращение")

	require.Equal(t, []int64{10, 30}, sender.sent, "operators after a failed one are still attempted")
}

func TestNotifyWithNoOperators(t *testing.T) {
	sender := &stubSender{}
	svc := NewService(sender, nil)

	svc.Notify(context.Background(), "сообщение в пустоту")

	require.Empty(t, sender.sent)
}
