package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu       sync.Mutex
	sent     []int64
	failFor  map[int64]bool
	blockFor map[int64]time.Duration
}

func (s *recordingSender) Send(ctx context.Context, userID int64, _ string) error {
	if d, ok := s.blockFor[userID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.failFor[userID] {
		return errors.New("blocked by recipient")
	}
	s.mu.Lock()
	s.sent = append(s.sent, userID)
	s.mu.Unlock()
	return nil
}

func TestDispatchAllSucceed(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Options{Concurrency: 4})

	sent, total := d.Dispatch(context.Background(), "hi", []int64{1, 2, 3, 4, 5})

	require.Equal(t, 5, sent)
	require.Equal(t, 5, total)
	require.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, sender.sent)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	sender := &recordingSender{failFor: map[int64]bool{2: true}}
	d := NewDispatcher(sender, Options{Concurrency: 1})

	sent, total := d.Dispatch(context.Background(), "hi", []int64{1, 2, 3})

	require.Equal(t, 2, sent)
	require.Equal(t, 3, total)
	require.ElementsMatch(t, []int64{1, 3}, sender.sent, "recipients before and after the failure are attempted")
}

func TestDispatchCountsWithManyFailures(t *testing.T) {
	sender := &recordingSender{failFor: map[int64]bool{1: true, 3: true, 5: true}}
	d := NewDispatcher(sender, Options{Concurrency: 8})

	recipients := []int64{1, 2, 3, 4, 5, 6}
	sent, total := d.Dispatch(context.Background(), "hi", recipients)

	require.Equal(t, len(recipients)-3, sent)
	require.Equal(t, len(recipients), total)
}

func TestDispatchEmptyRecipientList(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, Options{})

	sent, total := d.Dispatch(context.Background(), "hi", nil)

	require.Zero(t, sent)
	require.Zero(t, total)
}

type flakySender struct {
	mu       sync.Mutex
	attempts map[int64]int
	sent     []int64
}

func (s *flakySender) Send(_ context.Context, userID int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[userID]++
	if s.attempts[userID] == 1 {
		return context.DeadlineExceeded
	}
	s.sent = append(s.sent, userID)
	return nil
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	sender := &flakySender{attempts: make(map[int64]int)}
	d := NewDispatcher(sender, Options{Concurrency: 2, RetryTransient: true})

	sent, total := d.Dispatch(context.Background(), "hi", []int64{1, 2})

	require.Equal(t, 2, sent)
	require.Equal(t, 2, total)
	require.Equal(t, 2, sender.attempts[1])
}

func TestDispatchDoesNotRetryWhenDisabled(t *testing.T) {
	sender := &flakySender{attempts: make(map[int64]int)}
	d := NewDispatcher(sender, Options{Concurrency: 2})

	sent, total := d.Dispatch(context.Background(), "hi", []int64{1, 2})

	require.Zero(t, sent)
	require.Equal(t, 2, total)
	require.Equal(t, 1, sender.attempts[1])
}

func TestDispatchSlowRecipientTimesOut(t *testing.T) {
	sender := &recordingSender{blockFor: map[int64]time.Duration{2: time.Second}}
	d := NewDispatcher(sender, Options{Concurrency: 4, SendTimeout: 20 * time.Millisecond})

	start := time.Now()
	sent, total := d.Dispatch(context.Background(), "hi", []int64{1, 2, 3})

	require.Equal(t, 2, sent)
	require.Equal(t, 3, total)
	require.Less(t, time.Since(start), time.Second, "a slow recipient must not stall the dispatch")
}
