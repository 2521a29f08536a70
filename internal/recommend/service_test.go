package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/aromabot/internal/domain"
)

type fakeStore struct {
	users    []int64
	profiles map[int64]domain.Profile
	logged   []int64
}

func (f *fakeStore) UserIDs(context.Context) ([]int64, error) { return f.users, nil }

func (f *fakeStore) Profile(_ context.Context, userID int64) (domain.Profile, error) {
	return f.profiles[userID], nil
}

func (f *fakeStore) AddRecommendation(_ context.Context, userID int64, _ string) error {
	f.logged = append(f.logged, userID)
	return nil
}

type fakeGen struct {
	failFor map[int64]bool
	calls   int
}

func (f *fakeGen) Recommend(_ context.Context, p domain.Profile, _ string) (string, error) {
	f.calls++
	if f.failFor[p.UserID] {
		return "", errors.New("quota exceeded")
	}
	return "совет для " + p.Age, nil
}

type fakeSender struct {
	sent []int64
}

func (f *fakeSender) Send(_ context.Context, userID int64, _ string) error {
	f.sent = append(f.sent, userID)
	return nil
}

func complete(userID int64) domain.Profile {
	return domain.Profile{
		UserID:     userID,
		Age:        "25-34",
		Gender:     "Женский",
		Categories: []string{"Цветочные"},
		Location:   "Москва",
	}
}

func TestRunSkipsIncompleteProfiles(t *testing.T) {
	store := &fakeStore{
		users: []int64{1, 2, 3},
		profiles: map[int64]domain.Profile{
			1: complete(1),
			2: {UserID: 2, Age: "18-24"}, // survey never finished
			3: complete(3),
		},
	}
	gen := &fakeGen{}
	sender := &fakeSender{}

	err := NewService(store, gen, sender).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int64{1, 3}, sender.sent)
	require.Equal(t, []int64{1, 3}, store.logged)
	require.Equal(t, 2, gen.calls)
}

func TestRunIsolatesGenerationFailures(t *testing.T) {
	store := &fakeStore{
		users: []int64{1, 2, 3},
		profiles: map[int64]domain.Profile{
			1: complete(1), 2: complete(2), 3: complete(3),
		},
	}
	gen := &fakeGen{failFor: map[int64]bool{2: true}}
	sender := &fakeSender{}

	err := NewService(store, gen, sender).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int64{1, 3}, sender.sent, "a failed generation must not stop the walk")
	require.NotContains(t, store.logged, int64(2), "failed generations are never logged")
}

func TestRunStopsOnCancellation(t *testing.T) {
	store := &fakeStore{
		users:    []int64{1, 2},
		profiles: map[int64]domain.Profile{1: complete(1), 2: complete(2)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewService(store, &fakeGen{}, &fakeSender{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
