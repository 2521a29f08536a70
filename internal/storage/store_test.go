package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/aromabot/internal/secrets"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cipher, err := secrets.New("unit-test-master-key")
	require.NoError(t, err)
	return New(nil, cipher)
}

func TestDecodeProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	categories := []string{"Цветочные", "Древесные", "Цитрусовые"}

	row := userRow{
		UserKey:    s.cipher.EncryptID(42),
		Age:        s.cipher.Encrypt("25-34"),
		Gender:     s.cipher.Encrypt("Женский"),
		Categories: s.cipher.Encrypt(strings.Join(categories, categorySeparator)),
		Location:   s.cipher.Encrypt("Санкт-Петербург"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	p, err := s.decodeProfile(42, row)
	require.NoError(t, err)
	require.Equal(t, int64(42), p.UserID)
	require.Equal(t, "25-34", p.Age)
	require.Equal(t, "Женский", p.Gender)
	require.Equal(t, categories, p.Categories)
	require.Equal(t, "Санкт-Петербург", p.Location)
	require.Equal(t, now, p.CreatedAt)
	require.True(t, p.Complete())
}

func TestDecodeProfilePartialRow(t *testing.T) {
	s := newTestStore(t)

	p, err := s.decodeProfile(7, userRow{
		UserKey: s.cipher.EncryptID(7),
		Age:     s.cipher.Encrypt("18-24"),
	})
	require.NoError(t, err)
	require.Equal(t, "18-24", p.Age)
	require.Empty(t, p.Gender)
	require.Empty(t, p.Categories)
	require.False(t, p.Complete(), "half-answered survey is not a complete profile")
}

func TestDecodeProfileRejectsForeignCiphertext(t *testing.T) {
	s := newTestStore(t)

	other, err := secrets.New("a-different-master-key")
	require.NoError(t, err)

	_, err = s.decodeProfile(7, userRow{
		UserKey: s.cipher.EncryptID(7),
		Age:     other.Encrypt("18-24"),
	})
	require.Error(t, err, "fields written under another key must not decode silently")
}

func TestCategorySeparatorSurvivesCommasInNames(t *testing.T) {
	s := newTestStore(t)
	categories := []string{"Цветочные, сладкие", "Древесные"}

	row := userRow{
		UserKey:    s.cipher.EncryptID(1),
		Categories: s.cipher.Encrypt(strings.Join(categories, categorySeparator)),
	}

	p, err := s.decodeProfile(1, row)
	require.NoError(t, err)
	require.Equal(t, categories, p.Categories)
}
