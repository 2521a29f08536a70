// Package storage persists profiles, feedback, support requests, and
// generated recommendations in PostgreSQL. User identities and profile
// answers are encrypted before they leave the process; the encrypted
// identity doubles as the row key, which works because the cipher is
// deterministic.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"log/slog"

	"github.com/m3rciful/aromabot/core/logger"
	"github.com/m3rciful/aromabot/internal/domain"
	"github.com/m3rciful/aromabot/internal/secrets"
)

// ErrNotFound is returned when no profile exists for the user.
var ErrNotFound = errors.New("storage: not found")

const categorySeparator = "\x1f"

// Store wraps the database handle and the field cipher.
type Store struct {
	db     *sqlx.DB
	cipher *secrets.Cipher
}

// New returns a Store over the given handle.
func New(db *sqlx.DB, cipher *secrets.Cipher) *Store {
	return &Store{db: db, cipher: cipher}
}

type userRow struct {
	UserKey    string    `db:"user_key"`
	Age        string    `db:"age"`
	Gender     string    `db:"gender"`
	Categories string    `db:"categories"`
	Location   string    `db:"location"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type supportRow struct {
	ID        int64     `db:"id"`
	UserKey   string    `db:"user_key"`
	Message   string    `db:"message"`
	PhotoID   string    `db:"photo_id"`
	CreatedAt time.Time `db:"created_at"`
}

type feedbackRow struct {
	UserKey   string    `db:"user_key"`
	Score     int       `db:"score"`
	CreatedAt time.Time `db:"created_at"`
}

// EnsureUser creates an empty profile row on first contact. Existing
// rows are left untouched.
func (s *Store) EnsureUser(ctx context.Context, userID int64) error {
	key := s.cipher.EncryptID(userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_key) VALUES ($1) ON CONFLICT (user_key) DO NOTHING`, key)
	if err != nil {
		return fmt.Errorf("storage: ensure user: %w", err)
	}
	return nil
}

// Profile loads and decrypts the profile for the user.
func (s *Store) Profile(ctx context.Context, userID int64) (domain.Profile, error) {
	key := s.cipher.EncryptID(userID)
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM users WHERE user_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("storage: load profile: %w", err)
	}
	return s.decodeProfile(userID, row)
}

// SetAge stores the encrypted age bracket.
func (s *Store) SetAge(ctx context.Context, userID int64, age string) error {
	return s.setField(ctx, userID, "age", s.cipher.Encrypt(age))
}

// SetGender stores the encrypted gender value.
func (s *Store) SetGender(ctx context.Context, userID int64, gender string) error {
	return s.setField(ctx, userID, "gender", s.cipher.Encrypt(gender))
}

// SetCategories stores the encrypted category list as a single value.
func (s *Store) SetCategories(ctx context.Context, userID int64, categories []string) error {
	joined := strings.Join(categories, categorySeparator)
	return s.setField(ctx, userID, "categories", s.cipher.Encrypt(joined))
}

// SetLocation stores the encrypted location value.
func (s *Store) SetLocation(ctx context.Context, userID int64, location string) error {
	return s.setField(ctx, userID, "location", s.cipher.Encrypt(location))
}

func (s *Store) setField(ctx context.Context, userID int64, column, value string) error {
	key := s.cipher.EncryptID(userID)
	// column names come from a fixed internal set, never from input
	query := fmt.Sprintf(`UPDATE users SET %s = $1, updated_at = now() WHERE user_key = $2`, column)
	res, err := s.db.ExecContext(ctx, query, value, key)
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", column, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserIDs returns every known user identity. Rows whose key fails to
// decrypt (key rotation, manual edits) are skipped and logged.
func (s *Store) UserIDs(ctx context.Context) ([]int64, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, `SELECT user_key FROM users`); err != nil {
		return nil, fmt.Errorf("storage: list users: %w", err)
	}
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := s.cipher.DecryptID(key)
		if err != nil {
			logger.DB.Warn("undecryptable user key skipped",
				slog.String("event", "db.users"),
				slog.String("err", err.Error()),
			)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddFeedback appends one feedback record. Repeated submissions are
// independent rows, never an overwrite.
func (s *Store) AddFeedback(ctx context.Context, userID int64, score int) error {
	key := s.cipher.EncryptID(userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (user_key, score) VALUES ($1, $2)`, key, score)
	if err != nil {
		return fmt.Errorf("storage: add feedback: %w", err)
	}
	return nil
}

// AddSupportRequest appends one support request.
func (s *Store) AddSupportRequest(ctx context.Context, userID int64, message, photoID string) error {
	key := s.cipher.EncryptID(userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO support_requests (user_key, message, photo_id) VALUES ($1, $2, $3)`,
		key, s.cipher.Encrypt(message), photoID)
	if err != nil {
		return fmt.Errorf("storage: add support request: %w", err)
	}
	return nil
}

// SupportRequests lists recent support requests, newest first.
func (s *Store) SupportRequests(ctx context.Context, limit int) ([]domain.SupportRequest, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []supportRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM support_requests ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list support requests: %w", err)
	}
	out := make([]domain.SupportRequest, 0, len(rows))
	for _, row := range rows {
		userID, err := s.cipher.DecryptID(row.UserKey)
		if err != nil {
			continue
		}
		message, err := s.cipher.Decrypt(row.Message)
		if err != nil {
			continue
		}
		out = append(out, domain.SupportRequest{
			ID:        row.ID,
			UserID:    userID,
			Message:   message,
			PhotoID:   row.PhotoID,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// AddRecommendation records a generated text for analytics.
func (s *Store) AddRecommendation(ctx context.Context, userID int64, text string) error {
	key := s.cipher.EncryptID(userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recommendations (user_key, body) VALUES ($1, $2)`,
		key, s.cipher.Encrypt(text))
	if err != nil {
		return fmt.Errorf("storage: add recommendation: %w", err)
	}
	return nil
}

// Feedback returns all feedback records, oldest first, for export.
func (s *Store) Feedback(ctx context.Context) ([]domain.FeedbackRecord, error) {
	var rows []feedbackRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_key, score, created_at FROM feedback ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("storage: list feedback: %w", err)
	}
	out := make([]domain.FeedbackRecord, 0, len(rows))
	for _, row := range rows {
		userID, err := s.cipher.DecryptID(row.UserKey)
		if err != nil {
			continue
		}
		out = append(out, domain.FeedbackRecord{
			UserID:    userID,
			Score:     row.Score,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// Stats aggregates feedback and usage counters for the operator view
// and the periodic export.
func (s *Store) Stats(ctx context.Context) (domain.FeedbackStats, error) {
	stats := domain.FeedbackStats{
		ScoreCounts: make(map[int]int),
		CollectedAt: time.Now().UTC(),
	}

	if err := s.db.GetContext(ctx, &stats.Users, `SELECT COUNT(*) FROM users`); err != nil {
		return stats, fmt.Errorf("storage: count users: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.SupportOpen, `SELECT COUNT(*) FROM support_requests`); err != nil {
		return stats, fmt.Errorf("storage: count support requests: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.Recommended, `SELECT COUNT(*) FROM recommendations`); err != nil {
		return stats, fmt.Errorf("storage: count recommendations: %w", err)
	}

	var buckets []struct {
		Score int `db:"score"`
		Count int `db:"count"`
	}
	err := s.db.SelectContext(ctx, &buckets,
		`SELECT score, COUNT(*) AS count FROM feedback GROUP BY score`)
	if err != nil {
		return stats, fmt.Errorf("storage: aggregate feedback: %w", err)
	}
	total, sum := 0, 0
	for _, b := range buckets {
		stats.ScoreCounts[b.Score] = b.Count
		total += b.Count
		sum += b.Score * b.Count
	}
	stats.Responses = total
	if total > 0 {
		stats.AverageScore = float64(sum) / float64(total)
	}
	return stats, nil
}

func (s *Store) decodeProfile(userID int64, row userRow) (domain.Profile, error) {
	p := domain.Profile{
		UserID:    userID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	var err error
	if row.Age != "" {
		if p.Age, err = s.cipher.Decrypt(row.Age); err != nil {
			return p, fmt.Errorf("storage: decrypt age: %w", err)
		}
	}
	if row.Gender != "" {
		if p.Gender, err = s.cipher.Decrypt(row.Gender); err != nil {
			return p, fmt.Errorf("storage: decrypt gender: %w", err)
		}
	}
	if row.Categories != "" {
		joined, err := s.cipher.Decrypt(row.Categories)
		if err != nil {
			return p, fmt.Errorf("storage: decrypt categories: %w", err)
		}
		if joined != "" {
			p.Categories = strings.Split(joined, categorySeparator)
		}
	}
	if row.Location != "" {
		if p.Location, err = s.cipher.Decrypt(row.Location); err != nil {
			return p, fmt.Errorf("storage: decrypt location: %w", err)
		}
	}
	return p, nil
}
