// Package domain declares the records shared between the conversation
// engine, the persistent store, and the export/reporting layer.
package domain

import "time"

// Profile holds survey answers for one user. Field values are plaintext
// inside the process; the storage layer encrypts them before they are
// written and decrypts them on read.
type Profile struct {
	UserID     int64
	Age        string
	Gender     string
	Categories []string
	Location   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Complete reports whether every survey field has been answered.
func (p Profile) Complete() bool {
	return p.Age != "" && p.Gender != "" && len(p.Categories) > 0 && p.Location != ""
}

// FeedbackRecord is one score submitted after a recommendation. Append-only.
type FeedbackRecord struct {
	UserID    int64
	Score     int
	CreatedAt time.Time
}

// SupportRequest is a free-form help message, optionally with a photo
// reference from the messaging channel. Append-only, listed most-recent-first.
type SupportRequest struct {
	ID        int64
	UserID    int64
	Message   string
	PhotoID   string
	CreatedAt time.Time
}

// Recommendation is a generated text kept for analytics. Append-only.
type Recommendation struct {
	UserID    int64
	Text      string
	CreatedAt time.Time
}

// FeedbackStats aggregates scores for the operator statistics view
// and the periodic analytics export.
type FeedbackStats struct {
	Users        int
	Responses    int
	AverageScore float64
	ScoreCounts  map[int]int
	SupportOpen  int
	Recommended  int
	CollectedAt  time.Time
}
