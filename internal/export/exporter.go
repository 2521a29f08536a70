// Package export writes periodic analytics snapshots as xlsx workbooks.
// Workbooks carry aggregates and raw scores only; no profile fields or
// user identifiers leave the database through this path.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/m3rciful/aromabot/core/logger"
	"github.com/m3rciful/aromabot/internal/domain"
)

const (
	statsSheet  = "Статистика"
	scoresSheet = "Оценки"
)

// Source provides the data behind a snapshot.
type Source interface {
	Stats(ctx context.Context) (domain.FeedbackStats, error)
	Feedback(ctx context.Context) ([]domain.FeedbackRecord, error)
}

// Exporter writes snapshots into a fixed directory.
type Exporter struct {
	source Source
	dir    string
}

// NewExporter creates the target directory if needed.
func NewExporter(source Source, dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create dir: %w", err)
	}
	return &Exporter{source: source, dir: dir}, nil
}

// Run collects current stats and scores and writes one workbook.
// Returns the path of the written file.
func (e *Exporter) Run(ctx context.Context) (string, error) {
	stats, err := e.source.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("export: collect stats: %w", err)
	}
	records, err := e.source.Feedback(ctx)
	if err != nil {
		return "", fmt.Errorf("export: collect feedback: %w", err)
	}

	name := fmt.Sprintf("feedback_%s_%s.xlsx",
		stats.CollectedAt.Format("20060102_150405"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(e.dir, name)

	if err := writeWorkbook(path, stats, records); err != nil {
		return "", err
	}

	logger.Info(ctx, "export", "snapshot.written",
		slog.String("path", path),
		slog.Int("responses", stats.Responses),
		slog.Int("users", stats.Users),
	)
	return path, nil
}

func writeWorkbook(path string, stats domain.FeedbackStats, records []domain.FeedbackRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), statsSheet)
	if _, err := f.NewSheet(scoresSheet); err != nil {
		return fmt.Errorf("export: add sheet: %w", err)
	}

	if err := fillStats(f, stats); err != nil {
		return err
	}
	if err := fillScores(f, records); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: save %s: %w", path, err)
	}
	return nil
}

func fillStats(f *excelize.File, stats domain.FeedbackStats) error {
	rows := [][]any{
		{"Показатель", "Значение"},
		{"Пользователей", stats.Users},
		{"Оценок", stats.Responses},
		{"Средняя оценка", stats.AverageScore},
		{"Рекомендаций", stats.Recommended},
		{"Обращений в поддержку", stats.SupportOpen},
		{"Собрано", stats.CollectedAt.Format("2006-01-02 15:04:05")},
	}
	for score := 1; score <= 5; score++ {
		rows = append(rows, []any{
			fmt.Sprintf("Оценка %d", score),
			stats.ScoreCounts[score],
		})
	}
	return writeRows(f, statsSheet, rows)
}

func fillScores(f *excelize.File, records []domain.FeedbackRecord) error {
	rows := [][]any{{"Оценка", "Дата"}}
	for _, r := range records {
		rows = append(rows, []any{r.Score, r.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	return writeRows(f, scoresSheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("export: cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
	}
	return nil
}
