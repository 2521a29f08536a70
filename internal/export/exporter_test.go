package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/m3rciful/aromabot/internal/domain"
)

type stubSource struct {
	stats    domain.FeedbackStats
	records  []domain.FeedbackRecord
	statsErr error
}

func (s *stubSource) Stats(context.Context) (domain.FeedbackStats, error) {
	return s.stats, s.statsErr
}

func (s *stubSource) Feedback(context.Context) ([]domain.FeedbackRecord, error) {
	return s.records, nil
}

func TestRunWritesWorkbook(t *testing.T) {
	collected := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	source := &stubSource{
		stats: domain.FeedbackStats{
			Users:        12,
			Responses:    3,
			AverageScore: 4.33,
			ScoreCounts:  map[int]int{4: 1, 5: 2},
			CollectedAt:  collected,
		},
		records: []domain.FeedbackRecord{
			{Score: 5, CreatedAt: collected},
			{Score: 4, CreatedAt: collected.Add(time.Minute)},
			{Score: 5, CreatedAt: collected.Add(2 * time.Minute)},
		},
	}

	e, err := NewExporter(source, t.TempDir())
	require.NoError(t, err)

	path, err := e.Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	users, err := f.GetCellValue(statsSheet, "B2")
	require.NoError(t, err)
	require.Equal(t, "12", users)

	header, err := f.GetCellValue(scoresSheet, "A1")
	require.NoError(t, err)
	require.Equal(t, "Оценка", header)

	first, err := f.GetCellValue(scoresSheet, "A2")
	require.NoError(t, err)
	require.Equal(t, "5", first)

	rows, err := f.GetRows(scoresSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus one row per score")
}

func TestRunFilenamesAreUnique(t *testing.T) {
	source := &stubSource{stats: domain.FeedbackStats{CollectedAt: time.Now()}}

	e, err := NewExporter(source, t.TempDir())
	require.NoError(t, err)

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	second, err := e.Run(context.Background())
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestRunPropagatesSourceError(t *testing.T) {
	source := &stubSource{statsErr: errors.New("db down")}

	e, err := NewExporter(source, t.TempDir())
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.Error(t, err)
}
