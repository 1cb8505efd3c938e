package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-review/models"
)

func TestBuildExport(t *testing.T) {
	ctx := context.Background()
	s, papers, _, _, _ := newTestScoring()

	evaluated := papers.add("Evaluated", []string{"Ada", "Grace"}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	papers.add("Unevaluated", nil, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	papers.add("Old", nil, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := submit(t, s, evaluated, "a@x.com", models.Scores{Originality: 5, Methodology: 4, Clarity: 5, Significance: 4, Overall: 5})
	require.NoError(t, err)
	_, err = submit(t, s, evaluated, "b@x.com", models.Scores{Originality: 3, Methodology: 3, Clarity: 4, Significance: 3, Overall: 3})
	require.NoError(t, err)

	t.Run("year filter", func(t *testing.T) {
		entries, err := s.BuildExport(ctx, ExportFilter{Year: 2025})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.NotEqual(t, "Old", e.Title)
		}
	})

	t.Run("paper filter", func(t *testing.T) {
		entries, err := s.BuildExport(ctx, ExportFilter{PaperIDs: []string{evaluated.Hex()}})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Evaluated", entries[0].Title)
		assert.Equal(t, "Ada; Grace", entries[0].Authors)
		assert.Equal(t, 2, entries[0].EvaluationCount)
		assert.Equal(t, models.StatusCompleted, entries[0].Status)
		assert.Equal(t, 4.0, entries[0].AverageScores.Originality)
	})

	t.Run("entries carry only aggregates and buckets", func(t *testing.T) {
		entries, err := s.BuildExport(ctx, ExportFilter{PaperIDs: []string{evaluated.Hex()}})
		require.NoError(t, err)
		dist := entries[0].ScoreDistribution
		assert.Equal(t, 1, dist.Originality[4]) // eine 5
		assert.Equal(t, 1, dist.Originality[2]) // eine 3
	})

	t.Run("invalid paper id", func(t *testing.T) {
		_, err := s.BuildExport(ctx, ExportFilter{PaperIDs: []string{"garbage"}})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestWriteCSV(t *testing.T) {
	entries := []ExportEntry{
		{
			PaperID:         "abc",
			Title:           `Quotes "inside" title`,
			Authors:         "Ada; Grace",
			EvaluationCount: 2,
			Status:          models.StatusCompleted,
			AverageScores:   models.Scores{Originality: 4, Methodology: 3.5, Clarity: 4.5, Significance: 3.5, Overall: 4},
		},
		{
			PaperID:         "def",
			Title:           "Never evaluated",
			EvaluationCount: 0,
			Status:          models.StatusPending,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	// Header plus eine Zeile: Paper ohne Evaluationen werden übersprungen.
	require.Len(t, records, 2)
	assert.Equal(t, "Paper ID", records[0][0])
	assert.Equal(t, []string{"abc", `Quotes "inside" title`, "Ada; Grace", "2", "4.00", "3.50", "4.50", "3.50", "4.00"}, records[1])
}
