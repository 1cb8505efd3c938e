package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"paper-review/models"
)

// ExportFilter schränkt den Export ein. Year 0 und leere PaperIDs = alles.
type ExportFilter struct {
	Year     int
	PaperIDs []string
}

// ExportEntry ist eine Export-Zeile pro Paper. Der Export enthält
// ausschließlich Paper-Aggregate und Bucket-Zählungen, nie Daten, die einen
// einzelnen Bewerter identifizieren könnten.
type ExportEntry struct {
	PaperID           string            `json:"paperId"`
	Title             string            `json:"title"`
	Authors           string            `json:"authors"`
	Abstract          string            `json:"abstract"`
	EvaluationCount   int               `json:"evaluationCount"`
	Status            models.PaperStatus `json:"status"`
	AverageScores     models.Scores     `json:"averageScores"`
	ScoreDistribution ScoreDistribution `json:"scoreDistribution"`
}

// BuildExport berechnet die Export-Zeilen für alle (gefilterten) Paper.
func (s *Scoring) BuildExport(ctx context.Context, filter ExportFilter) ([]ExportEntry, error) {
	wanted := make(map[primitive.ObjectID]bool, len(filter.PaperIDs))
	for _, raw := range filter.PaperIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid paperId %q", ErrValidation, raw)
		}
		wanted[id] = true
	}

	papers, err := s.Papers.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	entries := make([]ExportEntry, 0, len(papers))
	for _, paper := range papers {
		if filter.Year > 0 && paper.CreatedAt.Year() != filter.Year {
			continue
		}
		if len(wanted) > 0 && !wanted[paper.ID] {
			continue
		}
		evals, err := s.Evaluations.FindByPaper(ctx, paper.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		entries = append(entries, ExportEntry{
			PaperID:           paper.ID.Hex(),
			Title:             paper.Title,
			Authors:           strings.Join(paper.Authors, "; "),
			Abstract:          paper.Abstract,
			EvaluationCount:   len(evals),
			Status:            models.DeriveStatus(len(evals)),
			AverageScores:     averageScores(evals),
			ScoreDistribution: distributionOf(evals),
		})
	}
	return entries, nil
}

// WriteCSV schreibt die Export-Zeilen als flache Tabelle. Paper ohne
// Evaluationen werden wie im Altbestand übersprungen.
func WriteCSV(w io.Writer, entries []ExportEntry) error {
	cw := csv.NewWriter(w)
	header := []string{
		"Paper ID", "Title", "Authors", "Evaluations Count",
		"Avg Originality", "Avg Methodology", "Avg Clarity", "Avg Significance", "Avg Overall",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		if e.EvaluationCount == 0 {
			continue
		}
		row := []string{
			e.PaperID,
			e.Title,
			e.Authors,
			strconv.Itoa(e.EvaluationCount),
			formatAvg(e.AverageScores.Originality),
			formatAvg(e.AverageScores.Methodology),
			formatAvg(e.AverageScores.Clarity),
			formatAvg(e.AverageScores.Significance),
			formatAvg(e.AverageScores.Overall),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatAvg(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
