package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"paper-review/models"
)

// PaperRepository abstrahiert die Paper-Collection.
type PaperRepository interface {
	Insert(ctx context.Context, p *models.Paper) (primitive.ObjectID, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Paper, error)
	FindAll(ctx context.Context) ([]models.Paper, error)
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.Paper, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// EvaluationRepository abstrahiert die Evaluation-Collection.
type EvaluationRepository interface {
	Insert(ctx context.Context, e *models.Evaluation) (primitive.ObjectID, error)
	FindByPaper(ctx context.Context, paperID primitive.ObjectID) ([]models.Evaluation, error)
	// FindByPapers mit leerer ID-Liste liefert alle Evaluationen.
	FindByPapers(ctx context.Context, paperIDs []primitive.ObjectID) ([]models.Evaluation, error)
	CountAll(ctx context.Context) (int64, error)
	DeleteByPaper(ctx context.Context, paperID primitive.ObjectID) (int64, error)
}

// ReviewerLedger ist das Duplikat-Ledger: pro Email die Menge der bereits
// bewerteten Paper-IDs.
type ReviewerLedger interface {
	HasEvaluated(ctx context.Context, email string, paperID primitive.ObjectID) (bool, error)
	// MarkEvaluated ist ein atomares add-if-absent. false bedeutet: die
	// Paar-Mitgliedschaft bestand bereits, es wurde nichts geändert.
	MarkEvaluated(ctx context.Context, email string, paperID primitive.ObjectID) (bool, error)
}

// BlobStore wird nur für das Aufräumen beim Paper-Löschen gebraucht.
type BlobStore interface {
	Delete(ctx context.Context, key string) error
}

// Scoring ist die Kern-Engine: Submission-Guard, Aggregation und Analytics.
// Alle Abhängigkeiten werden explizit injiziert, es gibt keinen ambienten
// Verbindungs-Singleton.
type Scoring struct {
	Papers      PaperRepository
	Evaluations EvaluationRepository
	Ledger      ReviewerLedger
	Blobs       BlobStore
	Logger      *zap.Logger
}

// NewScoring erstellt eine neue Instanz der Scoring-Engine.
func NewScoring(papers PaperRepository, evals EvaluationRepository, ledger ReviewerLedger, blobs BlobStore, logger *zap.Logger) *Scoring {
	return &Scoring{
		Papers:      papers,
		Evaluations: evals,
		Ledger:      ledger,
		Blobs:       blobs,
		Logger:      logger,
	}
}

// SubmissionInput ist die Eingabe für eine Evaluations-Abgabe. EvaluatorEmail
// ist optional; ohne Email gibt es keinen Duplikatschutz.
type SubmissionInput struct {
	PaperID        string
	Scores         models.Scores
	Comments       string
	EvaluatorEmail string
}

// SubmitEvaluation legt eine anonyme Evaluation an. Das Ledger wird VOR dem
// Insert mit einem einzigen bedingten Update beansprucht, damit zwei
// gleichzeitige Abgaben desselben Bewerters nicht beide durchkommen.
func (s *Scoring) SubmitEvaluation(ctx context.Context, in SubmissionInput) (primitive.ObjectID, error) {
	if in.PaperID == "" {
		return primitive.NilObjectID, fmt.Errorf("%w: paperId is required", ErrValidation)
	}
	paperID, err := primitive.ObjectIDFromHex(in.PaperID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid paperId", ErrValidation)
	}
	if err := validateScores(in.Scores); err != nil {
		return primitive.NilObjectID, err
	}

	if _, err := s.Papers.FindByID(ctx, paperID); err != nil {
		if err == ErrNotFound {
			return primitive.NilObjectID, fmt.Errorf("%w: paper %s", ErrNotFound, in.PaperID)
		}
		return primitive.NilObjectID, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if in.EvaluatorEmail != "" {
		marked, err := s.Ledger.MarkEvaluated(ctx, in.EvaluatorEmail, paperID)
		if err != nil {
			return primitive.NilObjectID, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if !marked {
			return primitive.NilObjectID, ErrDuplicateEvaluation
		}
	}

	eval := &models.Evaluation{
		CreatedAt: time.Now().UTC(),
		PaperID:   paperID,
		Scores:    in.Scores,
		Comments:  in.Comments,
	}
	id, err := s.Evaluations.Insert(ctx, eval)
	if err != nil {
		// Das Ledger ist an dieser Stelle bereits beansprucht. Wir rollen
		// nicht zurück; der Bewerter muss sich bei einem I/O-Fehler melden.
		s.Logger.Error("Evaluation insert failed after ledger claim",
			zap.String("paper_id", in.PaperID), zap.Error(err))
		return primitive.NilObjectID, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.Logger.Info("Evaluation submitted", zap.String("paper_id", in.PaperID))
	return id, nil
}

// HasEvaluated prüft die Ledger-Mitgliedschaft für ein (Email, Paper)-Paar.
func (s *Scoring) HasEvaluated(ctx context.Context, email, paperID string) (bool, error) {
	if email == "" || paperID == "" {
		return false, nil
	}
	id, err := primitive.ObjectIDFromHex(paperID)
	if err != nil {
		return false, fmt.Errorf("%w: invalid paperId", ErrValidation)
	}
	ok, err := s.Ledger.HasEvaluated(ctx, email, id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return ok, nil
}

// PaperAggregate ist das Ergebnis der Pro-Paper-Aggregation.
type PaperAggregate struct {
	Count    int                `json:"count"`
	Averages models.Scores      `json:"averages"`
	Status   models.PaperStatus `json:"status"`
}

// AggregateForPaper berechnet das arithmetische Mittel je Dimension über alle
// Evaluationen eines Papers. Null Evaluationen sind ein gültiges Ergebnis:
// alle Mittelwerte 0, Status pending.
func (s *Scoring) AggregateForPaper(ctx context.Context, paperID string) (*PaperAggregate, error) {
	id, err := primitive.ObjectIDFromHex(paperID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid paperId", ErrValidation)
	}
	if _, err := s.Papers.FindByID(ctx, id); err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: paper %s", ErrNotFound, paperID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	evals, err := s.Evaluations.FindByPaper(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &PaperAggregate{
		Count:    len(evals),
		Averages: averageScores(evals),
		Status:   models.DeriveStatus(len(evals)),
	}, nil
}

// AnalyticsFilter filtert die Pro-Paper-Liste der globalen Analytics.
// Year 0 bzw. Status ""/"all" bedeutet: kein Filter.
type AnalyticsFilter struct {
	Year   int
	Status string
}

// PaperAnalytics ist eine Zeile der Pro-Paper-Analytics.
type PaperAnalytics struct {
	PaperID         string             `json:"paperId"`
	PaperTitle      string             `json:"paperTitle"`
	PaperAuthors    []string           `json:"paperAuthors"`
	EvaluationCount int                `json:"evaluationCount"`
	Status          models.PaperStatus `json:"status"`
	AverageScores   models.Scores      `json:"averageScores"`
	EvaluationYear  int                `json:"evaluationYear"`
}

// GlobalAggregate ist das Ergebnis der papierübergreifenden Analytics.
// Papers/Completed/Pending respektieren den Filter; TotalEvaluations,
// ScoreDistribution und Average sind absichtlich systemweit (globale
// Baseline, unabhängig vom Filter).
type GlobalAggregate struct {
	Papers            []PaperAnalytics  `json:"papers"`
	TotalPapers       int               `json:"totalPapers"`
	CompletedPapers   int               `json:"completedPapers"`
	PendingPapers     int               `json:"pendingPapers"`
	TotalEvaluations  int64             `json:"totalEvaluations"`
	ScoreDistribution ScoreDistribution `json:"scoreDistribution"`
	Average           models.Scores     `json:"average"`
}

// AggregateAcrossPapers berechnet die globale Analytics-Sicht.
func (s *Scoring) AggregateAcrossPapers(ctx context.Context, filter AnalyticsFilter) (*GlobalAggregate, error) {
	papers, err := s.Papers.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	rows := make([]PaperAnalytics, 0, len(papers))
	for _, paper := range papers {
		if filter.Year > 0 && paper.CreatedAt.Year() != filter.Year {
			continue
		}
		evals, err := s.Evaluations.FindByPaper(ctx, paper.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		status := models.DeriveStatus(len(evals))
		if filter.Status != "" && filter.Status != "all" && string(status) != filter.Status {
			continue
		}
		rows = append(rows, PaperAnalytics{
			PaperID:         paper.ID.Hex(),
			PaperTitle:      paper.Title,
			PaperAuthors:    authorsOrEmpty(paper.Authors),
			EvaluationCount: len(evals),
			Status:          status,
			AverageScores:   averageScores(evals),
			EvaluationYear:  paper.CreatedAt.Year(),
		})
	}

	completed := 0
	for _, r := range rows {
		if r.Status == models.StatusCompleted {
			completed++
		}
	}

	allEvals, err := s.Evaluations.FindByPapers(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &GlobalAggregate{
		Papers:            rows,
		TotalPapers:       len(rows),
		CompletedPapers:   completed,
		PendingPapers:     len(rows) - completed,
		TotalEvaluations:  int64(len(allEvals)),
		ScoreDistribution: distributionOf(allEvals),
		Average:           averageScores(allEvals),
	}, nil
}

// StatsReport ist die Dashboard-Zusammenfassung ohne Filter.
type StatsReport struct {
	TotalEvaluations  int64             `json:"totalEvaluations"`
	TotalPapers       int               `json:"totalPapers"`
	CompletedPapers   int               `json:"completedPapers"`
	PendingPapers     int               `json:"pendingPapers"`
	PaperStats        []PaperAnalytics  `json:"paperStats"`
	ScoreDistribution ScoreDistribution `json:"scoreDistribution"`
}

// Stats berechnet die ungefilterte Dashboard-Statistik.
func (s *Scoring) Stats(ctx context.Context) (*StatsReport, error) {
	total, err := s.Evaluations.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	global, err := s.AggregateAcrossPapers(ctx, AnalyticsFilter{})
	if err != nil {
		return nil, err
	}
	return &StatsReport{
		TotalEvaluations:  total,
		TotalPapers:       global.TotalPapers,
		CompletedPapers:   global.CompletedPapers,
		PendingPapers:     global.PendingPapers,
		PaperStats:        global.Papers,
		ScoreDistribution: global.ScoreDistribution,
	}, nil
}

// DetailQuery steuert die detaillierte Evaluationsliste.
type DetailQuery struct {
	// PaperIDs leer = alle Paper.
	PaperIDs []string
	// SortBy: createdAt, score, overall, originality, methodology, clarity, significance.
	SortBy string
	// SortOrder: "1" aufsteigend, alles andere absteigend (Default).
	SortOrder string
	// MinScore filtert auf den Fünf-Wege-Durchschnitt.
	MinScore float64
}

// DetailedEvaluation ist eine Zeile der Evaluationsliste. EvaluatorNumber ist
// eine rein positionale, pro Abfrage neu vergebene anonyme Ordnungszahl.
type DetailedEvaluation struct {
	ID              string        `json:"id"`
	PaperID         string        `json:"paperId"`
	PaperTitle      string        `json:"paperTitle"`
	PaperAuthors    []string      `json:"paperAuthors"`
	EvaluatorNumber int           `json:"evaluatorNumber"`
	Scores          models.Scores `json:"scores"`
	Comments        string        `json:"comments"`
	AverageScore    float64       `json:"averageScore"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// DetailedEvaluations liefert die sortier- und filterbare Evaluationsliste.
func (s *Scoring) DetailedEvaluations(ctx context.Context, q DetailQuery) ([]DetailedEvaluation, error) {
	var ids []primitive.ObjectID
	for _, raw := range q.PaperIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid paperId %q", ErrValidation, raw)
		}
		ids = append(ids, id)
	}

	evals, err := s.Evaluations.FindByPapers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	papers, err := s.Papers.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	byID := make(map[primitive.ObjectID]models.Paper, len(papers))
	for _, p := range papers {
		byID[p.ID] = p
	}

	if q.MinScore > 0 {
		kept := evals[:0]
		for _, e := range evals {
			if e.Scores.Blended() >= q.MinScore {
				kept = append(kept, e)
			}
		}
		evals = kept
	}

	sortEvaluations(evals, q.SortBy, q.SortOrder)

	rows := make([]DetailedEvaluation, 0, len(evals))
	for i, e := range evals {
		paper := byID[e.PaperID]
		rows = append(rows, DetailedEvaluation{
			ID:              e.ID.Hex(),
			PaperID:         e.PaperID.Hex(),
			PaperTitle:      paper.Title,
			PaperAuthors:    authorsOrEmpty(paper.Authors),
			EvaluatorNumber: i + 1,
			Scores:          e.Scores,
			Comments:        e.Comments,
			AverageScore:    round2(e.Scores.Blended()),
			CreatedAt:       e.CreatedAt,
		})
	}
	return rows, nil
}

// DeletePaper entfernt ein Paper samt seiner Evaluationen. Das Löschen des
// Blobs ist best-effort: Fehler werden nur geloggt.
func (s *Scoring) DeletePaper(ctx context.Context, paperID string) error {
	id, err := primitive.ObjectIDFromHex(paperID)
	if err != nil {
		return fmt.Errorf("%w: invalid paperId", ErrValidation)
	}
	paper, err := s.Papers.FindByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return fmt.Errorf("%w: paper %s", ErrNotFound, paperID)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.Papers.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	removed, err := s.Evaluations.DeleteByPaper(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if paper.FileKey != "" && s.Blobs != nil {
		if err := s.Blobs.Delete(ctx, paper.FileKey); err != nil {
			s.Logger.Warn("Blob cleanup failed",
				zap.String("paper_id", paperID), zap.String("file_key", paper.FileKey), zap.Error(err))
		}
	}
	s.Logger.Info("Paper deleted", zap.String("paper_id", paperID), zap.Int64("evaluations_removed", removed))
	return nil
}

// ScoreDistribution: je Dimension fünf Buckets für die Score-Werte 1..5.
// Werte von 0 oder außerhalb des Bereichs fallen stillschweigend heraus.
type ScoreDistribution struct {
	Originality  [5]int `json:"originality"`
	Methodology  [5]int `json:"methodology"`
	Clarity      [5]int `json:"clarity"`
	Significance [5]int `json:"significance"`
	Overall      [5]int `json:"overall"`
}

func (d *ScoreDistribution) add(s models.Scores) {
	bump(&d.Originality, s.Originality)
	bump(&d.Methodology, s.Methodology)
	bump(&d.Clarity, s.Clarity)
	bump(&d.Significance, s.Significance)
	bump(&d.Overall, s.Overall)
}

func bump(buckets *[5]int, v float64) {
	if v < 1 || v > 5 || v != math.Trunc(v) {
		return
	}
	buckets[int(v)-1]++
}

func distributionOf(evals []models.Evaluation) ScoreDistribution {
	var d ScoreDistribution
	for _, e := range evals {
		d.add(e.Scores)
	}
	return d
}

// averageScores mittelt jede Dimension über alle Evaluationen (ungewichtet)
// und rundet auf 2 Nachkommastellen. Leere Eingabe ergibt lauter Nullen.
func averageScores(evals []models.Evaluation) models.Scores {
	n := float64(len(evals))
	if n == 0 {
		return models.Scores{}
	}
	var sum models.Scores
	for _, e := range evals {
		sum.Originality += e.Scores.Originality
		sum.Methodology += e.Scores.Methodology
		sum.Clarity += e.Scores.Clarity
		sum.Significance += e.Scores.Significance
		sum.Overall += e.Scores.Overall
	}
	return models.Scores{
		Originality:  round2(sum.Originality / n),
		Methodology:  round2(sum.Methodology / n),
		Clarity:      round2(sum.Clarity / n),
		Significance: round2(sum.Significance / n),
		Overall:      round2(sum.Overall / n),
	}
}

func sortEvaluations(evals []models.Evaluation, sortBy, sortOrder string) {
	asc := sortOrder == "1" || sortOrder == "asc"
	key := sortBy
	if key == "" {
		key = "createdAt"
	}
	if key == "score" {
		key = "overall"
	}
	sort.SliceStable(evals, func(i, j int) bool {
		var less bool
		if key == "createdAt" {
			less = evals[i].CreatedAt.Before(evals[j].CreatedAt)
		} else {
			a, _ := evals[i].Scores.Dimension(key)
			b, _ := evals[j].Scores.Dimension(key)
			less = a < b
		}
		if asc {
			return less
		}
		return !less && !equalKey(evals[i], evals[j], key)
	})
}

func equalKey(a, b models.Evaluation, key string) bool {
	if key == "createdAt" {
		return a.CreatedAt.Equal(b.CreatedAt)
	}
	av, _ := a.Scores.Dimension(key)
	bv, _ := b.Scores.Dimension(key)
	return av == bv
}

func validateScores(s models.Scores) error {
	for _, name := range models.Dimensions {
		v, _ := s.Dimension(name)
		if v < 0 || v > 5 {
			return fmt.Errorf("%w: score %s out of range [0,5]", ErrValidation, name)
		}
	}
	return nil
}

func authorsOrEmpty(authors []string) []string {
	if authors == nil {
		return []string{}
	}
	return authors
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
