package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"paper-review/models"
)

// In-Memory-Fakes der Repositories für die Engine-Tests.

type fakePapers struct {
	mu     sync.Mutex
	papers map[primitive.ObjectID]models.Paper
}

func newFakePapers() *fakePapers {
	return &fakePapers{papers: make(map[primitive.ObjectID]models.Paper)}
}

func (f *fakePapers) add(title string, authors []string, createdAt time.Time) primitive.ObjectID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := primitive.NewObjectID()
	f.papers[id] = models.Paper{
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Title:     title,
		Authors:   authors,
		FileKey:   "papers/" + id.Hex() + ".pdf",
	}
	return id
}

func (f *fakePapers) Insert(_ context.Context, p *models.Paper) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = primitive.NewObjectID()
	f.papers[p.ID] = *p
	return p.ID, nil
}

func (f *fakePapers) FindByID(_ context.Context, id primitive.ObjectID) (*models.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.papers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (f *fakePapers) FindAll(_ context.Context) ([]models.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Paper, 0, len(f.papers))
	for _, p := range f.papers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePapers) Update(_ context.Context, id primitive.ObjectID, fields bson.M) (*models.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.papers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if v, ok := fields["title"].(string); ok {
		p.Title = v
	}
	if v, ok := fields["authors"].([]string); ok {
		p.Authors = v
	}
	if v, ok := fields["abstract"].(string); ok {
		p.Abstract = v
	}
	f.papers[id] = p
	return &p, nil
}

func (f *fakePapers) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.papers[id]; !ok {
		return ErrNotFound
	}
	delete(f.papers, id)
	return nil
}

type fakeEvaluations struct {
	mu    sync.Mutex
	evals []models.Evaluation
}

func (f *fakeEvaluations) Insert(_ context.Context, e *models.Evaluation) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = primitive.NewObjectID()
	f.evals = append(f.evals, *e)
	return e.ID, nil
}

func (f *fakeEvaluations) FindByPaper(_ context.Context, paperID primitive.ObjectID) ([]models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Evaluation
	for _, e := range f.evals {
		if e.PaperID == paperID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvaluations) FindByPapers(_ context.Context, paperIDs []primitive.ObjectID) ([]models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(paperIDs) == 0 {
		return append([]models.Evaluation(nil), f.evals...), nil
	}
	wanted := make(map[primitive.ObjectID]bool, len(paperIDs))
	for _, id := range paperIDs {
		wanted[id] = true
	}
	var out []models.Evaluation
	for _, e := range f.evals {
		if wanted[e.PaperID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvaluations) CountAll(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.evals)), nil
}

func (f *fakeEvaluations) DeleteByPaper(_ context.Context, paperID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.evals[:0]
	var removed int64
	for _, e := range f.evals {
		if e.PaperID == paperID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.evals = kept
	return removed, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	sets map[string]map[primitive.ObjectID]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{sets: make(map[string]map[primitive.ObjectID]bool)}
}

func (f *fakeLedger) HasEvaluated(_ context.Context, email string, paperID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[email][paperID], nil
}

func (f *fakeLedger) MarkEvaluated(_ context.Context, email string, paperID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[email]
	if !ok {
		set = make(map[primitive.ObjectID]bool)
		f.sets[email] = set
	}
	if set[paperID] {
		return false, nil
	}
	set[paperID] = true
	return true, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}
