package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"paper-review/models"
	"paper-review/services"
)

// PaperRepo ist die Mongo-Implementierung des Paper-Repositories.
type PaperRepo struct {
	c *mongo.Collection
}

func NewPaperRepo(db *mongo.Database) *PaperRepo {
	return &PaperRepo{c: db.Collection(papersCollection)}
}

func (r *PaperRepo) Insert(ctx context.Context, p *models.Paper) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	res, err := r.c.InsertOne(ctx, p)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id := res.InsertedID.(primitive.ObjectID)
	p.ID = id
	return id, nil
}

func (r *PaperRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Paper, error) {
	var p models.Paper
	err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaperRepo) FindAll(ctx context.Context) ([]models.Paper, error) {
	cursor, err := r.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var papers []models.Paper
	if err := cursor.All(ctx, &papers); err != nil {
		return nil, err
	}
	return papers, nil
}

func (r *PaperRepo) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.Paper, error) {
	fields["updated_at"] = time.Now().UTC()
	var p models.Paper
	err := r.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaperRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// EvaluationRepo ist die Mongo-Implementierung des Evaluation-Repositories.
type EvaluationRepo struct {
	c *mongo.Collection
}

func NewEvaluationRepo(db *mongo.Database) *EvaluationRepo {
	return &EvaluationRepo{c: db.Collection(evaluationsCollection)}
}

func (r *EvaluationRepo) Insert(ctx context.Context, e *models.Evaluation) (primitive.ObjectID, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.c.InsertOne(ctx, e)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id := res.InsertedID.(primitive.ObjectID)
	e.ID = id
	return id, nil
}

func (r *EvaluationRepo) FindByPaper(ctx context.Context, paperID primitive.ObjectID) ([]models.Evaluation, error) {
	return r.find(ctx, bson.M{"paper_id": paperID})
}

func (r *EvaluationRepo) FindByPapers(ctx context.Context, paperIDs []primitive.ObjectID) ([]models.Evaluation, error) {
	if len(paperIDs) == 0 {
		return r.find(ctx, bson.M{})
	}
	return r.find(ctx, bson.M{"paper_id": bson.M{"$in": paperIDs}})
}

func (r *EvaluationRepo) find(ctx context.Context, filter bson.M) ([]models.Evaluation, error) {
	cursor, err := r.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var evals []models.Evaluation
	if err := cursor.All(ctx, &evals); err != nil {
		return nil, err
	}
	return evals, nil
}

func (r *EvaluationRepo) CountAll(ctx context.Context) (int64, error) {
	return r.c.CountDocuments(ctx, bson.M{})
}

func (r *EvaluationRepo) DeleteByPaper(ctx context.Context, paperID primitive.ObjectID) (int64, error) {
	res, err := r.c.DeleteMany(ctx, bson.M{"paper_id": paperID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ReviewerRepo ist die Mongo-Implementierung des Duplikat-Ledgers.
type ReviewerRepo struct {
	c *mongo.Collection
}

func NewReviewerRepo(db *mongo.Database) *ReviewerRepo {
	return &ReviewerRepo{c: db.Collection(reviewersCollection)}
}

func (r *ReviewerRepo) HasEvaluated(ctx context.Context, email string, paperID primitive.ObjectID) (bool, error) {
	n, err := r.c.CountDocuments(ctx, bson.M{"email": email, "evaluated_paper_ids": paperID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEvaluated beansprucht das (Email, Paper)-Paar in einem einzigen
// bedingten Update statt check-then-act. Drei Fälle:
//   - Eintrag existiert ohne die Paper-ID  -> $addToSet, ModifiedCount 1
//   - Eintrag existiert gar nicht          -> Upsert legt ihn an
//   - Paar bestand bereits                 -> Filter matcht nicht, der Upsert
//     läuft in den Unique-Index auf email  -> Duplicate-Key, also false
func (r *ReviewerRepo) MarkEvaluated(ctx context.Context, email string, paperID primitive.ObjectID) (bool, error) {
	now := time.Now().UTC()
	res, err := r.c.UpdateOne(ctx,
		bson.M{"email": email, "evaluated_paper_ids": bson.M{"$ne": paperID}},
		bson.M{
			"$addToSet":    bson.M{"evaluated_paper_ids": paperID},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0 || res.UpsertedCount > 0, nil
}
