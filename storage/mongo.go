package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"paper-review/config"
)

// Collection-Namen der beiden Fach-Collections plus Ledger.
const (
	papersCollection      = "papers"
	evaluationsCollection = "evaluations"
	reviewersCollection   = "reviewers"
)

// NewMongoClient verbindet sich mit MongoDB und prüft die Verbindung.
// Der Client wird explizit konstruiert und durchgereicht; es gibt keinen
// prozessweiten Verbindungs-Cache.
func NewMongoClient(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureIndexes legt die benötigten Indizes an. Der Unique-Index auf der
// Reviewer-Email macht das bedingte Ledger-Upsert atomar: ein zweiter
// gleichzeitiger Versuch desselben Bewerters läuft in einen Duplicate-Key.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(reviewersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(evaluationsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "paper_id", Value: 1}},
	})
	return err
}
