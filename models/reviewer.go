package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reviewer ist ein Ledger-Eintrag pro Bewerter-Email: die Menge der bereits
// bewerteten Paper-IDs. Der Eintrag verweist nie auf Evaluation-Datensätze,
// damit Inhalt und Identität entkoppelt bleiben (das Ledger belegt nur, DASS
// jemand bewertet hat, nie WAS).
type Reviewer struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`

	Email             string               `json:"email" bson:"email"`
	EvaluatedPaperIDs []primitive.ObjectID `json:"evaluated_paper_ids" bson:"evaluated_paper_ids"`
}
