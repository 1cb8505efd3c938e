package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Paper repräsentiert eine eingereichte Forschungsarbeit und deren Metadaten.
// Der Review-Status wird bewusst NICHT gespeichert, sondern beim Lesen aus der
// Anzahl vorhandener Evaluationen abgeleitet.
type Paper struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`

	Title    string   `json:"title" bson:"title"`
	Authors  []string `json:"authors" bson:"authors"`
	Abstract string   `json:"abstract,omitempty" bson:"abstract,omitempty"`

	// Schlüssel des PDFs im S3-Bucket.
	FileKey string `json:"file_key" bson:"file_key"`
	FileURL string `json:"file_url,omitempty" bson:"file_url,omitempty"`
}

// PaperStatus ist der abgeleitete Review-Status eines Papers.
type PaperStatus string

const (
	StatusPending   PaperStatus = "pending"
	StatusCompleted PaperStatus = "completed"
)

// DeriveStatus leitet den Status aus der Evaluationsanzahl ab.
func DeriveStatus(evaluationCount int) PaperStatus {
	if evaluationCount > 0 {
		return StatusCompleted
	}
	return StatusPending
}
