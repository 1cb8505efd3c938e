package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Scores sind die fünf Bewertungsdimensionen einer Evaluation (jeweils 0-5).
// Overall ist optional und wird als fünfte, gleichrangige Dimension behandelt.
type Scores struct {
	Originality  float64 `json:"originality" bson:"originality"`
	Methodology  float64 `json:"methodology" bson:"methodology"`
	Clarity      float64 `json:"clarity" bson:"clarity"`
	Significance float64 `json:"significance" bson:"significance"`
	Overall      float64 `json:"overall" bson:"overall"`
}

// Blended ist der Fünf-Wege-Durchschnitt einer einzelnen Evaluation.
// Teiler ist immer 5; ein fehlendes Overall zählt als 0.
func (s Scores) Blended() float64 {
	return (s.Originality + s.Methodology + s.Clarity + s.Significance + s.Overall) / 5
}

// Dimension liefert den Wert einer Dimension anhand ihres Namens.
func (s Scores) Dimension(name string) (float64, bool) {
	switch name {
	case "originality":
		return s.Originality, true
	case "methodology":
		return s.Methodology, true
	case "clarity":
		return s.Clarity, true
	case "significance":
		return s.Significance, true
	case "overall":
		return s.Overall, true
	}
	return 0, false
}

// Dimensions sind die Bewertungsdimensionen in fester Reihenfolge.
var Dimensions = []string{"originality", "methodology", "clarity", "significance", "overall"}

// Evaluation ist die anonyme Bewertung eines Papers. Sie trägt bewusst keine
// Identität des Bewerters; wer bereits bewertet hat, steht ausschließlich im
// Reviewer-Ledger.
type Evaluation struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`

	PaperID  primitive.ObjectID `json:"paper_id" bson:"paper_id"`
	Scores   Scores             `json:"scores" bson:"scores"`
	Comments string             `json:"comments,omitempty" bson:"comments,omitempty"`
}
