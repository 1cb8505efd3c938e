package services

import "errors"

// Fehler-Taxonomie des Kerns. Handler mappen diese per errors.Is auf
// HTTP-Statuscodes; es gibt keine automatischen Retries.
var (
	// ErrValidation: Pflichtfelder fehlen oder sind außerhalb des Wertebereichs.
	ErrValidation = errors.New("validation error")
	// ErrNotFound: referenziertes Paper existiert nicht.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEvaluation: derselbe Bewerter hat dieses Paper bereits bewertet.
	ErrDuplicateEvaluation = errors.New("duplicate evaluation")
	// ErrStorage: Datenbank- oder Blob-I/O fehlgeschlagen.
	ErrStorage = errors.New("storage error")
)
