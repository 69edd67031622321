package repository

import "time"

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the persisted outcome of one transcription.
type Run struct {
	ID           string
	DisplayName  string
	Engine       string
	Variant      string
	Status       RunStatus
	FailedStage  string
	ErrorKind    string
	ErrorMessage string
	Transcript   string
	AudioSeconds float64
	ElapsedMs    int64
	StartedAt    time.Time
	FinishedAt   time.Time
	CreatedAt    time.Time
}
