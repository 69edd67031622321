package repository

import (
	"context"
	"errors"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

type SaveRunInput struct {
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
}

type RunRepository interface {
	SaveRun(ctx context.Context, input SaveRunInput) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRecentRuns(ctx context.Context, limit int) ([]Run, error)
}

type Repository interface {
	RunRepository
	Close()
}
