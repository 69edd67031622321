package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/localscribe/internal/repository"
)

const defaultMemoryCapacity = 200

// MemoryRepository keeps the most recent runs in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	runs     []repository.Run
	capacity int
	now      func() time.Time
}

func NewMemoryRepository(capacity int) repository.Repository {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryRepository{capacity: capacity, now: time.Now}
}

func (r *MemoryRepository) SaveRun(_ context.Context, input repository.SaveRunInput) (*repository.Run, error) {
	run := repository.Run{
		ID:           input.ID,
		DisplayName:  input.DisplayName,
		Engine:       input.Engine,
		Variant:      input.Variant,
		Status:       input.Status,
		FailedStage:  input.FailedStage,
		ErrorKind:    input.ErrorKind,
		ErrorMessage: input.ErrorMessage,
		Transcript:   input.Transcript,
		AudioSeconds: input.AudioSeconds,
		ElapsedMs:    input.ElapsedMs,
		StartedAt:    input.StartedAt,
		FinishedAt:   input.FinishedAt,
		CreatedAt:    r.now(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	if len(r.runs) > r.capacity {
		r.runs = append([]repository.Run(nil), r.runs[len(r.runs)-r.capacity:]...)
	}
	return &run, nil
}

func (r *MemoryRepository) GetRun(_ context.Context, id string) (*repository.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.runs {
		if r.runs[i].ID == id {
			run := r.runs[i]
			return &run, nil
		}
	}
	return nil, repository.ErrRunNotFound
}

func (r *MemoryRepository) ListRecentRuns(_ context.Context, limit int) ([]repository.Run, error) {
	r.mu.RLock()
	list := append([]repository.Run(nil), r.runs...)
	r.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].FinishedAt.After(list[j].FinishedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *MemoryRepository) Close() {}
