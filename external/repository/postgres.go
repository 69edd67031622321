package repository

import (
	"context"
	"errors"

	"github.com/foxseedlab/localscribe/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runColumns = `id, display_name, engine, variant, status, failed_stage, error_kind, error_message,
	transcript, audio_seconds, elapsed_ms, started_at, finished_at, created_at`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) SaveRun(ctx context.Context, input repository.SaveRunInput) (*repository.Run, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO transcription_runs (id, display_name, engine, variant, status, failed_stage, error_kind,
			error_message, transcript, audio_seconds, elapsed_ms, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+runColumns,
		input.ID, input.DisplayName, input.Engine, input.Variant, string(input.Status), input.FailedStage,
		input.ErrorKind, input.ErrorMessage, input.Transcript, input.AudioSeconds, input.ElapsedMs,
		input.StartedAt, input.FinishedAt)
	return scanRun(row)
}

func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*repository.Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM transcription_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrRunNotFound
	}
	return run, err
}

func (r *PostgresRepository) ListRecentRuns(ctx context.Context, limit int) ([]repository.Run, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM transcription_runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *run)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func scanRun(row pgx.Row) (*repository.Run, error) {
	var run repository.Run
	var status string
	err := row.Scan(&run.ID, &run.DisplayName, &run.Engine, &run.Variant, &status, &run.FailedStage,
		&run.ErrorKind, &run.ErrorMessage, &run.Transcript, &run.AudioSeconds, &run.ElapsedMs,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = repository.RunStatus(status)
	return &run, nil
}
