package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/socialqueue/socialqueue/internal/models"
)

type JobRepository interface {
	GetByID(ctx context.Context, jobID string) (*models.ScheduledJob, error)
	ListAll(ctx context.Context) ([]*models.ScheduledJob, error)
	Upsert(ctx context.Context, tx *sql.Tx, job *models.ScheduledJob) error
	UpdateTriggerTime(ctx context.Context, tx *sql.Tx, jobID string, triggerTime time.Time) (bool, error)
	Delete(ctx context.Context, tx *sql.Tx, jobID string) (bool, error)
	Claim(ctx context.Context, jobID string, triggerTime time.Time) (bool, error)
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) GetByID(ctx context.Context, jobID string) (*models.ScheduledJob, error) {
	query := `SELECT job_id, post_id, platform, trigger_time, created_at FROM scheduled_jobs WHERE job_id = $1`
	row := r.db.QueryRowContext(ctx, query, jobID)

	var job models.ScheduledJob
	err := row.Scan(&job.JobID, &job.PostID, &job.Platform, &job.TriggerTime, &job.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) ListAll(ctx context.Context) ([]*models.ScheduledJob, error) {
	query := `SELECT job_id, post_id, platform, trigger_time, created_at FROM scheduled_jobs ORDER BY trigger_time`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.ScheduledJob
	for rows.Next() {
		var job models.ScheduledJob
		err := rows.Scan(&job.JobID, &job.PostID, &job.Platform, &job.TriggerTime, &job.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (r *jobRepository) Upsert(ctx context.Context, tx *sql.Tx, job *models.ScheduledJob) error {
	query := `
		INSERT INTO scheduled_jobs (job_id, post_id, platform, trigger_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET trigger_time = EXCLUDED.trigger_time
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, job.JobID, job.PostID, job.Platform, job.TriggerTime)
	} else {
		_, err = r.db.ExecContext(ctx, query, job.JobID, job.PostID, job.Platform, job.TriggerTime)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *jobRepository) UpdateTriggerTime(ctx context.Context, tx *sql.Tx, jobID string, triggerTime time.Time) (bool, error) {
	query := `UPDATE scheduled_jobs SET trigger_time = $1 WHERE job_id = $2`

	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, triggerTime, jobID)
	} else {
		res, err = r.db.ExecContext(ctx, query, triggerTime, jobID)
	}
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *jobRepository) Delete(ctx context.Context, tx *sql.Tx, jobID string) (bool, error) {
	query := `DELETE FROM scheduled_jobs WHERE job_id = $1`

	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, jobID)
	} else {
		res, err = r.db.ExecContext(ctx, query, jobID)
	}
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Claim removes the job row for a firing trigger. The trigger_time guard
// makes triggers left over from a replaced or cancelled schedule claim
// nothing, so they fizzle instead of double-publishing.
func (r *jobRepository) Claim(ctx context.Context, jobID string, triggerTime time.Time) (bool, error) {
	query := `DELETE FROM scheduled_jobs WHERE job_id = $1 AND trigger_time = $2`

	res, err := r.db.ExecContext(ctx, query, jobID, triggerTime)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
