package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/socialqueue/socialqueue/internal/models"
)

// Store couples post status transitions with scheduled-job mutations in a
// single transaction, so a schedule, reschedule or cancel is either fully
// observed or not at all.
type Store struct {
	db    *sql.DB
	posts PostRepository
	jobs  JobRepository
}

func NewStore(db *sql.DB, posts PostRepository, jobs JobRepository) *Store {
	return &Store{db: db, posts: posts, jobs: jobs}
}

func (s *Store) Init(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			content_item_id BIGINT,
			text_content TEXT NOT NULL,
			image_path TEXT,
			platform TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			scheduled_time TIMESTAMPTZ,
			published_time TIMESTAMPTZ,
			external_id TEXT,
			external_url TEXT,
			meta_data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS scheduled_jobs (
			job_id TEXT PRIMARY KEY,
			post_id BIGINT NOT NULL,
			platform TEXT NOT NULL,
			trigger_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

func (s *Store) ListScheduled(ctx context.Context, start, end time.Time) ([]*models.Post, error) {
	return s.posts.ListScheduled(ctx, start, end)
}

func (s *Store) UpdateStatus(ctx context.Context, postID int64, status string) error {
	return s.posts.UpdateStatus(ctx, nil, postID, status)
}

func (s *Store) Schedule(ctx context.Context, job *models.ScheduledJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if err := s.posts.SetScheduled(ctx, tx, job.PostID, job.TriggerTime); err != nil {
		return err
	}
	if err := s.jobs.Upsert(ctx, tx, job); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Reschedule(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer rollback(tx)

	found, err := s.jobs.UpdateTriggerTime(ctx, tx, job.JobID, job.TriggerTime)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := s.posts.SetScheduledTime(ctx, tx, job.PostID, job.TriggerTime); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) Cancel(ctx context.Context, postID int64, jobID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer rollback(tx)

	found, err := s.jobs.Delete(ctx, tx, jobID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := s.posts.ClearSchedule(ctx, tx, postID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) ClaimJob(ctx context.Context, jobID string, triggerTime time.Time) (bool, error) {
	return s.jobs.Claim(ctx, jobID, triggerTime)
}

func (s *Store) PendingJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	return s.jobs.ListAll(ctx)
}

func (s *Store) MarkPublished(ctx context.Context, postID int64, externalID, externalURL string, publishedTime time.Time, meta models.Metadata) error {
	return s.posts.MarkPublished(ctx, postID, externalID, externalURL, publishedTime, meta)
}

func (s *Store) MarkFailed(ctx context.Context, postID int64, meta models.Metadata) error {
	return s.posts.MarkFailed(ctx, postID, meta)
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		slog.Info(err.Error())
	}
}
