package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
	"github.com/socialqueue/socialqueue/internal/models"
	"github.com/socialqueue/socialqueue/internal/publisher"
)

// Store is the persistence surface the scheduler drives. Transitions that
// touch both the post row and the job row are transactional on the
// implementation side.
type Store interface {
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	ListScheduled(ctx context.Context, start, end time.Time) ([]*models.Post, error)
	UpdateStatus(ctx context.Context, postID int64, status string) error
	Schedule(ctx context.Context, job *models.ScheduledJob) error
	Reschedule(ctx context.Context, job *models.ScheduledJob) (bool, error)
	Cancel(ctx context.Context, postID int64, jobID string) (bool, error)
	ClaimJob(ctx context.Context, jobID string, triggerTime time.Time) (bool, error)
	PendingJobs(ctx context.Context) ([]*models.ScheduledJob, error)
	MarkPublished(ctx context.Context, postID int64, externalID, externalURL string, publishedTime time.Time, meta models.Metadata) error
	MarkFailed(ctx context.Context, postID int64, meta models.Metadata) error
}

// PublisherSelector resolves the Publisher for a platform.
type PublisherSelector interface {
	ForPlatform(platform string) (publisher.Publisher, error)
}

type Scheduler struct {
	store      Store
	publishers PublisherSelector
	broker     Broker
	keys       *keyLock
	cron       *cron.Cron
}

func New(store Store, publishers PublisherSelector, broker Broker) *Scheduler {
	return &Scheduler{
		store:      store,
		publishers: publishers,
		broker:     broker,
		keys:       newKeyLock(),
	}
}

// Start re-arms every persisted job (past-due triggers fire immediately
// rather than being dropped) and begins the periodic reconcile sweep that
// re-arms jobs whose broker trigger was lost.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.RecoverJobs(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	s.cron = cron.New()
	if err := s.cron.AddFunc("@every 5m", func() {
		if err := s.RecoverJobs(context.Background()); err != nil {
			slog.Error("job sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()

	slog.Info("post scheduler started")
	return nil
}

func (s *Scheduler) Shutdown() {
	if s.cron != nil {
		s.cron.Stop()
	}
	slog.Info("post scheduler shut down")
}

func (s *Scheduler) RecoverJobs(ctx context.Context) error {
	jobs, err := s.store.PendingJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := s.broker.Ensure(ctx, job); err != nil {
			slog.Error("failed to arm job", "job_id", job.JobID, "error", err)
		}
	}
	return nil
}

// Schedule transitions the post to scheduled and registers the publish
// trigger, replacing any existing job for the (post, platform) key. Times
// in the past are accepted and fire on the next tick. On error the post's
// prior state is untouched.
func (s *Scheduler) Schedule(ctx context.Context, postID int64, publishTime time.Time) (*models.Post, error) {
	if publishTime.IsZero() {
		return nil, ErrInvalidTime
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	switch post.Status {
	case models.PostStatusDraft, models.PostStatusApproved, models.PostStatusScheduled:
	default:
		return nil, fmt.Errorf("cannot schedule %s post: %w", post.Status, ErrInvalidTransition)
	}

	job := models.NewScheduledJob(post.ID, post.Platform, publishTime)
	if err := s.store.Schedule(ctx, job); err != nil {
		return nil, err
	}

	// A lost trigger is re-armed by the sweep; the job row is already
	// durable, so this is not a failure of the schedule itself.
	if err := s.broker.Arm(ctx, job); err != nil {
		slog.Error("failed to arm trigger", "job_id", job.JobID, "error", err)
	}

	slog.Info("scheduled post", "post_id", post.ID, "platform", post.Platform, "publish_time", job.TriggerTime)
	return s.store.GetPost(ctx, postID)
}

// Reschedule moves an existing job to a new trigger time.
func (s *Scheduler) Reschedule(ctx context.Context, postID int64, publishTime time.Time) (*models.Post, error) {
	if publishTime.IsZero() {
		return nil, ErrInvalidTime
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	job := models.NewScheduledJob(post.ID, post.Platform, publishTime)
	found, err := s.store.Reschedule(ctx, job)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrJobNotFound
	}

	if err := s.broker.Arm(ctx, job); err != nil {
		slog.Error("failed to arm trigger", "job_id", job.JobID, "error", err)
	}

	slog.Info("rescheduled post", "post_id", post.ID, "platform", post.Platform, "publish_time", job.TriggerTime)
	return s.store.GetPost(ctx, postID)
}

// Cancel reverts the post to draft and removes its job. A job that already
// fired (or was never registered) is reported as too late, without touching
// the post's status.
func (s *Scheduler) Cancel(ctx context.Context, postID int64) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	jobID := models.JobID(post.ID, post.Platform)
	found, err := s.store.Cancel(ctx, post.ID, jobID)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Info("cancel too late, job already fired or never scheduled", "post_id", post.ID)
		return nil, ErrJobNotFound
	}

	if err := s.broker.Disarm(ctx, jobID); err != nil {
		slog.Error("failed to disarm trigger", "job_id", jobID, "error", err)
	}

	slog.Info("cancelled scheduled post", "post_id", post.ID, "platform", post.Platform)
	return s.store.GetPost(ctx, postID)
}

// PublishNow bypasses the trigger mechanism and dispatches synchronously.
// Valid only from scheduled or approved status.
func (s *Scheduler) PublishNow(ctx context.Context, postID int64) (*models.Post, *publisher.Result, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if post == nil {
		return nil, nil, ErrPostNotFound
	}

	if post.Status == models.PostStatusPublished {
		return nil, nil, ErrAlreadyPublished
	}
	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusApproved {
		return nil, nil, fmt.Errorf("cannot publish %s post: %w", post.Status, ErrInvalidTransition)
	}

	jobID := models.JobID(post.ID, post.Platform)
	unlock := s.keys.Lock(jobID)
	defer unlock()

	// The status may have moved while we waited on the key lock.
	post, err = s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if post == nil {
		return nil, nil, ErrPostNotFound
	}
	if post.Status == models.PostStatusPublished {
		return nil, nil, ErrAlreadyPublished
	}
	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusApproved {
		return nil, nil, fmt.Errorf("cannot publish %s post: %w", post.Status, ErrInvalidTransition)
	}

	// Consume the pending trigger so the job registry never carries a row
	// for a post this call is about to resolve.
	if post.Status == models.PostStatusScheduled && post.ScheduledTime != nil {
		if _, err := s.store.ClaimJob(ctx, jobID, *post.ScheduledTime); err != nil {
			return nil, nil, err
		}
		if err := s.broker.Disarm(ctx, jobID); err != nil {
			slog.Error("failed to disarm trigger", "job_id", jobID, "error", err)
		}
	}

	result, err := s.dispatch(ctx, post)
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, result, err
	}
	return updated, result, nil
}

// GetScheduled lists posts in scheduled status with a trigger inside the
// window. Zero bounds default to now and now+7d.
func (s *Scheduler) GetScheduled(ctx context.Context, start, end time.Time) ([]*models.Post, error) {
	if start.IsZero() {
		start = time.Now().UTC()
	}
	if end.IsZero() {
		end = start.Add(7 * 24 * time.Hour)
	}
	return s.store.ListScheduled(ctx, start, end)
}

// UpdateStatus applies a manual review transition (draft, approved,
// rejected). Scheduled and published are reachable only through their
// dedicated operations.
func (s *Scheduler) UpdateStatus(ctx context.Context, postID int64, status string) (*models.Post, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}
	switch status {
	case models.PostStatusDraft, models.PostStatusApproved, models.PostStatusRejected:
	default:
		return nil, fmt.Errorf("status %q is managed by the scheduler: %w", status, ErrInvalidTransition)
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.Status == models.PostStatusScheduled {
		return nil, fmt.Errorf("cancel the schedule first: %w", ErrInvalidTransition)
	}

	if err := s.store.UpdateStatus(ctx, postID, status); err != nil {
		return nil, err
	}
	return s.store.GetPost(ctx, postID)
}

// Stats fetches raw engagement metrics for a published post. The stats
// shape is platform-specific; callers treat it as an open map.
func (s *Scheduler) Stats(ctx context.Context, postID int64) (*publisher.Result, error) {
	post, pub, err := s.remoteTarget(ctx, postID)
	if err != nil {
		return nil, err
	}
	return pub.Stats(ctx, post.ExternalID), nil
}

// DeleteRemote deletes the post on its platform. Local status is untouched.
func (s *Scheduler) DeleteRemote(ctx context.Context, postID int64) (*publisher.Result, error) {
	post, pub, err := s.remoteTarget(ctx, postID)
	if err != nil {
		return nil, err
	}
	return pub.Delete(ctx, post.ExternalID), nil
}

func (s *Scheduler) remoteTarget(ctx context.Context, postID int64) (*models.Post, publisher.Publisher, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if post == nil {
		return nil, nil, ErrPostNotFound
	}
	if post.ExternalID == "" {
		return nil, nil, ErrNotPublished
	}

	pub, err := s.publishers.ForPlatform(post.Platform)
	if err != nil {
		return nil, nil, err
	}
	return post, pub, nil
}
