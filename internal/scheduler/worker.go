package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/socialqueue/socialqueue/internal/models"
	"github.com/socialqueue/socialqueue/internal/publisher"
)

// HandlePublishTask is the asynq handler for publish triggers. It always
// returns nil: every outcome, including faults, is resolved into a
// persisted post status rather than a queue retry.
func (s *Scheduler) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("malformed publish payload", "error", err)
		return nil
	}

	s.fire(ctx, payload)
	return nil
}

// fire executes one trigger: claim the durable job row, re-fetch the post
// fresh (the snapshot from schedule time may be stale), gate on status,
// dispatch, and persist the outcome. The key lock guarantees a single
// in-flight firing per (post, platform).
func (s *Scheduler) fire(ctx context.Context, payload PublishPayload) {
	jobID := models.JobID(payload.PostID, payload.Platform)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while publishing", "job_id", jobID, "panic", r)
			s.failPost(ctx, payload.PostID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	unlock := s.keys.Lock(jobID)
	defer unlock()

	claimed, err := s.store.ClaimJob(ctx, jobID, payload.TriggerTime)
	if err != nil {
		slog.Error("failed to claim job", "job_id", jobID, "error", err)
		s.failPost(ctx, payload.PostID, err.Error())
		return
	}
	if !claimed {
		// Cancelled or replaced since this trigger was armed.
		slog.Info("stale trigger, nothing to fire", "job_id", jobID)
		return
	}

	post, err := s.store.GetPost(ctx, payload.PostID)
	if err != nil {
		slog.Error("failed to load post", "post_id", payload.PostID, "error", err)
		s.failPost(ctx, payload.PostID, err.Error())
		return
	}
	if post == nil {
		slog.Error("post not found for job", "post_id", payload.PostID)
		return
	}

	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusApproved {
		slog.Info("post no longer publishable, skipping",
			"post_id", post.ID, "status", post.Status)
		return
	}

	if _, err := s.dispatch(ctx, post); err != nil {
		slog.Error("dispatch failed", "post_id", post.ID, "error", err)
		s.failPost(ctx, post.ID, err.Error())
	}
}

// dispatch routes the post to its publisher and persists the resulting
// transition. Publisher failures come back in the result, not as errors;
// the returned error means the dispatch itself could not run (unknown
// platform, persistence fault).
func (s *Scheduler) dispatch(ctx context.Context, post *models.Post) (*publisher.Result, error) {
	pub, err := s.publishers.ForPlatform(post.Platform)
	if err != nil {
		return nil, err
	}

	result := pub.Publish(ctx, post)

	if result.Success {
		publishedAt := time.Now().UTC()
		meta := models.Metadata{"publish_result": result}
		if err := s.store.MarkPublished(ctx, post.ID, result.PostID, result.PostURL, publishedAt, meta); err != nil {
			return result, err
		}
		slog.Info("published post", "post_id", post.ID, "platform", post.Platform, "external_id", result.PostID)
		return result, nil
	}

	meta := models.Metadata{
		"publish_error":   result.Error,
		"publish_attempt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.MarkFailed(ctx, post.ID, meta); err != nil {
		return result, err
	}
	slog.Error("failed to publish post", "post_id", post.ID, "platform", post.Platform, "error", result.Error)
	return result, nil
}

func (s *Scheduler) failPost(ctx context.Context, postID int64, errMsg string) {
	meta := models.Metadata{
		"publish_error":   errMsg,
		"publish_attempt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.MarkFailed(ctx, postID, meta); err != nil {
		slog.Error("failed to mark post failed", "post_id", postID, "error", err)
	}
}
