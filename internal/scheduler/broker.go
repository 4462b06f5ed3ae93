package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/socialqueue/socialqueue/internal/models"
)

const TaskTypePublishPost = "publish:post"

// PublishPayload is the asynq task body for a publish trigger. TriggerTime
// doubles as the claim token: a trigger whose time no longer matches the
// job row belongs to a replaced schedule and must fizzle.
type PublishPayload struct {
	PostID      int64     `json:"post_id"`
	Platform    string    `json:"platform"`
	TriggerTime time.Time `json:"trigger_time"`
}

// Broker arms and disarms the timing side of a scheduled job. The durable
// scheduled_jobs table stays authoritative; the broker is only the clock.
type Broker interface {
	// Arm replaces any pending trigger for the job and schedules a new one.
	Arm(ctx context.Context, job *models.ScheduledJob) error
	// Ensure arms the job only if no trigger is pending, for recovery sweeps.
	Ensure(ctx context.Context, job *models.ScheduledJob) error
	// Disarm drops the pending trigger, if any.
	Disarm(ctx context.Context, jobID string) error
}

type asynqBroker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewAsynqBroker(client *asynq.Client, inspector *asynq.Inspector) Broker {
	return &asynqBroker{client: client, inspector: inspector, queue: "default"}
}

func (b *asynqBroker) task(job *models.ScheduledJob) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(PublishPayload{
		PostID:      job.PostID,
		Platform:    job.Platform,
		TriggerTime: job.TriggerTime,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []asynq.Option{
		asynq.TaskID(job.JobID),
		asynq.ProcessAt(job.TriggerTime),
		asynq.Queue(b.queue),
		asynq.MaxRetry(0),
	}
	return asynq.NewTask(TaskTypePublishPost, payload), opts, nil
}

func (b *asynqBroker) Arm(ctx context.Context, job *models.ScheduledJob) error {
	if err := b.Disarm(ctx, job.JobID); err != nil {
		return err
	}

	task, opts, err := b.task(job)
	if err != nil {
		return err
	}
	_, err = b.client.EnqueueContext(ctx, task, opts...)
	return err
}

func (b *asynqBroker) Ensure(ctx context.Context, job *models.ScheduledJob) error {
	task, opts, err := b.task(job)
	if err != nil {
		return err
	}
	_, err = b.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (b *asynqBroker) Disarm(ctx context.Context, jobID string) error {
	err := b.inspector.DeleteTask(b.queue, jobID)
	if err == nil ||
		errors.Is(err, asynq.ErrTaskNotFound) ||
		errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}
