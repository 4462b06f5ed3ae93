package models

import (
	"fmt"
	"time"
)

// ScheduledJob is the durable record of a pending publish trigger. One row
// exists per (post, platform) pair at most; scheduling again replaces it.
type ScheduledJob struct {
	JobID       string    `db:"job_id" json:"job_id"`
	PostID      int64     `db:"post_id" json:"post_id"`
	Platform    string    `db:"platform" json:"platform"`
	TriggerTime time.Time `db:"trigger_time" json:"trigger_time"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// JobID builds the stable job key for a (post, platform) pair.
func JobID(postID int64, platform string) string {
	return fmt.Sprintf("post_%d_%s", postID, platform)
}

// NewScheduledJob truncates the trigger time to microseconds so the value
// survives the Postgres timestamptz round trip intact.
func NewScheduledJob(postID int64, platform string, triggerTime time.Time) *ScheduledJob {
	return &ScheduledJob{
		JobID:       JobID(postID, platform),
		PostID:      postID,
		Platform:    platform,
		TriggerTime: triggerTime.UTC().Truncate(time.Microsecond),
	}
}
