package transfer

import (
	"time"

	"github.com/socialqueue/socialqueue/internal/models"
)

type ScheduleRequest struct {
	PublishTime string `json:"publish_time"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type PostResponse struct {
	PostID        int64  `json:"post_id"`
	Platform      string `json:"platform"`
	Status        string `json:"status"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
	PublishedTime string `json:"published_time,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
	ExternalURL   string `json:"external_url,omitempty"`
	Message       string `json:"message,omitempty"`
}

func NewPostResponse(post *models.Post, message string) *PostResponse {
	r := &PostResponse{
		PostID:      post.ID,
		Platform:    post.Platform,
		Status:      post.Status,
		ExternalID:  post.ExternalID,
		ExternalURL: post.ExternalURL,
		Message:     message,
	}
	if post.ScheduledTime != nil {
		r.ScheduledTime = post.ScheduledTime.Format(time.RFC3339)
	}
	if post.PublishedTime != nil {
		r.PublishedTime = post.PublishedTime.Format(time.RFC3339)
	}
	return r
}

type ScheduledPostInfo struct {
	PostID         int64  `json:"post_id"`
	Platform       string `json:"platform"`
	ScheduledTime  string `json:"scheduled_time,omitempty"`
	ContentPreview string `json:"content_preview"`
}

func NewScheduledPostInfo(post *models.Post) *ScheduledPostInfo {
	info := &ScheduledPostInfo{
		PostID:         post.ID,
		Platform:       post.Platform,
		ContentPreview: Preview(post.TextContent),
	}
	if post.ScheduledTime != nil {
		info.ScheduledTime = post.ScheduledTime.Format(time.RFC3339)
	}
	return info
}

// Preview returns the first 100 characters of the content, with an
// ellipsis when truncated.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= 100 {
		return text
	}
	return string(runes[:100]) + "..."
}
