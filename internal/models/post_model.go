package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Post struct {
	ID            int64      `db:"id" json:"id"`
	ContentItemID *int64     `db:"content_item_id" json:"content_item_id,omitempty"`
	TextContent   string     `db:"text_content" json:"text_content"`
	ImagePath     string     `db:"image_path" json:"image_path,omitempty"`
	Platform      string     `db:"platform" json:"platform"`
	Status        string     `db:"status" json:"status"`
	ScheduledTime *time.Time `db:"scheduled_time" json:"scheduled_time,omitempty"`
	PublishedTime *time.Time `db:"published_time" json:"published_time,omitempty"`
	ExternalID    string     `db:"external_id" json:"external_id,omitempty"`
	ExternalURL   string     `db:"external_url" json:"external_url,omitempty"`
	Metadata      Metadata   `db:"meta_data" json:"metadata,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusApproved  = "approved"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
	PostStatusRejected  = "rejected"
)

const (
	PlatformLinkedIn  = "linkedin"
	PlatformTwitter   = "twitter"
	PlatformInstagram = "instagram"
	PlatformYoutube   = "youtube"
)

func ValidStatus(s string) bool {
	switch s {
	case PostStatusDraft, PostStatusApproved, PostStatusScheduled,
		PostStatusPublished, PostStatusFailed, PostStatusRejected:
		return true
	}
	return false
}

func ValidPlatform(p string) bool {
	switch p {
	case PlatformLinkedIn, PlatformTwitter, PlatformInstagram, PlatformYoutube:
		return true
	}
	return false
}

// Metadata is the open key/value map stored as JSONB on a post. Writes
// always merge into the existing value, never replace it wholesale.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("metadata: unsupported scan source")
	}
	return json.Unmarshal(b, m)
}
