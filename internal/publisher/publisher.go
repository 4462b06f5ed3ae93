package publisher

import (
	"context"
	"net/http"
	"time"

	"github.com/socialqueue/socialqueue/internal/models"
	"golang.org/x/time/rate"
)

// Publisher performs the network operations for one platform. Expected
// failures (bad status codes, timeouts, missing credentials) come back as a
// Result with Success=false, never as a Go error, so the scheduler can make
// its state transition deterministically.
type Publisher interface {
	Publish(ctx context.Context, post *models.Post) *Result
	Delete(ctx context.Context, externalID string) *Result
	Stats(ctx context.Context, externalID string) *Result
}

// Result is the normalized outcome of a single publisher operation.
type Result struct {
	Success   bool                   `json:"success"`
	PostID    string                 `json:"post_id,omitempty"`
	PostURL   string                 `json:"post_url,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Platform  string                 `json:"platform"`
	Timestamp time.Time              `json:"timestamp"`
	Stats     map[string]interface{} `json:"stats,omitempty"`
}

func failure(platform, errMsg string) *Result {
	return &Result{
		Success:   false,
		Error:     errMsg,
		Platform:  platform,
		Timestamp: time.Now().UTC(),
	}
}

func success(platform string) *Result {
	return &Result{
		Success:   true,
		Platform:  platform,
		Timestamp: time.Now().UTC(),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Platform APIs throttle aggressively; a small shared limiter per publisher
// keeps a burst of simultaneous firings from tripping them.
func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 5)
}
