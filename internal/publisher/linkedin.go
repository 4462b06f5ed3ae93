package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	config "github.com/socialqueue/socialqueue/configs"
	"github.com/socialqueue/socialqueue/internal/models"
	"golang.org/x/time/rate"
)

type LinkedInPublisher struct {
	accessToken string
	authorURN   string
	apiURL      string
	client      *http.Client
	limiter     *rate.Limiter
}

func NewLinkedInPublisher(cfg config.LinkedIn, timeout time.Duration) *LinkedInPublisher {
	return &LinkedInPublisher{
		accessToken: cfg.AccessToken,
		authorURN:   cfg.AuthorURN,
		apiURL:      "https://api.linkedin.com/v2",
		client:      newHTTPClient(timeout),
		limiter:     newLimiter(),
	}
}

func (p *LinkedInPublisher) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}

func (p *LinkedInPublisher) Publish(ctx context.Context, post *models.Post) *Result {
	if p.accessToken == "" {
		return failure(models.PlatformLinkedIn, "LinkedIn access token not configured")
	}

	shareMediaCategory := "NONE"
	if post.ImagePath != "" {
		if _, err := os.Stat(post.ImagePath); err == nil {
			shareMediaCategory = "IMAGE"
		}
	}

	payload := map[string]interface{}{
		"author":         p.authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary": map[string]interface{}{
					"text": post.TextContent,
				},
				"shareMediaCategory": shareMediaCategory,
			},
		},
		"visibility": map[string]interface{}{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL+"/ugcPosts", bytes.NewBuffer(body))
	if err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformLinkedIn, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformLinkedIn,
			fmt.Sprintf("LinkedIn API error: %d - %s", resp.StatusCode, respBody))
	}

	postID := resp.Header.Get("x-restli-id")
	res := success(models.PlatformLinkedIn)
	res.PostID = postID
	res.PostURL = fmt.Sprintf("https://www.linkedin.com/feed/update/%s", postID)
	return res
}

func (p *LinkedInPublisher) Delete(ctx context.Context, externalID string) *Result {
	if p.accessToken == "" {
		return failure(models.PlatformLinkedIn, "LinkedIn access token not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, "DELETE", fmt.Sprintf("%s/ugcPosts/%s", p.apiURL, externalID), nil)
	if err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformLinkedIn, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformLinkedIn,
			fmt.Sprintf("LinkedIn API error: %d - %s", resp.StatusCode, respBody))
	}
	return success(models.PlatformLinkedIn)
}

func (p *LinkedInPublisher) Stats(ctx context.Context, externalID string) *Result {
	if p.accessToken == "" {
		return failure(models.PlatformLinkedIn, "LinkedIn access token not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/socialActions/%s", p.apiURL, externalID), nil)
	if err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformLinkedIn, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformLinkedIn,
			fmt.Sprintf("LinkedIn API error: %d - %s", resp.StatusCode, respBody))
	}

	var data struct {
		LikesSummary struct {
			TotalLikes int `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalComments int `json:"totalComments"`
		} `json:"commentsSummary"`
		SharesSummary struct {
			TotalShares int `json:"totalShares"`
		} `json:"sharesSummary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return failure(models.PlatformLinkedIn, err.Error())
	}

	res := success(models.PlatformLinkedIn)
	res.Stats = map[string]interface{}{
		"likes":    data.LikesSummary.TotalLikes,
		"comments": data.CommentsSummary.TotalComments,
		"shares":   data.SharesSummary.TotalShares,
	}
	return res
}
