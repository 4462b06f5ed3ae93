package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	config "github.com/socialqueue/socialqueue/configs"
	"github.com/socialqueue/socialqueue/internal/models"
	"golang.org/x/time/rate"
)

const tweetMaxLen = 280

type TwitterPublisher struct {
	apiKey       string
	apiSecret    string
	accessToken  string
	accessSecret string
	apiURL       string
	authURL      string
	client       *http.Client
	limiter      *rate.Limiter
}

func NewTwitterPublisher(cfg config.Twitter, timeout time.Duration) *TwitterPublisher {
	return &TwitterPublisher{
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		accessToken:  cfg.AccessToken,
		accessSecret: cfg.AccessSecret,
		apiURL:       "https://api.twitter.com/2",
		authURL:      "https://api.twitter.com/oauth2/token",
		client:       newHTTPClient(timeout),
		limiter:      newLimiter(),
	}
}

func (p *TwitterPublisher) configured() bool {
	return p.apiKey != "" && p.apiSecret != "" && p.accessToken != "" && p.accessSecret != ""
}

func (p *TwitterPublisher) bearerToken(ctx context.Context) (string, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", p.authURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.apiKey, p.apiSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Twitter authentication error: %d - %s", resp.StatusCode, respBody)
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("failed to authenticate with Twitter")
	}
	return result.AccessToken, nil
}

// TruncateTweet enforces the 280-character limit; longer content is cut to
// 277 characters plus an ellipsis. Truncation is silent, the caller is not
// warned.
func TruncateTweet(text string) string {
	runes := []rune(text)
	if len(runes) <= tweetMaxLen {
		return text
	}
	return string(runes[:tweetMaxLen-3]) + "..."
}

func (p *TwitterPublisher) Publish(ctx context.Context, post *models.Post) *Result {
	if !p.configured() {
		return failure(models.PlatformTwitter, "Twitter API credentials not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}

	bearer, err := p.bearerToken(ctx)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformTwitter, err.Error())
	}

	payload := map[string]interface{}{
		"text": TruncateTweet(post.TextContent),
	}
	if post.ImagePath != "" {
		if _, err := os.Stat(post.ImagePath); err == nil {
			payload["media"] = map[string]interface{}{
				"media_ids": []string{"placeholder_media_id"},
			}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL+"/tweets", bytes.NewBuffer(body))
	if err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformTwitter, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformTwitter,
			fmt.Sprintf("Twitter API error: %d - %s", resp.StatusCode, respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}

	res := success(models.PlatformTwitter)
	res.PostID = result.Data.ID
	res.PostURL = fmt.Sprintf("https://twitter.com/user/status/%s", result.Data.ID)
	return res
}

func (p *TwitterPublisher) Delete(ctx context.Context, externalID string) *Result {
	if !p.configured() {
		return failure(models.PlatformTwitter, "Twitter API credentials not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}

	bearer, err := p.bearerToken(ctx)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformTwitter, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, "DELETE", fmt.Sprintf("%s/tweets/%s", p.apiURL, externalID), nil)
	if err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformTwitter, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformTwitter,
			fmt.Sprintf("Twitter API error: %d - %s", resp.StatusCode, respBody))
	}
	return success(models.PlatformTwitter)
}

func (p *TwitterPublisher) Stats(ctx context.Context, externalID string) *Result {
	if !p.configured() {
		return failure(models.PlatformTwitter, "Twitter API credentials not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}

	bearer, err := p.bearerToken(ctx)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformTwitter, err.Error())
	}

	reqURL := fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", p.apiURL, externalID)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformTwitter, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformTwitter,
			fmt.Sprintf("Twitter API error: %d - %s", resp.StatusCode, respBody))
	}

	var result struct {
		Data struct {
			PublicMetrics struct {
				LikeCount       int `json:"like_count"`
				RetweetCount    int `json:"retweet_count"`
				ReplyCount      int `json:"reply_count"`
				ImpressionCount int `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failure(models.PlatformTwitter, err.Error())
	}

	res := success(models.PlatformTwitter)
	res.Stats = map[string]interface{}{
		"likes":       result.Data.PublicMetrics.LikeCount,
		"retweets":    result.Data.PublicMetrics.RetweetCount,
		"replies":     result.Data.PublicMetrics.ReplyCount,
		"impressions": result.Data.PublicMetrics.ImpressionCount,
	}
	return res
}
