package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const (
	instagramGraphURL   = "https://graph.instagram.com/v21.0"
	instagramRefreshURL = "https://graph.instagram.com/refresh_access_token"
)

type instagramService struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewInstagramProcessor publishes through the Instagram Graph API content
// publishing flow: create a media container, then publish it.
func NewInstagramProcessor(secretKey string, client *http.Client) TargetProcessor {
	return newInstagramService(secretKey, instagramGraphURL, client)
}

func newInstagramService(secretKey, baseURL string, client *http.Client) *instagramService {
	if client == nil {
		client = http.DefaultClient
	}
	return &instagramService{secretKey: secretKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (ig *instagramService) Publish(ctx context.Context, req TargetRequest) (TargetResult, error) {
	accessToken, err := utils.Decrypt(req.Account.AccessToken, []byte(ig.secretKey))
	if err != nil {
		return rejected("token_invalid", "stored instagram token cannot be decrypted"), nil
	}
	if len(req.Media) == 0 {
		return rejected(CodeUnsupportedMedia, "instagram posts need at least one image or video"), nil
	}

	var containerID string
	if len(req.Media) == 1 {
		containerID, err = ig.createContainer(ctx, req.Account.AccountID, accessToken, mediaPayload(req.Media[0].FileType, req.Media[0].FileURL, req.Post.Caption, false))
	} else {
		containerID, err = ig.createCarousel(ctx, req, accessToken)
	}
	if err != nil {
		return resultFromError(err)
	}

	mediaID, err := ig.publishContainer(ctx, req.Account.AccountID, containerID, accessToken)
	if err != nil {
		return resultFromError(err)
	}

	return TargetResult{
		Success:     true,
		ExternalID:  mediaID,
		ExternalURL: ig.permalink(ctx, mediaID, accessToken),
	}, nil
}

func mediaPayload(fileType, fileURL, caption string, carouselItem bool) map[string]any {
	payload := map[string]any{}
	if strings.HasPrefix(fileType, "video/") {
		payload["video_url"] = fileURL
		payload["media_type"] = "REELS"
		if carouselItem {
			payload["media_type"] = "VIDEO"
		}
	} else {
		payload["image_url"] = fileURL
	}
	if carouselItem {
		payload["is_carousel_item"] = true
	} else {
		payload["caption"] = caption
	}
	return payload
}

func (ig *instagramService) createCarousel(ctx context.Context, req TargetRequest, accessToken string) (string, error) {
	children := make([]string, 0, len(req.Media))
	for _, asset := range req.Media {
		if asset.FileURL == "" {
			return "", &RejectionError{Code: CodeUnsupportedMedia, Message: fmt.Sprintf("media asset %d has no url", asset.ID)}
		}
		id, err := ig.createContainer(ctx, req.Account.AccountID, accessToken, mediaPayload(asset.FileType, asset.FileURL, "", true))
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	return ig.createContainer(ctx, req.Account.AccountID, accessToken, map[string]any{
		"media_type": "CAROUSEL",
		"caption":    req.Post.Caption,
		"children":   children,
	})
}

func (ig *instagramService) createContainer(ctx context.Context, accountID, accessToken string, payload map[string]any) (string, error) {
	payload["access_token"] = accessToken

	var result struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, ig.client, fmt.Sprintf("%s/%s/media", ig.baseURL, accountID), "", payload, &result, classifyInstagram); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no media ID returned from Instagram")
	}
	return result.ID, nil
}

func (ig *instagramService) publishContainer(ctx context.Context, accountID, containerID, accessToken string) (string, error) {
	payload := map[string]any{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, ig.client, fmt.Sprintf("%s/%s/media_publish", ig.baseURL, accountID), "", payload, &result, classifyInstagram); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no published media ID returned from Instagram")
	}
	return result.ID, nil
}

// permalink is informational; a lookup failure leaves the url empty.
func (ig *instagramService) permalink(ctx context.Context, mediaID, accessToken string) string {
	q := url.Values{}
	q.Set("fields", "permalink")
	q.Set("access_token", accessToken)

	var result struct {
		Permalink string `json:"permalink"`
	}
	if err := getJSON(ctx, ig.client, fmt.Sprintf("%s/%s?%s", ig.baseURL, mediaID, q.Encode()), &result, classifyInstagram); err != nil {
		return ""
	}
	return result.Permalink
}

type instagramTokenRefresher struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewInstagramTokenRefresher renews long-lived Instagram tokens. Instagram
// refreshes a token with the token itself.
func NewInstagramTokenRefresher(client *http.Client) TokenRefresher {
	return newInstagramTokenRefresher(instagramRefreshURL, client)
}

func newInstagramTokenRefresher(refreshURL string, client *http.Client) *instagramTokenRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &instagramTokenRefresher{url: refreshURL, client: client, now: time.Now}
}

func (r *instagramTokenRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", refreshToken)

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := getJSON(ctx, r.client, r.url+"?"+q.Encode(), &result, classifyInstagram); err != nil {
		return Token{}, err
	}

	return Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    r.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

func classifyInstagram(status int, body []byte) error {
	var resp transfer.InstagramErrorResponse
	_ = json.Unmarshal(body, &resp)

	message := resp.Error.Message
	if message == "" {
		message = fmt.Sprintf("unexpected status code from Instagram: %d", status)
	}
	if retryableStatus(status) || resp.Error.IsTransient {
		return fmt.Errorf("instagram: %s (status %d)", message, status)
	}
	return &RejectionError{Code: fmt.Sprintf("instagram_%d", resp.Error.Code), Message: message}
}
