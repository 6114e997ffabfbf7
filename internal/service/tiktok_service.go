package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const tiktokAPIURL = "https://open.tiktokapis.com/v2"

// TikTok error codes that clear up on their own.
var tiktokTransientCodes = map[string]bool{
	"rate_limit_exceeded":              true,
	"internal_error":                   true,
	"spam_risk_too_many_pending_share": true,
}

type tiktokService struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewTiktokProcessor publishes through the TikTok content posting API with
// media pulled from its public url.
func NewTiktokProcessor(secretKey string, client *http.Client) TargetProcessor {
	return newTiktokService(secretKey, tiktokAPIURL, client)
}

func newTiktokService(secretKey, baseURL string, client *http.Client) *tiktokService {
	if client == nil {
		client = http.DefaultClient
	}
	return &tiktokService{secretKey: secretKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *tiktokService) Publish(ctx context.Context, req TargetRequest) (TargetResult, error) {
	accessToken, err := utils.Decrypt(req.Account.AccessToken, []byte(s.secretKey))
	if err != nil {
		return rejected("token_invalid", "stored tiktok token cannot be decrypted"), nil
	}
	if len(req.Media) == 0 {
		return rejected(CodeUnsupportedMedia, "tiktok posts need a video or photos"), nil
	}

	var (
		endpoint string
		payload  any
	)
	if strings.HasPrefix(req.Media[0].FileType, "video/") {
		endpoint = s.baseURL + "/post/publish/video/init/"
		payload = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 req.Post.Caption,
				PrivacyLevel:          "PUBLIC_TO_EVERYONE",
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{
				Source:   "PULL_FROM_URL",
				VideoURL: req.Media[0].FileURL,
			},
		}
	} else {
		endpoint = s.baseURL + "/post/publish/content/init/"
		payload = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:        req.Post.Title,
				Description:  req.Post.Caption,
				PrivacyLevel: "PUBLIC_TO_EVERYONE",
				AutoAddMusic: true,
			},
			SourceInfo: transfer.PhotoSourceInfo{
				Source:      "PULL_FROM_URL",
				PhotoImages: photoURLs(req.Media),
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}
	}

	var result transfer.TikTokUploadResponse
	if err := postJSON(ctx, s.client, endpoint, accessToken, payload, &result, classifyTiktok); err != nil {
		return resultFromError(err)
	}
	if result.Error.Code != "" && result.Error.Code != "ok" {
		return resultFromError(tiktokError(0, result.Error))
	}
	if result.Data.PublishID == "" {
		return TargetResult{}, fmt.Errorf("no publish id returned from TikTok")
	}

	return TargetResult{Success: true, ExternalID: result.Data.PublishID}, nil
}

type tiktokTokenRefresher struct {
	url          string
	clientKey    string
	clientSecret string
	client       *http.Client
	now          func() time.Time
}

// NewTiktokTokenRefresher renews TikTok access tokens with the app's client
// credentials. TikTok rotates the refresh token on every call.
func NewTiktokTokenRefresher(clientKey, clientSecret string, client *http.Client) TokenRefresher {
	return newTiktokTokenRefresher(tiktokAPIURL+"/oauth/token/", clientKey, clientSecret, client)
}

func newTiktokTokenRefresher(tokenURL, clientKey, clientSecret string, client *http.Client) *tiktokTokenRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &tiktokTokenRefresher{
		url:          tokenURL,
		clientKey:    clientKey,
		clientSecret: clientSecret,
		client:       client,
		now:          time.Now,
	}
}

func (r *tiktokTokenRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	data := url.Values{}
	data.Set("client_key", r.clientKey)
	data.Set("client_secret", r.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	var result transfer.TiktokTokenResponse
	if err := postForm(ctx, r.client, r.url, data, &result, classifyTiktokOAuth); err != nil {
		return Token{}, err
	}
	if result.Error != "" {
		return Token{}, tiktokOAuthError(http.StatusOK, result)
	}

	return Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    r.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

func classifyTiktokOAuth(status int, body []byte) error {
	var resp transfer.TiktokTokenResponse
	_ = json.Unmarshal(body, &resp)
	return tiktokOAuthError(status, resp)
}

func tiktokOAuthError(status int, resp transfer.TiktokTokenResponse) error {
	message := resp.ErrorDescription
	if message == "" {
		message = fmt.Sprintf("unexpected status code from TikTok: %d", status)
	}
	if retryableStatus(status) || resp.Error == "" || tiktokTransientCodes[resp.Error] {
		return fmt.Errorf("tiktok: refresh token: %s", message)
	}
	return &RejectionError{Code: "tiktok_" + resp.Error, Message: message}
}

func photoURLs(media []*models.MediaAsset) []string {
	photos := make([]string, 0, len(media))
	for _, asset := range media {
		photos = append(photos, asset.FileURL)
	}
	return photos
}

func classifyTiktok(status int, body []byte) error {
	var resp transfer.TikTokUploadResponse
	_ = json.Unmarshal(body, &resp)
	return tiktokError(status, resp.Error)
}

func tiktokError(status int, e transfer.TiktokError) error {
	message := e.Message
	if message == "" {
		message = fmt.Sprintf("unexpected status code from TikTok: %d", status)
	}
	if retryableStatus(status) || tiktokTransientCodes[e.Code] {
		return fmt.Errorf("tiktok: %s (%s)", message, e.Code)
	}
	code := e.Code
	if code == "" {
		code = CodeRejected
	}
	return &RejectionError{Code: "tiktok_" + code, Message: message}
}
