package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/postflow/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// sniffLen is how many bytes filetype needs to recognise a container.
const sniffLen = 261

type youtubeService struct {
	secretKey string
	media     MediaStore
	opts      []option.ClientOption
}

// NewYoutubeProcessor uploads the first media asset of a post as a YouTube
// video, streaming it from the media store.
func NewYoutubeProcessor(secretKey string, media MediaStore, opts ...option.ClientOption) TargetProcessor {
	return &youtubeService{secretKey: secretKey, media: media, opts: opts}
}

type youtubeTokenRefresher struct {
	conf   *oauth2.Config
	client *http.Client
}

// NewYoutubeTokenRefresher renews Google access tokens for the YouTube
// upload scope.
func NewYoutubeTokenRefresher(clientID, clientSecret string, client *http.Client) TokenRefresher {
	return newYoutubeTokenRefresher(clientID, clientSecret, google.Endpoint, client)
}

func newYoutubeTokenRefresher(clientID, clientSecret string, endpoint oauth2.Endpoint, client *http.Client) *youtubeTokenRefresher {
	return &youtubeTokenRefresher{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{youtube.YoutubeUploadScope},
			Endpoint:     endpoint,
		},
		client: client,
	}
}

func (r *youtubeTokenRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}

	token, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && !retryableStatus(rerr.Response.StatusCode) {
			code := rerr.ErrorCode
			if code == "" {
				code = CodeRejected
			}
			return Token{}, &RejectionError{Code: "youtube_" + code, Message: rerr.ErrorDescription}
		}
		return Token{}, fmt.Errorf("youtube: refresh token: %w", err)
	}

	return Token{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, ExpiresAt: token.Expiry}, nil
}

func (s *youtubeService) Publish(ctx context.Context, req TargetRequest) (TargetResult, error) {
	accessToken, err := utils.Decrypt(req.Account.AccessToken, []byte(s.secretKey))
	if err != nil {
		return rejected("token_invalid", "stored youtube token cannot be decrypted"), nil
	}
	if len(req.Media) == 0 {
		return rejected(CodeUnsupportedMedia, "youtube posts need a video"), nil
	}

	body, err := s.media.Open(ctx, req.Media[0].FileName)
	if err != nil {
		return TargetResult{}, err
	}
	defer body.Close()

	reader := bufio.NewReaderSize(body, sniffLen)
	head, err := reader.Peek(sniffLen)
	if err != nil && len(head) == 0 {
		return TargetResult{}, fmt.Errorf("read video header: %w", err)
	}
	if !filetype.IsVideo(head) {
		return rejected(CodeUnsupportedMedia, "youtube only accepts video files"), nil
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	service, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, s.opts...)...)
	if err != nil {
		return TargetResult{}, fmt.Errorf("create youtube service: %w", err)
	}

	title := req.Post.Title
	if title == "" {
		title = req.Post.Caption
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: req.Post.Caption,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	response, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(reader).Context(ctx).Do()
	if err != nil {
		return resultFromError(classifyGoogle(err))
	}

	return TargetResult{
		Success:     true,
		ExternalID:  response.Id,
		ExternalURL: "https://youtu.be/" + response.Id,
	}, nil
}

func classifyGoogle(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && !retryableStatus(gerr.Code) {
		reason := "rejected"
		if len(gerr.Errors) > 0 && gerr.Errors[0].Reason != "" {
			reason = gerr.Errors[0].Reason
		}
		return &RejectionError{Code: "youtube_" + reason, Message: gerr.Message}
	}
	return err
}
