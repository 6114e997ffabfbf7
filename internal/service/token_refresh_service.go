package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// Token is a renewed platform credential in plaintext. An empty
// RefreshToken means the platform kept the old one.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher exchanges a refresh credential for a new access token. A
// *RejectionError means the credential is dead and a person has to
// reconnect the account.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

type TokenRefresherFunc func(ctx context.Context, refreshToken string) (Token, error)

func (f TokenRefresherFunc) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	return f(ctx, refreshToken)
}

type TokenRefreshService interface {
	// RefreshExpiring renews every destination token that expires soon and
	// returns how many were stored.
	RefreshExpiring(ctx context.Context) (int, error)
}

type TokenRefreshOptions struct {
	Ahead       time.Duration
	BatchLimit  int
	Concurrency int
}

type tokenRefreshService struct {
	ac         repository.SocialAccountRepository
	refreshers map[string]TokenRefresher
	secretKey  string
	opts       TokenRefreshOptions
	now        func() time.Time
	log        *slog.Logger
}

func NewTokenRefreshService(
	ac repository.SocialAccountRepository,
	refreshers map[string]TokenRefresher,
	secretKey string,
	opts TokenRefreshOptions,
	logger *slog.Logger) TokenRefreshService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 100
	}
	return &tokenRefreshService{
		ac:         ac,
		refreshers: refreshers,
		secretKey:  secretKey,
		opts:       opts,
		now:        time.Now,
		log:        logger,
	}
}

func (s *tokenRefreshService) RefreshExpiring(ctx context.Context) (int, error) {
	accounts, err := s.ac.ListExpiring(ctx, s.now().Add(s.opts.Ahead), s.opts.BatchLimit)
	if err != nil {
		return 0, err
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		refreshed int
		errs      []error
	)
	semaphore := make(chan struct{}, s.opts.Concurrency)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			ok, err := s.refresh(ctx, acc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				refreshed++
			}
		}(acc)
	}
	wg.Wait()

	if len(accounts) > 0 {
		s.log.Info("token refresh", "expiring", len(accounts), "refreshed", refreshed, "errors", len(errs))
	}
	return refreshed, errors.Join(errs...)
}

func (s *tokenRefreshService) refresh(ctx context.Context, acc *models.SocialAccount) (bool, error) {
	log := s.log.With("account_id", acc.ID, "platform", acc.Platform)

	refresher, ok := s.refreshers[acc.Platform]
	if !ok {
		log.Debug("no token refresher for platform")
		return false, nil
	}

	// Instagram keeps its long-lived token in both columns.
	credential := acc.RefreshToken
	if credential == "" {
		credential = acc.AccessToken
	}
	plain, err := utils.Decrypt(credential, []byte(s.secretKey))
	if err != nil {
		log.Warn("stored refresh token cannot be decrypted")
		return false, s.ac.MarkExpired(ctx, acc.ID)
	}

	token, err := refresher.Refresh(ctx, plain)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			log.Warn("token refresh rejected, account needs reconnecting", "error_code", rej.Code, "error", rej.Message)
			return false, s.ac.MarkExpired(ctx, acc.ID)
		}
		return false, fmt.Errorf("refresh %s token of account %d: %w", acc.Platform, acc.ID, err)
	}
	if token.AccessToken == "" {
		return false, fmt.Errorf("refresh %s token of account %d: empty access token", acc.Platform, acc.ID)
	}

	accessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.secretKey))
	if err != nil {
		return false, err
	}
	var refreshToken string
	if token.RefreshToken != "" {
		if refreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.secretKey)); err != nil {
			return false, err
		}
	}

	stored, err := s.ac.SetToken(ctx, acc.ID, acc.AccessToken, accessToken, refreshToken, token.ExpiresAt)
	if err != nil {
		return false, err
	}
	if !stored {
		log.Info("token changed while refreshing, keeping the newer one")
		return false, nil
	}
	log.Debug("token refreshed", "expires_at", token.ExpiresAt)
	return true, nil
}
