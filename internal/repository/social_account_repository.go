package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

const (
	AccountStatusActive  = "active"
	AccountStatusExpired = "expired"
)

type SocialAccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	// ListExpiring returns active accounts whose token expires before the
	// given time, soonest first.
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]*models.SocialAccount, error)
	// SetToken stores renewed tokens. It only applies while the stored
	// access token still equals oldAccessToken and reports whether it did.
	// An empty refreshToken keeps the current one.
	SetToken(ctx context.Context, id int64, oldAccessToken, accessToken, refreshToken string, expiresAt time.Time) (bool, error)
	// MarkExpired takes an account out of refresh rotation.
	MarkExpired(ctx context.Context, id int64) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const accountColumns = `id, user_id, platform, account_id, account_name, account_username,
	access_token, refresh_token, token_expires_at, account_status`

func scanAccount(row interface{ Scan(...any) error }) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccountUsername, &sa.AccessToken, &sa.RefreshToken, &sa.TokenExpiresAt, &sa.AccountStatus)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + `
		FROM social_accounts
		WHERE id = $1
	`
	sa, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return sa, nil
}

func (r *socialAccountRepository) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + `
		FROM social_accounts
		WHERE account_status = $1 AND token_expires_at <= $2
		ORDER BY token_expires_at
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, AccountStatusActive, before, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("list expiring accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, sa)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}

func (r *socialAccountRepository) SetToken(ctx context.Context, id int64, oldAccessToken, accessToken, refreshToken string, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE social_accounts
		SET access_token = $1,
			refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
			token_expires_at = $3
		WHERE id = $4 AND access_token = $5
	`
	result, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id, oldAccessToken)
	if err != nil {
		slog.Info(err.Error())
		return false, fmt.Errorf("set token of account %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *socialAccountRepository) MarkExpired(ctx context.Context, id int64) error {
	query := `UPDATE social_accounts SET account_status = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, AccountStatusExpired, id); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("mark account %d expired: %w", id, err)
	}
	return nil
}
