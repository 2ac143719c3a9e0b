// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"mailliam_server/core/domain"
	"mailliam_server/core/port/out"
)

// UserAdapter implements out.CredentialStore on PostgreSQL.
type UserAdapter struct {
	db *sqlx.DB
}

// NewUserAdapter creates a new UserAdapter.
func NewUserAdapter(db *sqlx.DB) *UserAdapter {
	return &UserAdapter{db: db}
}

// Get returns the stored credentials for one address.
func (a *UserAdapter) Get(ctx context.Context, email string) (*domain.UserCredentials, error) {
	var creds domain.UserCredentials
	query := `
		SELECT email, access_token, refresh_token, summary_time, created_at, updated_at
		FROM users
		WHERE email = $1`

	if err := a.db.GetContext(ctx, &creds, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}
	return &creds, nil
}

// Save upserts the credentials keyed by address. A re-registration replaces
// the stored tokens; SummaryTime falls back to the default when empty.
func (a *UserAdapter) Save(ctx context.Context, creds *domain.UserCredentials) error {
	summaryTime := creds.SummaryTime
	if summaryTime == "" {
		summaryTime = domain.DefaultSummaryTime
	}

	query := `
		INSERT INTO users (email, access_token, refresh_token, summary_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			summary_time = EXCLUDED.summary_time,
			updated_at = NOW()`

	_, err := a.db.ExecContext(ctx, query, creds.Email, creds.AccessToken, creds.RefreshToken, summaryTime)
	return err
}

var _ out.CredentialStore = (*UserAdapter)(nil)
