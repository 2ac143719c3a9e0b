package domain

import "time"

// UserCredentials is the persisted record for one user: the address the
// digest is built for plus the two opaque OAuth tokens. SummaryTime is the
// preferred daily delivery time in "HH:MM" form.
type UserCredentials struct {
	Email        string    `db:"email" json:"email"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	SummaryTime  string    `db:"summary_time" json:"summary_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultSummaryTime is applied when a user record is saved without one.
const DefaultSummaryTime = "08:00"
