package models

import (
	"time"

	"github.com/google/uuid"
)

// Server-side record of an issued refresh token.
// Only the sha256 digest of the bearer token is stored, never the token itself.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time // nil while the token is still redeemable
}

// Valid reports whether the record may still be redeemed at the given moment
func (t RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by the auth service on register, login and refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
