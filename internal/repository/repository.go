package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/akotlyarov/lingua/internal/models"
)

type CreateUserParams struct {
	Name           string
	Email          string
	HashedPassword string
}

// User repository interface
type UserRepo interface {
	// Create user
	// Must return apperrors.ErrEmailTaken if the email is already registered
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id or email
	// Must return apperrors.ErrUserNotFound if user not found
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Set the user's learning goal and reset progress counters
	// Must return apperrors.ErrUserNotFound if user not found
	SetGoal(ctx context.Context, userID uuid.UUID, goal models.Goal) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Persist a new refresh token record
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return a record only while it is redeemable: not revoked and not expired.
	// Revoked, expired and never-existed all collapse into
	// apperrors.ErrRefreshTokenNotFound so lookups don't leak record history
	GetValid(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Set revoked_at on a record that is not revoked yet.
	// Exactly one of any concurrent callers wins; the others get
	// apperrors.ErrRefreshTokenRevoked. Revoked is terminal
	Revoke(ctx context.Context, tokenID uuid.UUID) (models.RefreshToken, error)

	// Delete records whose expiry is older than the cutoff.
	// Revoked but unexpired records are kept for audit
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Storage bundles repositories over one database handle
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn within a single database transaction
	InTx(ctx context.Context, fn func(s Storage) error) error
}
