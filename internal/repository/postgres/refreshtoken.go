package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/akotlyarov/lingua/internal/apperrors"
	"github.com/akotlyarov/lingua/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, token_hash, created_at, expires_at, revoked_at
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken, token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.RevokedAt)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getValidToken = `-- name: GetValidRefreshToken
SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
FROM refresh_tokens
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
`

// GetValid returns a redeemable record only.
// Revoked, expired and missing records are indistinguishable from the
// caller's point of view: all three are ErrRefreshTokenNotFound
func (r *RefreshTokenRepo) GetValid(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getValidToken, tokenHash, time.Now())
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET revoked_at = $2
WHERE id = $1 AND revoked_at IS NULL
RETURNING id, user_id, token_hash, created_at, expires_at, revoked_at
`

const getTokenByID = `-- name: GetRefreshTokenByID
SELECT id FROM refresh_tokens
WHERE id = $1
`

// Revoke sets revoked_at once. The WHERE revoked_at IS NULL guard makes the
// update a compare-and-swap: when two rotations race on the same record only
// one of them observes an updated row, the loser gets ErrRefreshTokenRevoked
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenID uuid.UUID) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, revokeToken, tokenID, time.Now())
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either the record never existed or someone revoked it first
		existsRows, _ := r.DB.Query(ctx, getTokenByID, tokenID)
		_, existsErr := pgx.CollectOneRow(existsRows, pgx.RowTo[uuid.UUID])
		if existsErr == nil {
			return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
		}
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const deleteExpiredTokens = `-- name: DeleteExpiredRefreshTokens
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

// DeleteExpiredBefore removes records that expired before the cutoff.
// Expired records are dead weight: they can never be redeemed again, so only
// the retention window for audit decides how long they stay around
func (r *RefreshTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredTokens, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt)
	return t, err
}
