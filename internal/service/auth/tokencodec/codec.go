package tokencodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/akotlyarov/lingua/internal/apperrors"
	"github.com/akotlyarov/lingua/internal/models"
)

const (
	defaultSigningMethod   = "HS256"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour

	minSecretLen = 16
)

type Claims struct {
	jwt.RegisteredClaims
}

// Codec signs and verifies the two token classes.
// Access and refresh tokens are signed with separate secrets so leaking the
// short-lived access secret never lets anyone mint long-lived refresh tokens
type Config struct {
	// Secrets per token class, 16 bytes minimum each
	// Required to be set and to differ from each other
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set the default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set the defaults are used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Codec struct {
	accessSecret  []byte
	refreshSecret []byte

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) < minSecretLen || len(cfg.RefreshSecret) < minSecretLen {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", minSecretLen)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		alg:           jwt.GetSigningMethod(cfg.Alg),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

// SignAccess mints a short-lived access token for the user
func (c *Codec) SignAccess(userID uuid.UUID) (models.IssuedToken, error) {
	return c.sign(userID, c.accessSecret, c.accessTTL)
}

// SignRefresh mints a long-lived refresh token for the user.
// A fresh token always gets a full expiry window, never an extension
func (c *Codec) SignRefresh(userID uuid.UUID) (models.IssuedToken, error) {
	return c.sign(userID, c.refreshSecret, c.refreshTTL)
}

func (c *Codec) sign(userID uuid.UUID, secret []byte, ttl time.Duration) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		c.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   userID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
		},
	)

	signed, err := token.SignedString(secret)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// VerifyAccess checks signature and expiry of an access token and returns its subject
func (c *Codec) VerifyAccess(token string) (uuid.UUID, error) {
	return c.verify(token, c.accessSecret)
}

// VerifyRefresh checks signature and expiry of a refresh token and returns its subject
func (c *Codec) VerifyRefresh(token string) (uuid.UUID, error) {
	return c.verify(token, c.refreshSecret)
}

func (c *Codec) verify(token string, secret []byte) (uuid.UUID, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	default:
		// Wrong secret, broken signature, expired and everything else
		// collapse into a single verification failure
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject: %w", apperrors.ErrTokenInvalid, err)
	}

	return userID, nil
}

// ExpiresAt extracts the expiry claim without verifying the signature.
// Used for persistence bookkeeping of tokens this codec just minted, so a
// missing claim is an invariant violation, not a user error
func (c *Codec) ExpiresAt(token string) (time.Time, error) {
	claims := &Claims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, apperrors.ErrTokenMissingExpiry
	}

	return claims.ExpiresAt.Time, nil
}
