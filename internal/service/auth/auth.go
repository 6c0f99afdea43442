package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akotlyarov/lingua/internal/apperrors"
	"github.com/akotlyarov/lingua/internal/models"
	"github.com/akotlyarov/lingua/internal/repository"
	"github.com/akotlyarov/lingua/internal/service/auth/tokencodec"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "lingua_refresh"
	defaultRefreshCookiePath = "/api/auth"
)

type Config struct {
	// Hasher used during registration and login
	// BcryptHasher is used if not set
	Hasher PasswordHasher

	// Header and scheme the access token is expected in
	// If not set the defaults are used: "Authorization", "Bearer"
	AccessHeaderName string
	AccessAuthScheme string

	// Refresh cookie contract: HTTP-only, scoped to the auth path prefix
	RefreshCookieName     string
	RefreshCookiePath     string
	RefreshCookieSecure   bool
	RefreshCookieSameSite http.SameSite
}

// AuthService owns the session lifecycle: it issues token pairs, keeps the
// hashed refresh records in storage and rotates them on every redemption
type AuthService struct {
	codec   *tokencodec.Codec
	hasher  PasswordHasher
	storage repository.Storage

	accessHeaderName string
	accessAuthScheme string

	refreshCookieName     string
	refreshCookiePath     string
	refreshCookieSecure   bool
	refreshCookieSameSite http.SameSite

	// Digest compared against when the email is unknown, so login takes the
	// same time whether the account exists or not
	dummyHash string
}

func NewService(cfg Config, codec *tokencodec.Codec, storage repository.Storage) (*AuthService, error) {
	if codec == nil {
		return nil, errors.New("token codec must not be nil")
	}
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)
	setDefaultString(&cfg.RefreshCookiePath, defaultRefreshCookiePath)

	if cfg.RefreshCookieSameSite == 0 {
		cfg.RefreshCookieSameSite = http.SameSiteLaxMode
	}

	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("error while preparing dummy hash. Err: %w", err)
	}

	return &AuthService{
		codec:   codec,
		hasher:  hasher,
		storage: storage,

		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,

		refreshCookieName:     cfg.RefreshCookieName,
		refreshCookiePath:     cfg.RefreshCookiePath,
		refreshCookieSecure:   cfg.RefreshCookieSecure,
		refreshCookieSameSite: cfg.RefreshCookieSameSite,

		dummyHash: dummyHash,
	}, nil
}

// Register creates a user and logs them in.
// Duplicate email returns apperrors.ErrEmailTaken
func (s *AuthService) Register(ctx context.Context, name string, email string, password string) (models.User, models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Name:           name,
		Email:          email,
		HashedPassword: hash,
	})
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.mintPair(ctx, s.storage, user.ID)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	return user, pair, nil
}

// Login verifies credentials and issues a fresh token pair.
// Unknown email and wrong password are the same apperrors.ErrInvalidCredentials
// so responses never reveal whether an account exists
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, email)

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Burn the same bcrypt work as the known-email path
		_ = s.hasher.Compare(s.dummyHash, password)
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	default:
		return models.User{}, models.TokenPair{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.mintPair(ctx, s.storage, user.ID)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a brand
// new pair is minted with a full expiry window. Refresh tokens are single use,
// presenting the same one twice fails with apperrors.ErrRefreshInvalid.
// Revoke and save run in one transaction, so two calls racing on the same
// token produce at most one winner
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	userID, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshInvalid, err)
	}

	var pair models.TokenPair
	err = s.storage.InTx(ctx, func(store repository.Storage) error {
		record, err := store.Refresh().GetValid(ctx, hashToken(refreshToken))
		if err != nil {
			return err
		}

		if _, err := store.Refresh().Revoke(ctx, record.ID); err != nil {
			return err
		}

		pair, err = s.mintPair(ctx, store, userID)
		return err
	})

	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound), errors.Is(err, apperrors.ErrRefreshTokenRevoked):
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshInvalid, err)
	default:
		return models.TokenPair{}, err
	}
}

// Logout revokes the session the token belongs to.
// It never fails visibly: nil, malformed, expired or already revoked tokens
// leave nothing to do and that is fine. Other devices keep their sessions
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}

	if _, err := s.codec.VerifyRefresh(refreshToken); err != nil {
		return
	}

	record, err := s.storage.Refresh().GetValid(ctx, hashToken(refreshToken))
	if err != nil {
		return
	}

	_, _ = s.storage.Refresh().Revoke(ctx, record.ID)
}

// AuthenticateRequest resolves the subject of the access token in the request.
// Stateless on purpose: signature and expiry are the whole check, no storage
// lookup happens here
func (s *AuthService) AuthenticateRequest(r *http.Request) (uuid.UUID, error) {
	header := r.Header.Get(s.accessHeaderName)

	prefix := s.accessAuthScheme + " "
	if !strings.HasPrefix(header, prefix) {
		return uuid.Nil, fmt.Errorf("%w: no bearer token", apperrors.ErrTokenInvalid)
	}

	return s.codec.VerifyAccess(header[len(prefix):])
}

// SetRefreshCookie attaches the refresh token to the response.
// HTTP-only and path-scoped so scripts and non-auth endpoints never see it
func (s *AuthService) SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     s.refreshCookiePath,
		Expires:  refresh.ExpiresAt,
		HttpOnly: true,
		Secure:   s.refreshCookieSecure,
		SameSite: s.refreshCookieSameSite,
	})
}

// ClearRefreshCookie expires the refresh cookie on the client
func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     s.refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.refreshCookieSecure,
		SameSite: s.refreshCookieSameSite,
	})
}

// ReadRefreshCookie returns the refresh token from the request cookie.
// Empty string when the cookie is absent
func (s *AuthService) ReadRefreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetTokenPairToRequest attaches both tokens to an outbound request the same
// way a browser client would. Used by tests and the API client
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(&http.Cookie{Name: s.refreshCookieName, Value: pair.Refresh.Value, Path: s.refreshCookiePath})
}

// mintPair signs a new access and refresh token and persists the digest of
// the refresh token. expires_at is taken from the token's own exp claim so
// the record can never outlive the credential it tracks
func (s *AuthService) mintPair(ctx context.Context, store repository.Storage, userID uuid.UUID) (models.TokenPair, error) {
	access, err := s.codec.SignAccess(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := s.codec.SignRefresh(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	expiresAt, err := s.codec.ExpiresAt(refresh.Value)
	if err != nil {
		return models.TokenPair{}, err
	}

	_, err = store.Refresh().Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hashToken(refresh.Value),
		CreatedAt: time.Now().Truncate(time.Second),
		ExpiresAt: expiresAt,
		RevokedAt: nil,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// hashToken digests a bearer token for storage. Leaking the table must not
// leak usable credentials
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
