package auth

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akotlyarov/lingua/internal/apperrors"
	"github.com/akotlyarov/lingua/internal/models"
	"github.com/akotlyarov/lingua/internal/repository/postgres"
	"github.com/akotlyarov/lingua/internal/service/auth/tokencodec"
	"github.com/akotlyarov/lingua/internal/testutil"
)

const (
	testAccessSecret  = "access-secret-at-least-16b"
	testRefreshSecret = "refresh-secret-at-least-16b"
)

func newTestCodec(t *testing.T, accessTTL time.Duration, refreshTTL time.Duration) *tokencodec.Codec {
	t.Helper()

	codec, err := tokencodec.New(tokencodec.Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	})
	require.NoError(t, err, "codec should be created without errors")
	return codec
}

func Test_AuthService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	withTx := func(dbpool *pgxpool.Pool, accessTTL time.Duration, refreshTTL time.Duration, t *testing.T, fn func(s *AuthService)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			s, err := NewService(Config{}, newTestCodec(t, accessTTL, refreshTTL), postgres.NewStorage(tx))
			require.NoError(t, err, "auth service couldn't be started")

			fn(s)
		})
	}

	t.Run("new auth service defaults", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			s, err := NewService(Config{}, newTestCodec(t, 0, 0), postgres.NewStorage(tx))
			require.NoError(t, err, "auth service should be created without errors")

			require.Equal(t, defaultAccessHeaderName, s.accessHeaderName, "default access header name should be set")
			require.Equal(t, defaultAccessAuthScheme, s.accessAuthScheme, "default access auth scheme should be set")
			require.Equal(t, defaultRefreshCookieName, s.refreshCookieName, "default refresh cookie name should be set")
			require.Equal(t, defaultRefreshCookiePath, s.refreshCookiePath, "default refresh cookie path should be set")
			require.Equal(t, BcryptHasher{}, s.hasher, "default hasher should be set to BcryptHasher")
		})
	})

	t.Run("nil deps rejected", func(t *testing.T) {
		_, err := NewService(Config{}, nil, nil)
		require.Error(t, err)
	})

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				user, pair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")

				require.NoError(t, err, "registering new user should be ok")
				require.Equal(t, "olya@example.com", user.Email)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			})
		})

		t.Run("fail if email taken", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, _, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				_, _, err = s.Register(t.Context(), "Evil Olya", "olya@example.com", "other-password")

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrEmailTaken)
			})
		})

		t.Run("stores digest of refresh token, not the token", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, pair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				record, err := s.storage.Refresh().GetValid(t.Context(), hashToken(pair.Refresh.Value))
				require.NoError(t, err, "record should be findable by hash of the bearer token")
				require.NotEqual(t, pair.Refresh.Value, record.TokenHash, "raw token must never be stored")
				require.WithinDuration(t, pair.Refresh.ExpiresAt, record.ExpiresAt, time.Second, "record expiry should come from the token's exp claim")
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("existing user ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, _, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				user, pair, err := s.Login(t.Context(), "olya@example.com", "StrongEnoughPassword")

				require.NoError(t, err)
				require.Equal(t, "olya@example.com", user.Email)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			})
		})

		tests := []struct {
			name     string
			email    string
			password string
		}{
			{
				name:     "fail if wrong password",
				email:    "olya@example.com",
				password: "wrong-password",
			},
			{
				name:     "fail if email unknown",
				email:    "nobody@example.com",
				password: "StrongEnoughPassword",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
					_, _, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
					require.NoError(t, err)

					_, _, err = s.Login(t.Context(), tt.email, tt.password)

					require.Error(t, err)
					// Same error for both cases, no account enumeration
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				})
			})
		}
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("rotate once ok", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, initialPair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				newPair, err := s.Refresh(t.Context(), initialPair.Refresh.Value)

				require.NoError(t, err)
				require.NotEqual(t, initialPair.Access.Value, newPair.Access.Value, "new access token should be different")
				require.NotEqual(t, initialPair.Refresh.Value, newPair.Refresh.Value, "new refresh token should be different")
			})
		})

		t.Run("stale token fails, successor keeps working", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, pair1, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				pair2, err := s.Refresh(t.Context(), pair1.Refresh.Value)
				require.NoError(t, err, "first redemption should succeed")

				// The pre-rotation token is single use and already burned
				_, err = s.Refresh(t.Context(), pair1.Refresh.Value)
				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrRefreshInvalid)

				// The rotation chain continues from the successor
				pair3, err := s.Refresh(t.Context(), pair2.Refresh.Value)
				require.NoError(t, err)
				require.NotEqual(t, pair2.Refresh.Value, pair3.Refresh.Value)
			})
		})

		t.Run("garbage token fails", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, err := s.Refresh(t.Context(), "garbage")

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrRefreshInvalid)
			})
		})

		t.Run("expired refresh token fails", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, -time.Minute, t, func(s *AuthService) {
				_, pair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrRefreshInvalid)
			})
		})

		t.Run("signed but unknown to the store fails", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, pair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				// Burn the record with logout, signature stays valid
				s.Logout(t.Context(), pair.Refresh.Value)

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrRefreshInvalid)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("revokes the session", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, pair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				s.Logout(t.Context(), pair.Refresh.Value)

				_, err = s.storage.Refresh().GetValid(t.Context(), hashToken(pair.Refresh.Value))
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "record should be revoked after logout")
			})
		})

		t.Run("is idempotent and never fails", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, pair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				// None of these should panic or have any observable effect
				s.Logout(t.Context(), pair.Refresh.Value)
				s.Logout(t.Context(), pair.Refresh.Value)
				s.Logout(t.Context(), "garbage")
				s.Logout(t.Context(), "")
			})
		})

		t.Run("does not touch other sessions", func(t *testing.T) {
			withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
				_, pairA, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				// Second device logs in
				_, pairB, err := s.Login(t.Context(), "olya@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				s.Logout(t.Context(), pairA.Refresh.Value)

				_, err = s.Refresh(t.Context(), pairB.Refresh.Value)
				require.NoError(t, err, "the other device's session should still refresh fine")
			})
		})
	})

	t.Run("AuthenticateRequest", func(t *testing.T) {
		withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
			user, pair, err := s.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			t.Run("bearer token ok", func(t *testing.T) {
				r := httptest.NewRequest(http.MethodGet, "/me", nil)
				r.Header.Set("Authorization", "Bearer "+pair.Access.Value)

				got, err := s.AuthenticateRequest(r)

				require.NoError(t, err)
				assert.Equal(t, user.ID, got)
			})

			t.Run("missing header fails", func(t *testing.T) {
				r := httptest.NewRequest(http.MethodGet, "/me", nil)

				_, err := s.AuthenticateRequest(r)

				require.Error(t, err)
			})

			t.Run("wrong scheme fails", func(t *testing.T) {
				r := httptest.NewRequest(http.MethodGet, "/me", nil)
				r.Header.Set("Authorization", "Basic "+pair.Access.Value)

				_, err := s.AuthenticateRequest(r)

				require.Error(t, err)
			})

			t.Run("refresh token is not an access token", func(t *testing.T) {
				r := httptest.NewRequest(http.MethodGet, "/me", nil)
				r.Header.Set("Authorization", "Bearer "+pair.Refresh.Value)

				_, err := s.AuthenticateRequest(r)

				require.Error(t, err)
			})
		})
	})

	t.Run("cookies", func(t *testing.T) {
		withTx(pg.Pool, 15*time.Minute, 24*time.Hour, t, func(s *AuthService) {
			refresh := models.IssuedToken{Value: "refresh-token-value", ExpiresAt: time.Now().Add(24 * time.Hour)}

			t.Run("set and read back", func(t *testing.T) {
				w := httptest.NewRecorder()
				s.SetRefreshCookie(w, refresh)

				cookies := w.Result().Cookies()
				require.Len(t, cookies, 1)
				cookie := cookies[0]
				assert.Equal(t, defaultRefreshCookieName, cookie.Name)
				assert.Equal(t, refresh.Value, cookie.Value)
				assert.Equal(t, defaultRefreshCookiePath, cookie.Path, "cookie must be scoped to the auth path prefix")
				assert.True(t, cookie.HttpOnly, "cookie must be http-only")
				assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

				r := httptest.NewRequest(http.MethodPost, defaultRefreshCookiePath+"/refresh", nil)
				r.AddCookie(cookie)
				assert.Equal(t, refresh.Value, s.ReadRefreshCookie(r))
			})

			t.Run("clear expires the cookie", func(t *testing.T) {
				w := httptest.NewRecorder()
				s.ClearRefreshCookie(w)

				cookies := w.Result().Cookies()
				require.Len(t, cookies, 1)
				assert.Empty(t, cookies[0].Value)
				assert.Negative(t, cookies[0].MaxAge)
			})

			t.Run("read without cookie", func(t *testing.T) {
				r := httptest.NewRequest(http.MethodPost, defaultRefreshCookiePath+"/refresh", nil)
				assert.Empty(t, s.ReadRefreshCookie(r))
			})
		})
	})
}

// Two goroutines race to redeem one refresh token against the shared pool.
// The row-level CAS on revoked_at guarantees at most one of them wins
func Test_AuthService_ConcurrentRefresh(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	s, err := NewService(Config{}, newTestCodec(t, 15*time.Minute, 24*time.Hour), postgres.NewStorage(pg.Pool))
	require.NoError(t, err)

	_, pair, err := s.Register(t.Context(), "Racer", "racer@example.com", "StrongEnoughPassword")
	require.NoError(t, err)

	const attempts = 2
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Refresh(t.Context(), pair.Refresh.Value)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, apperrors.ErrRefreshInvalid, "loser must see the invalid-refresh error")
			lost++
		}
	}

	require.Equal(t, 1, won, "exactly one concurrent refresh should succeed")
	require.Equal(t, attempts-1, lost)
}
