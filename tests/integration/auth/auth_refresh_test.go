package auth

import (
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akotlyarov/lingua/internal/models"
	"github.com/akotlyarov/lingua/internal/testutil"
	"github.com/akotlyarov/lingua/tests/integration"
)

const RefreshURL = "/api/auth/refresh"

func Test_AuthRefresh(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	sendRefresh := func(t *testing.T, srvURL string, s integration.Services, pair models.TokenPair) *http.Response {
		t.Helper()

		req, err := http.NewRequest(http.MethodPost, srvURL+RefreshURL, nil)
		require.NoError(t, err)
		s.AuthService.SetTokenPairToRequest(req, pair)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, "refresh request should always complete")
		return resp
	}

	t.Run("refresh rotates the pair", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			_, pair, err := s.AuthService.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			resp := sendRefresh(t, srvURL, s, pair)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))

			require.Equal(t, 1, len(resp.Cookies()))
			rotated := resp.Cookies()[0]
			require.NotEmpty(t, rotated.Value, "refresh cookie should not be empty")
			require.NotEqual(t, pair.Refresh.Value, rotated.Value, "refresh token should be changed after refresh")
		})
	})

	t.Run("refresh twice fails", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			_, pair, err := s.AuthService.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			resp1 := sendRefresh(t, srvURL, s, pair)
			_ = resp1.Body.Close()
			require.Equal(t, http.StatusOK, resp1.StatusCode)

			resp2 := sendRefresh(t, srvURL, s, pair)
			body2, err := io.ReadAll(resp2.Body)
			require.NoError(t, err)
			defer resp2.Body.Close() // nolint:errcheck

			require.Equalf(t, http.StatusUnauthorized, resp2.StatusCode, "not expected code. Body: %s", string(body2))
			require.JSONEq(t, `
				{
					"error": "service_error",
					"code": "INVALID_REFRESH",
					"message": "Invalid refresh token"
				}`, string(body2))
		})
	})

	t.Run("concurrent refreshes have one winner", func(t *testing.T) {
		integration.RunPool(pg.Pool, t, func(srvURL string, s integration.Services) {
			_, pair, err := s.AuthService.Register(t.Context(), "Racer", "racer@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			const attempts = 4
			codes := make([]int, attempts)

			var wg sync.WaitGroup
			for i := range attempts {
				wg.Add(1)
				go func() {
					defer wg.Done()

					resp := sendRefresh(t, srvURL, s, pair)
					defer resp.Body.Close() // nolint:errcheck
					codes[i] = resp.StatusCode
				}()
			}
			wg.Wait()

			var won int
			for _, code := range codes {
				switch code {
				case http.StatusOK:
					won++
				default:
					assert.Equal(t, http.StatusUnauthorized, code, "losers should get 401")
				}
			}

			require.Equal(t, 1, won, "exactly one concurrent refresh should succeed")
		})
	})
}
