package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akotlyarov/lingua/internal/client"
	"github.com/akotlyarov/lingua/internal/models"
	"github.com/akotlyarov/lingua/internal/testutil"
	"github.com/akotlyarov/lingua/tests/integration"
)

func newClient(t *testing.T, srvURL string) *client.Client {
	t.Helper()

	c, err := client.New(client.Config{BaseURL: srvURL})
	require.NoError(t, err, "api client should be created without errors")
	return c
}

// End to end account lifecycle through the public API client
func Test_AuthFlow(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("register then use the session", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			c := newClient(t, srvURL)

			registered, err := c.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)
			require.Equal(t, "olya@example.com", registered.Email)
			require.NotEmpty(t, c.AccessToken(), "register should leave the client authenticated")

			me, err := c.Me(t.Context())
			require.NoError(t, err)
			assert.Equal(t, registered.ID, me.ID)
			assert.Nil(t, me.CurrentGoal)
			assert.Equal(t, 1, me.CurrentDay)

			me, err = c.SetGoal(t.Context(), models.GoalJobInterview)
			require.NoError(t, err)
			require.NotNil(t, me.CurrentGoal)
			assert.Equal(t, models.GoalJobInterview, *me.CurrentGoal)
		})
	})

	t.Run("login after register", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			c := newClient(t, srvURL)

			_, err := c.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			// A different device logs in fresh
			other := newClient(t, srvURL)
			user, err := other.Login(t.Context(), "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)
			assert.Equal(t, "Olya", user.Name)

			_, err = other.Me(t.Context())
			require.NoError(t, err)
		})
	})

	t.Run("wrong credentials fail the same way", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			c := newClient(t, srvURL)

			_, err := c.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			_, errWrongPassword := c.Login(t.Context(), "olya@example.com", "WrongPassword")
			_, errUnknownEmail := c.Login(t.Context(), "nobody@example.com", "StrongEnoughPassword")

			var apiErr1, apiErr2 *client.APIError
			require.ErrorAs(t, errWrongPassword, &apiErr1)
			require.ErrorAs(t, errUnknownEmail, &apiErr2)
			assert.Equal(t, apiErr1.StatusCode, apiErr2.StatusCode, "responses must not reveal whether the account exists")
			assert.Equal(t, apiErr1.Code, apiErr2.Code)
			assert.Equal(t, apiErr1.Message, apiErr2.Message)
		})
	})

	t.Run("logout ends the session", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			c := newClient(t, srvURL)

			_, err := c.Register(t.Context(), "Olya", "olya@example.com", "StrongEnoughPassword")
			require.NoError(t, err)

			require.NoError(t, c.Logout(t.Context()))
			assert.Empty(t, c.AccessToken())

			// The cookie jar no longer holds a usable refresh token, so the
			// automatic refresh-and-retry cannot resurrect the session
			_, err = c.Me(t.Context())
			require.Error(t, err)

			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, 401, apiErr.StatusCode)
		})
	})

	t.Run("protected endpoints require a token", func(t *testing.T) {
		integration.RunTx(pg.Pool, t, func(srvURL string, s integration.Services) {
			c := newClient(t, srvURL)

			_, err := c.Me(t.Context())

			require.Error(t, err)
			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, 401, apiErr.StatusCode)
		})
	})
}
