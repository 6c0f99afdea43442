package integration

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stretchr/testify/require"

	"github.com/akotlyarov/lingua/internal/handlers"
	"github.com/akotlyarov/lingua/internal/handlers/middleware"
	"github.com/akotlyarov/lingua/internal/logger"
	"github.com/akotlyarov/lingua/internal/repository/postgres"
	"github.com/akotlyarov/lingua/internal/service/auth"
	"github.com/akotlyarov/lingua/internal/service/auth/tokencodec"
	"github.com/akotlyarov/lingua/internal/service/user"
	"github.com/akotlyarov/lingua/internal/testutil"
)

type Services struct {
	AuthService *auth.AuthService
	UserService *user.UserService
}

// serve assembles the full production router on top of the given db and runs
// it in a test http server
func serve(db postgres.DBTX, t *testing.T) (*httptest.Server, Services) {
	t.Helper()

	storage := postgres.NewStorage(db)

	codec, err := tokencodec.New(tokencodec.Config{
		AccessSecret:  "test-access-secret-16b",
		RefreshSecret: "test-refresh-secret-16b",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err, "token codec should be created without errors")

	as, err := auth.NewService(auth.Config{}, codec, storage)
	require.NoError(t, err, "auth service starting error")

	us := user.NewService(storage)

	l := logger.NewNoOpLogger()
	router := handlers.NewRouter(
		handlers.NewAuth(as, l),
		handlers.NewMe(us, l),
		middleware.AuthMiddleware(as),
	)

	srv := httptest.NewServer(router)

	return srv, Services{AuthService: as, UserService: us}
}

// RunTx runs the server with every query inside one transaction.
// Rolled back when the test stops, so tests never see each other's data
func RunTx(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, s Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		srv, services := serve(tx, t)
		defer srv.Close()

		fn(srv.URL, services)
	})
}

// RunPool runs the server directly on the pool. No rollback isolation, but
// requests may run concurrently, which a single transaction cannot serve
func RunPool(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, s Services)) {
	srv, services := serve(dbpool, t)
	defer srv.Close()

	fn(srv.URL, services)
}
