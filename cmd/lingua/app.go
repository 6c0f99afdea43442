package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/akotlyarov/lingua/internal/db"
	"github.com/akotlyarov/lingua/internal/handlers"
	"github.com/akotlyarov/lingua/internal/handlers/middleware"
	"github.com/akotlyarov/lingua/internal/logger"
	"github.com/akotlyarov/lingua/internal/repository/postgres"
	"github.com/akotlyarov/lingua/internal/service/auth"
	"github.com/akotlyarov/lingua/internal/service/auth/tokencodec"
	"github.com/akotlyarov/lingua/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	janitor *auth.Janitor
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize storage
	storage := postgres.NewStorage(pool)

	// Initialize services
	codec, err := tokencodec.New(tokencodec.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token codec. Err: %w", err)
	}

	sameSite, err := parseSameSite(c.CookieSameSite)
	if err != nil {
		return nil, err
	}

	authService, err := auth.NewService(auth.Config{
		RefreshCookieName:     c.CookieName,
		RefreshCookieSecure:   c.CookieSecure,
		RefreshCookieSameSite: sameSite,
	}, codec, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	userService := user.NewService(storage)

	// Initialize handlers
	authHandler := handlers.NewAuth(authService, l)
	meHandler := handlers.NewMe(userService, l)
	authMiddleware := middleware.AuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimiter(c.RatePerMinute)

	mux := handlers.NewRouter(
		authHandler,
		meHandler,
		authMiddleware,
		middleware.LoggerMiddleware(l),
		rateLimiter.Middleware,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     l,
		janitor:    auth.NewJanitor(storage, l),
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	// Sweep stale refresh token records in background
	janitorStopped := s.janitor.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-janitorStopped

	return err
}
