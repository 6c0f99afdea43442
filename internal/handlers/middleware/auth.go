package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/akotlyarov/lingua/internal/handlers/render"
	"github.com/akotlyarov/lingua/internal/handlers/userctx"
)

type authService interface {
	AuthenticateRequest(r *http.Request) (uuid.UUID, error)
}

// AuthMiddleware guards protected endpoints.
// Missing header, garbage, bad signature and expired token all get the same
// 401 so callers can't use the endpoint as a token verification oracle
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := as.AuthenticateRequest(r)
			if err != nil {
				render.ServiceError(w, render.CodeUnauthorized, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
