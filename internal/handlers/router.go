package handlers

import (
	"net/http"

	"github.com/akotlyarov/lingua/internal/handlers/render"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authHandler *AuthHandler,
	meHandler *MeHandler,
	authMiddleware func(http.Handler) http.Handler,
	middlewares ...func(http.Handler) http.Handler,
) http.Handler {
	api := http.NewServeMux()

	api.Handle("/auth/", http.StripPrefix("/auth", authHandler.Handler()))
	api.Handle("/me/", http.StripPrefix("/me", authMiddleware(meHandler.Handler())))
	api.Handle("GET /me", authMiddleware(meHandler.Handler()))
	api.Handle("GET /health", handleHealth())

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	return chain(root, middlewares...)
}

func handleHealth() http.Handler {
	type HealthResponse struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, HealthResponse{Status: "ok"})
	})
}
