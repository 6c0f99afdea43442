package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/akotlyarov/lingua/internal/apperrors"
	"github.com/akotlyarov/lingua/internal/handlers/render"
	"github.com/akotlyarov/lingua/internal/logger"
	"github.com/akotlyarov/lingua/internal/models"
)

// Auth service as the handlers see it
type AuthService interface {
	Register(ctx context.Context, name string, email string, password string) (models.User, models.TokenPair, error)
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string)

	AuthenticateRequest(r *http.Request) (uuid.UUID, error)
	SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken)
	ClearRefreshCookie(w http.ResponseWriter)
	ReadRefreshCookie(r *http.Request) string
	SetTokenPairToRequest(r *http.Request, pair models.TokenPair)
}

// User shape every auth and profile endpoint responds with
type UserResponse struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	CurrentGoal *models.Goal `json:"currentGoal"`
	CurrentDay  int          `json:"currentDay"`
	Streak      int          `json:"streak"`
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		CurrentGoal: u.CurrentGoal,
		CurrentDay:  u.CurrentDay,
		Streak:      u.Streak,
	}
}

type AuthHandler struct {
	authService AuthService
	logger      logger.Logger
}

func NewAuth(auth AuthService, l logger.Logger) *AuthHandler {
	return &AuthHandler{authService: auth, logger: l}
}

func (h *AuthHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /refresh", h.refresh)
	mux.HandleFunc("POST /logout", h.logout)

	return mux
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Name     string `json:"name" validate:"required,min=2,max=150"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type RegisterSuccessResponse struct {
		User        UserResponse `json:"user"`
		AccessToken string       `json:"accessToken"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.authService.Register(r.Context(), data.Name, data.Email, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrEmailTaken):
			render.ServiceError(w, render.CodeEmailTaken, "Email already registered", http.StatusConflict)
		default:
			h.logger.Error("Register failed", "error", err)
			render.ServiceError(w, render.CodeInternalError, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetRefreshCookie(w, pair.Refresh)
	render.JSON(w, RegisterSuccessResponse{User: toUserResponse(user), AccessToken: pair.Access.Value})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	type LoginSuccessResponse struct {
		User        UserResponse `json:"user"`
		AccessToken string       `json:"accessToken"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.authService.Login(r.Context(), data.Email, data.Password)
	if err != nil {
		switch {
		// Unknown email and wrong password are deliberately the same response
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, render.CodeInvalidCredentials, "Invalid email or password", http.StatusUnauthorized)
		default:
			h.logger.Error("Login failed", "error", err)
			render.ServiceError(w, render.CodeInternalError, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetRefreshCookie(w, pair.Refresh)
	render.JSON(w, LoginSuccessResponse{User: toUserResponse(user), AccessToken: pair.Access.Value})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshSuccessResponse struct {
		AccessToken string `json:"accessToken"`
	}

	refresh := h.authService.ReadRefreshCookie(r)

	pair, err := h.authService.Refresh(r.Context(), refresh)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRefreshInvalid):
			render.ServiceError(w, render.CodeInvalidRefresh, "Invalid refresh token", http.StatusUnauthorized)
		default:
			h.logger.Error("Refresh failed", "error", err)
			render.ServiceError(w, render.CodeInternalError, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetRefreshCookie(w, pair.Refresh)
	render.JSON(w, RefreshSuccessResponse{AccessToken: pair.Access.Value})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutSuccessResponse struct{}

	// Logout never fails visibly: absent or invalid token just means there
	// is nothing to revoke
	h.authService.Logout(r.Context(), h.authService.ReadRefreshCookie(r))

	h.authService.ClearRefreshCookie(w)
	render.JSON(w, LogoutSuccessResponse{})
}
