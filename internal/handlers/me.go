package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/akotlyarov/lingua/internal/apperrors"
	"github.com/akotlyarov/lingua/internal/handlers/render"
	"github.com/akotlyarov/lingua/internal/handlers/userctx"
	"github.com/akotlyarov/lingua/internal/logger"
	"github.com/akotlyarov/lingua/internal/models"
)

type UserService interface {
	GetMe(ctx context.Context, userID uuid.UUID) (models.User, error)
	SetGoal(ctx context.Context, userID uuid.UUID, goal models.Goal) (models.User, error)
}

type MeHandler struct {
	userService UserService
	logger      logger.Logger
}

func NewMe(userService UserService, l logger.Logger) *MeHandler {
	return &MeHandler{userService: userService, logger: l}
}

func (h *MeHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", h.me)
	mux.HandleFunc("PUT /goal", h.setGoal)

	return mux
}

func (h *MeHandler) me(w http.ResponseWriter, r *http.Request) {
	type MeSuccessResponse struct {
		User UserResponse `json:"user"`
	}

	userID, _ := userctx.FromContext(r.Context())

	user, err := h.userService.GetMe(r.Context(), userID)
	if err != nil {
		switch {
		// Token verified but the identity is gone
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, render.CodeNotFound, "User not found", http.StatusNotFound)
		default:
			h.logger.Error("GetMe failed", "error", err)
			render.ServiceError(w, render.CodeInternalError, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, MeSuccessResponse{User: toUserResponse(user)})
}

func (h *MeHandler) setGoal(w http.ResponseWriter, r *http.Request) {
	type SetGoalRequest struct {
		Goal string `json:"goal" validate:"required,goal"`
	}
	type SetGoalSuccessResponse struct {
		User UserResponse `json:"user"`
	}

	data, err := render.BindAndValidate[SetGoalRequest](w, r)
	if err != nil {
		return
	}

	// Validated by the "goal" tag already
	goal, _ := models.ParseGoal(data.Goal)

	userID, _ := userctx.FromContext(r.Context())

	user, err := h.userService.SetGoal(r.Context(), userID, goal)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, render.CodeNotFound, "User not found", http.StatusNotFound)
		default:
			h.logger.Error("SetGoal failed", "error", err)
			render.ServiceError(w, render.CodeInternalError, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, SetGoalSuccessResponse{User: toUserResponse(user)})
}
