package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/akotlyarov/lingua/internal/models"
	"github.com/akotlyarov/lingua/internal/repository"
)

// UserService exposes the identity reads and goal updates the UI needs.
// Lesson and challenge flows live in their own services outside this core
type UserService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *UserService {
	return &UserService{storage: storage}
}

// GetMe returns the user's profile.
// Returns apperrors.ErrUserNotFound if the identity vanished after the
// access token was minted
func (s *UserService) GetMe(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// SetGoal switches the user to a new learning goal.
// Day counter and streak start over: a goal is a fresh 30-day program
func (s *UserService) SetGoal(ctx context.Context, userID uuid.UUID, goal models.Goal) (models.User, error) {
	return s.storage.User().SetGoal(ctx, userID, goal)
}
