package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bookverse/identity/internal/models"
	"github.com/bookverse/identity/internal/repository"
)

// UserService covers credential record access outside the login flow:
// profile reads and the administrative surface
type UserService struct {
	userRepo repository.UserRepo
}

func NewService(userRepo repository.UserRepo) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.userRepo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't list users. Err: %w", err)
	}
	return users, nil
}

// DeleteUser removes the credential record. Refresh tokens go with it
// through the foreign key, so every session of the user dies too.
// This is the only path a record disappears on
func (s *UserService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return s.userRepo.DeleteUser(ctx, userID)
}
