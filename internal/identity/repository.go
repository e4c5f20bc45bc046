package identity

import (
	"context"

	"github.com/askpaper/askpaper/internal/domain"
)

// Repository defines the interface for user record storage.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id string) error
	DeleteUsers(ctx context.Context, ids []string) (int, error)
}
