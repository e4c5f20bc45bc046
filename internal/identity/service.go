// Package identity provides user accounts, authentication and authorization.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/askpaper/askpaper/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenCodec issues and verifies the access/refresh token pair.
type TokenCodec interface {
	IssueAccess(subjectID string) (string, error)
	IssueRefresh(subjectID string) (string, error)
	VerifyAccess(token string) (string, error)
	VerifyRefresh(token string) (string, error)
}

// TokenPair holds a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service provides identity business logic.
type Service struct {
	repo   Repository
	tokens TokenCodec
}

// NewService creates a new identity service.
func NewService(repo Repository, tokens TokenCodec) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
	}
}

// RegisterInput contains the fields required to create an account.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     domain.Role
}

// Register creates a new user with a hashed password.
// The role defaults to "user" when empty.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	role := input.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if _, err := s.repo.GetUserByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check existing email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        input.Email,
		PasswordHash: string(hash),
		FullName:     input.FullName,
		Role:         role,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// LoginInput contains login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// Login verifies credentials and issues a token pair.
// An unknown email yields ErrUserNotFound, a wrong password
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, *TokenPair, error) {
	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("get user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return user, &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ResolveSession resolves a request's token pair into an identity.
//
// A valid access token resolves directly and mints nothing. When the
// access token is unusable (absent, invalid, or its subject no longer
// exists) a valid refresh token resolves the identity and mints a
// replacement access token, returned as the second value. An unusable
// pair resolves to (nil, "", nil); only storage failures surface as
// errors.
func (s *Service) ResolveSession(ctx context.Context, accessToken, refreshToken string) (*domain.User, string, error) {
	if accessToken != "" {
		if subjectID, err := s.tokens.VerifyAccess(accessToken); err == nil {
			user, err := s.lookupSubject(ctx, subjectID)
			if err != nil {
				return nil, "", err
			}
			if user != nil {
				return user, "", nil
			}
			// Subject no longer resolves to a record: fall through
			// to the refresh path as if verification had failed.
		}
	}

	if refreshToken != "" {
		subjectID, err := s.tokens.VerifyRefresh(refreshToken)
		if err != nil {
			return nil, "", nil
		}
		user, err := s.lookupSubject(ctx, subjectID)
		if err != nil {
			return nil, "", err
		}
		if user == nil {
			return nil, "", nil
		}
		newAccessToken, err := s.tokens.IssueAccess(user.ID)
		if err != nil {
			return nil, "", fmt.Errorf("issue access token: %w", err)
		}
		return user, newAccessToken, nil
	}

	return nil, "", nil
}

// lookupSubject fetches the user behind a token subject. A missing or
// malformed subject returns (nil, nil); only storage failures are errors.
func (s *Service) lookupSubject(ctx context.Context, subjectID string) (*domain.User, error) {
	if uuid.Validate(subjectID) != nil {
		return nil, nil
	}
	user, err := s.repo.GetUserByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// GetUserByID returns a user by id.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrUserNotFound
	}
	return s.repo.GetUserByID(ctx, id)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListUsers(ctx)
}

// UpdateInput contains optional fields for a partial user update.
// A nil field is left unchanged; none of the fields can be cleared.
type UpdateInput struct {
	Email    *string
	Password *string
	FullName *string
	Role     *domain.Role
}

// UpdateUser applies a partial update and returns the updated user.
func (s *Service) UpdateUser(ctx context.Context, id string, input UpdateInput) (*domain.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Email != nil && *input.Email != user.Email {
		if _, err := s.repo.GetUserByEmail(ctx, *input.Email); err == nil {
			return nil, ErrEmailExists
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("check existing email: %w", err)
		}
		user.Email = *input.Email
	}
	if input.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if input.FullName != nil {
		user.FullName = *input.FullName
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, ErrInvalidRole
		}
		user.Role = *input.Role
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// UpdateRole assigns a new role to a user and returns the updated record.
func (s *Service) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.UpdateUser(ctx, id, UpdateInput{Role: &role})
}

// DeleteUser removes a user by id.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteUser(ctx, id)
}

// BulkDeleteUsers removes the given users and returns how many records
// were actually deleted. Unknown ids are skipped, not an error.
func (s *Service) BulkDeleteUsers(ctx context.Context, ids []string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	return s.repo.DeleteUsers(ctx, valid)
}
