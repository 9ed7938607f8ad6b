// Package auth authenticates users and maintains bearer-token sessions
// in Redis.
package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/cooltrack/cooltrack/internal/shared"
	"github.com/cooltrack/cooltrack/internal/users"
)

// UserFinder is the slice of the users repository the auth flow needs.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	finder UserFinder
	tokens *shared.TokenStore
}

// NewService constructs a new Service.
func NewService(finder UserFinder, tokens *shared.TokenStore) *Service {
	return &Service{finder: finder, tokens: tokens}
}

// Login validates credentials and issues a bearer token. Inactive
// accounts and bad passwords both surface as invalid credentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, shared.Actor, error) {
	user, err := s.finder.FindByEmail(ctx, email)
	if err != nil {
		return "", shared.Actor{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", shared.Actor{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", shared.Actor{}, shared.ErrInvalidCredentials
	}

	actor := shared.Actor{ID: user.ID, Name: user.Name, Role: user.Role}
	token, err := s.tokens.Issue(ctx, actor)
	if err != nil {
		return "", shared.Actor{}, err
	}
	return token, actor, nil
}

// Logout revokes the token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Resolve maps a bearer token to its actor.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Actor, error) {
	return s.tokens.Resolve(ctx, token)
}
