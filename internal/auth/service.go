package auth

import (
	"context"
	"fmt"

	"github.com/congo-pay/authflow/internal/identity"
)

// Service issues, resolves and revokes sessions.
type Service struct {
	issuer  *Issuer
	revoker *Revoker
	users   *identity.Service
}

// NewService wires session handling on top of the account service.
func NewService(issuer *Issuer, revoker *Revoker, users *identity.Service) *Service {
	return &Service{issuer: issuer, revoker: revoker, users: users}
}

// Issue starts a session for user.
func (s *Service) Issue(user identity.User) (Session, error) {
	return s.issuer.Issue(user.ID)
}

// Authenticate resolves a session token to its claims, rejecting revoked sessions.
func (s *Service) Authenticate(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return Claims{}, err
	}
	revoked, err := s.revoker.Revoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Claims{}, ErrRevoked
	}
	return claims, nil
}

// Profile loads the public view of an account.
func (s *Service) Profile(ctx context.Context, userID string) (identity.Profile, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return identity.Profile{}, err
	}
	return user.Profile(), nil
}

// Logout revokes the session behind token. Invalid tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
