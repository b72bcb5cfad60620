package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"communitydms/api/internal/auth"
	"communitydms/api/internal/authpw"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
)

type AuthResult struct {
	User      store.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
}

type RegisterInput struct {
	Email           string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
}

type ProfileInput struct {
	FirstName *string
	LastName  *string
}

// Register creates a volunteer account and signs it in. Elevated roles are
// only granted through user management.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta Actor) (AuthResult, error) {
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{
		Email:           in.Email,
		Password:        in.Password,
		PasswordConfirm: in.PasswordConfirm,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Role:            rbac.RoleVolunteer,
	})
	if err != nil {
		return AuthResult{}, passwordError(err)
	}

	result, err := s.issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	meta.UserID = user.ID
	fx := &effects{}
	fx.log(meta, "register", "user", user.ID, "", map[string]any{"email": user.Email})
	s.apply(fx)
	return result, nil
}

func (s *Service) Login(ctx context.Context, emailAddr, password string, meta Actor) (AuthResult, error) {
	user, err := s.passwords.Authenticate(ctx, emailAddr, password)
	if err != nil {
		return AuthResult{}, passwordError(err)
	}
	result, err := s.issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	meta.UserID = user.ID
	fx := &effects{}
	fx.log(meta, "login", "user", user.ID, "", nil)
	s.apply(fx)
	return result, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, actor Actor) error {
	if actor.TokenID == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, actor.TokenID, actor.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	fx := &effects{}
	fx.log(actor, "logout", "user", actor.UserID, "", nil)
	s.apply(fx)
	return nil
}

// RefreshToken swaps the caller's still-valid token for a fresh one and
// revokes the old token.
func (s *Service) RefreshToken(ctx context.Context, actor Actor) (AuthResult, error) {
	user, err := s.store.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return AuthResult{}, translateStoreError(err, "User")
	}
	result, err := s.issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	if actor.TokenID != "" {
		if err := s.revocations.Revoke(ctx, actor.TokenID, actor.ExpiresAt); err != nil {
			return AuthResult{}, fmt.Errorf("revoke token: %w", err)
		}
	}
	fx := &effects{}
	fx.log(actor, "refresh_token", "user", user.ID, "", nil)
	s.apply(fx)
	return result, nil
}

// Authenticate resolves a bearer token against the live user record, so a
// deactivated account is rejected even while its token is still valid.
func (s *Service) Authenticate(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, authenticationError("Access token required")
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return Actor{}, authenticationError("Token expired")
		}
		return Actor{}, authenticationError("Invalid token")
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.JTI())
	if err != nil {
		return Actor{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Actor{}, authenticationError("Token has been revoked")
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Actor{}, authenticationError("User not found")
		}
		return Actor{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return Actor{}, authenticationError("User account is disabled")
	}

	return Actor{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.FullName(),
		Role:      rbac.Role(user.Role),
		TokenID:   claims.JTI(),
		ExpiresAt: claims.Expiry(),
	}, nil
}

func (s *Service) Profile(ctx context.Context, actor Actor) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return store.User{}, translateStoreError(err, "User")
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor Actor, in ProfileInput) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return store.User{}, translateStoreError(err, "User")
	}
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return store.User{}, translateStoreError(err, "User")
	}

	fx := &effects{}
	fx.log(actor, "update_profile", "user", user.ID, "", nil)
	s.apply(fx)
	return s.Profile(ctx, actor)
}

func (s *Service) ChangePassword(ctx context.Context, actor Actor, current, next, confirm string) error {
	if current == "" || next == "" {
		return validationError("Current and new password are required", nil)
	}
	if err := s.passwords.ChangePassword(ctx, actor.UserID, current, next, confirm); err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return validationError("Current password is incorrect", nil)
		}
		return passwordError(err)
	}
	fx := &effects{}
	fx.log(actor, "change_password", "user", actor.UserID, "", nil)
	s.apply(fx)
	return nil
}

func (s *Service) issue(user store.User) (AuthResult, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Token: token, ExpiresAt: claims.Expiry()}, nil
}

func passwordError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrEmailTaken):
		return conflictError("User with this email already exists", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return authenticationError("Invalid email or password")
	case errors.Is(err, authpw.ErrAccountDisabled):
		return authenticationError("User account is disabled")
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword),
		errors.Is(err, authpw.ErrPasswordMismatch):
		return validationError(err.Error(), nil)
	}
	return translateStoreError(err, "User")
}
