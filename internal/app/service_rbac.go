package app

import (
	"context"
	"fmt"
	"strings"

	"communitydms/api/internal/authpw"
	"communitydms/api/internal/rbac"
	"communitydms/api/internal/store"
)

// =============================================================================
// User Management Service Methods
// =============================================================================

type UserQuery struct {
	Role   string
	Active *bool
	Search string
	Page   store.Page
}

type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// UserUpdate is partial; Role and Active are the privileged attributes.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Role      *string
	Active    *bool
}

// ListUsers returns users for admin and president
func (s *Service) ListUsers(ctx context.Context, actor Actor, q UserQuery) ([]store.User, int, error) {
	if !actor.can(rbac.ActionManageUsers) {
		return nil, 0, authorizationError("")
	}
	if q.Role != "" && !rbac.Valid(q.Role) {
		return nil, 0, validationError("Invalid role filter", map[string]any{"role": q.Role})
	}
	users, total, err := s.store.ListUsers(ctx, store.UserFilter{
		Role:   q.Role,
		Active: q.Active,
		Search: strings.TrimSpace(q.Search),
		Page:   q.Page,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// GetUser lets managers read any user and everyone else read themselves.
func (s *Service) GetUser(ctx context.Context, actor Actor, userID string) (store.User, error) {
	if userID != actor.UserID && !actor.can(rbac.ActionManageUsers) {
		return store.User{}, authorizationError("")
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, translateStoreError(err, "User")
	}
	return user, nil
}

// CreateUser provisions an account with an explicit role.
func (s *Service) CreateUser(ctx context.Context, actor Actor, in CreateUserInput) (store.User, error) {
	if !actor.can(rbac.ActionManageUsers) {
		return store.User{}, authorizationError("")
	}
	if in.Role != "" && !rbac.Valid(in.Role) {
		return store.User{}, validationError("Invalid role", map[string]any{"role": in.Role})
	}
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{
		Email:           in.Email,
		Password:        in.Password,
		PasswordConfirm: in.Password,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Role:            rbac.Role(in.Role),
	})
	if err != nil {
		return store.User{}, passwordError(err)
	}
	fx := &effects{}
	fx.log(actor, "create", "user", user.ID, "", map[string]any{"email": user.Email, "role": user.Role})
	s.apply(fx)
	return user, nil
}

// UpdateUser changes names, role or active flag. Nobody may deactivate or
// demote themselves.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, userID string, in UserUpdate) (store.User, error) {
	if !actor.can(rbac.ActionManageUsers) {
		return store.User{}, authorizationError("")
	}
	if userID == actor.UserID {
		if in.Active != nil && !*in.Active {
			return store.User{}, validationError("You cannot deactivate your own account", nil)
		}
		if in.Role != nil && *in.Role != string(actor.Role) {
			return store.User{}, validationError("You cannot change your own role", nil)
		}
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, translateStoreError(err, "User")
	}
	details := map[string]any{}
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Role != nil {
		if !rbac.Valid(*in.Role) {
			return store.User{}, validationError("Invalid role", map[string]any{"role": *in.Role})
		}
		if *in.Role != user.Role {
			details["role"] = map[string]any{"from": user.Role, "to": *in.Role}
		}
		user.Role = *in.Role
	}
	if in.Active != nil {
		if *in.Active != user.Active {
			details["active"] = *in.Active
		}
		user.Active = *in.Active
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return store.User{}, translateStoreError(err, "User")
	}

	fx := &effects{}
	fx.log(actor, "update", "user", user.ID, "", details)
	s.apply(fx)
	return s.GetUser(ctx, actor, userID)
}

// DeactivateUser is the only form of user deletion.
func (s *Service) DeactivateUser(ctx context.Context, actor Actor, userID string) error {
	if !actor.can(rbac.ActionManageUsers) {
		return authorizationError("")
	}
	if userID == actor.UserID {
		return validationError("You cannot delete your own account", nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return translateStoreError(err, "User")
	}
	if !user.Active {
		return nil
	}
	user.Active = false
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return translateStoreError(err, "User")
	}
	fx := &effects{}
	fx.log(actor, "deactivate", "user", user.ID, "", nil)
	s.apply(fx)
	return nil
}

func (s *Service) UserStats(ctx context.Context, actor Actor) (store.UserStats, error) {
	if !actor.can(rbac.ActionManageUsers) {
		return store.UserStats{}, authorizationError("")
	}
	stats, err := s.store.UserStats(ctx)
	if err != nil {
		return store.UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	for _, role := range rbac.AllRoles() {
		if _, ok := stats.ByRole[string(role)]; !ok {
			if stats.ByRole == nil {
				stats.ByRole = map[string]int{}
			}
			stats.ByRole[string(role)] = 0
		}
	}
	return stats, nil
}

// =============================================================================
// Notification Service Methods
// =============================================================================

func (s *Service) ListNotifications(ctx context.Context, actor Actor, unreadOnly bool, page store.Page) ([]store.Notification, int, error) {
	items, total, err := s.store.ListNotifications(ctx, actor.UserID, unreadOnly, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// MarkNotificationRead only touches notifications addressed to actor; any
// other id reads as not found.
func (s *Service) MarkNotificationRead(ctx context.Context, actor Actor, notificationID string) error {
	if err := s.store.MarkNotificationRead(ctx, notificationID, actor.UserID, s.now()); err != nil {
		return translateStoreError(err, "Notification")
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, actor Actor) (int, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, actor.UserID, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return n, nil
}

// =============================================================================
// Activity Log Service Methods
// =============================================================================

type ActivityQuery struct {
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	Page       store.Page
}

// ListActivity returns the global activity log. Admins see every entry;
// everyone else sees only their own.
func (s *Service) ListActivity(ctx context.Context, actor Actor, q ActivityQuery) ([]store.ActivityEntry, int, error) {
	if actor.Role != rbac.RoleAdmin {
		if q.UserID != "" && q.UserID != actor.UserID {
			return []store.ActivityEntry{}, 0, nil
		}
		q.UserID = actor.UserID
	}
	items, total, err := s.store.ListActivity(ctx, store.ActivityFilter{
		UserID:     q.UserID,
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		Action:     q.Action,
		Page:       q.Page,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list activity: %w", err)
	}
	return items, total, nil
}
