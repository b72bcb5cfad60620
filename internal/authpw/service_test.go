package authpw

import (
	"context"
	"errors"
	"testing"

	"communitydms/api/internal/rbac"
	"communitydms/api/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

func newTestService() (*Service, *testutil.MemStore) {
	mem := testutil.NewMemStore()
	return NewService(mem).WithCost(bcrypt.MinCost), mem
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	t.Run("successful registration defaults to volunteer", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterRequest{
			Email:           "Test@Example.com",
			Password:        "password123",
			PasswordConfirm: "password123",
			FirstName:       "Test",
			LastName:        "User",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID == "" {
			t.Error("expected ID to be set")
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected lowercased email, got %s", user.Email)
		}
		if user.Role != string(rbac.RoleVolunteer) || !user.Active {
			t.Errorf("unexpected role/active: %s/%v", user.Role, user.Active)
		}
		if user.PasswordHash == "password123" {
			t.Error("password must be hashed")
		}
	})

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{name: "duplicate email", req: RegisterRequest{Email: "TEST@example.com", Password: "password123"}, want: ErrEmailTaken},
		{name: "short password", req: RegisterRequest{Email: "short@example.com", Password: "short"}, want: ErrWeakPassword},
		{name: "mismatched confirmation", req: RegisterRequest{Email: "mm@example.com", Password: "password123", PasswordConfirm: "password124"}, want: ErrPasswordMismatch},
		{name: "invalid email", req: RegisterRequest{Email: "not-an-email", Password: "password123"}, want: ErrInvalidEmail},
		{name: "missing fields", req: RegisterRequest{}, want: ErrMissingFields},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService()

	registered, err := svc.Register(ctx, RegisterRequest{Email: "test@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("successful login records last login", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "TEST@example.com", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != registered.ID {
			t.Errorf("expected %s, got %s", registered.ID, user.ID)
		}
		stored, _ := mem.GetUserByID(ctx, registered.ID)
		if stored.LastLoginAt == nil {
			t.Error("expected last login to be recorded")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, "test@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		user, _ := mem.GetUserByID(ctx, registered.ID)
		user.Active = false
		if err := mem.UpdateUser(ctx, user); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := svc.Authenticate(ctx, "test@example.com", "password123"); !errors.Is(err, ErrAccountDisabled) {
			t.Fatalf("expected ErrAccountDisabled, got %v", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	user, err := svc.Register(ctx, RegisterRequest{Email: "test@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong-current", "newpassword1", "newpassword1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "tiny", "tiny"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "newpassword1", "newpassword1"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "test@example.com", "newpassword1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "test@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should stop working, got %v", err)
	}
}
