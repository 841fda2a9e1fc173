package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/unihub/campus/core/user"
)

func newUsr(id, email string, role user.Role) user.User {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	return user.User{
		ID:        id,
		Email:     email,
		Name:      "Test " + id,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUserRepository(t *testing.T) {
	db, _ := Open()
	repo := NewUserRepository(db)
	ctx := context.Background()

	usr := newUsr("u1", "u1@campus.test", user.RoleStudent)
	if _, err := repo.CreateUser(ctx, usr); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	t.Run("lookup by id and email", func(t *testing.T) {
		if got, err := repo.GetUserByID(ctx, "u1"); err != nil || got.Email != usr.Email {
			t.Errorf("GetUserByID() = %+v, %v", got, err)
		}
		if got, err := repo.GetUserByEmail(ctx, "u1@campus.test"); err != nil || got.ID != "u1" {
			t.Errorf("GetUserByEmail() = %+v, %v", got, err)
		}
		if _, err := repo.GetUserByID(ctx, "nope"); err != user.ErrNotFound {
			t.Errorf("GetUserByID(nope) error = %v, want %v", err, user.ErrNotFound)
		}
	})

	t.Run("email uniqueness", func(t *testing.T) {
		if err := repo.CheckEmailUniqueness(ctx, "u1@campus.test"); err != user.ErrEmailExists {
			t.Errorf("CheckEmailUniqueness() error = %v, want %v", err, user.ErrEmailExists)
		}
		if err := repo.CheckEmailUniqueness(ctx, "u1@campus.test", usr); err != nil {
			t.Errorf("CheckEmailUniqueness() with exclusion error = %v, want nil", err)
		}
		if err := repo.CheckEmailUniqueness(ctx, "new@campus.test"); err != nil {
			t.Errorf("CheckEmailUniqueness() error = %v, want nil", err)
		}
	})

	t.Run("update preserves bookkeeping fields", func(t *testing.T) {
		if err := repo.SetAdminClaimFlag(ctx, "u1", true); err != nil {
			t.Fatalf("SetAdminClaimFlag() error = %v", err)
		}

		updated := usr
		updated.Name = "Renamed"
		updated.CreatedAt = time.Now() // must be ignored
		got, err := repo.UpdateUser(ctx, updated, nil)
		if err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		if got.Name != "Renamed" {
			t.Errorf("Name = %s, want Renamed", got.Name)
		}
		if !got.CreatedAt.Equal(usr.CreatedAt) {
			t.Errorf("CreatedAt rewritten to %v, want %v", got.CreatedAt, usr.CreatedAt)
		}
		if !got.AdminClaimSet {
			t.Error("AdminClaimSet lost on update")
		}
		if !got.IsActive {
			t.Error("IsActive rewritten with a nil isActive arg")
		}
	})

	t.Run("deactivation", func(t *testing.T) {
		isActive := false
		got, err := repo.UpdateUser(ctx, usr, &isActive)
		if err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		if got.IsActive {
			t.Error("IsActive = true, want false")
		}
	})

	t.Run("password persistence", func(t *testing.T) {
		pwd := usr
		if err := pwd.SetPassword("s3cr3tpwd"); err != nil {
			t.Fatalf("SetPassword() error = %v", err)
		}
		if err := repo.SetPassword(ctx, "u1", pwd.PasswordHash); err != nil {
			t.Fatalf("repo.SetPassword() error = %v", err)
		}
		got, _ := repo.GetUserByID(ctx, "u1")
		if err := got.CheckPassword("s3cr3tpwd"); err != nil {
			t.Errorf("CheckPassword() error = %v, want nil", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repo.DeleteUsersByID(ctx, "u1"); err != nil {
			t.Fatalf("DeleteUsersByID() error = %v", err)
		}
		if _, err := repo.GetUserByID(ctx, "u1"); err != user.ErrNotFound {
			t.Errorf("GetUserByID() after delete error = %v, want %v", err, user.ErrNotFound)
		}
	})
}
