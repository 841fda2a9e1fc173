package identsvc

import (
	"context"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/user"
	inmemdb "github.com/unihub/campus/storage/database/inmem"
)

func setup(t *testing.T) (*Service, user.Repository) {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := inmemdb.NewUserRepository(db)
	conf := &core.Config{
		TestMode:  true,
		AppName:   "campus",
		SecretKey: []byte("test-secret"),
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
	}
	return NewService(repo, conf), repo
}

func createUser(t *testing.T, repo user.Repository, id string, role user.Role, pwd string, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		ID:        id,
		Email:     id + "@campus.test",
		Name:      "Test " + id,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func parseToken(t *testing.T, svc *Service, token string) TokenClaims {
	t.Helper()
	claims := TokenClaims{}
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return svc.conf.SecretKey, nil
	}); err != nil {
		t.Fatalf("parseToken() failed: %v", err)
	}
	return claims
}

func TestService_SignIn(t *testing.T) {
	svc, repo := setup(t)
	createUser(t, repo, "s1", user.RoleStudent, "pwd12345", true)
	createUser(t, repo, "off", user.RoleStudent, "pwd12345", false)
	ctx := context.Background()

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "valid credentials", email: "s1@campus.test", pwd: "pwd12345"},
		{name: "email is case-insensitive", email: " S1@Campus.Test ", pwd: "pwd12345"},
		{name: "wrong password", email: "s1@campus.test", pwd: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown email", email: "ghost@campus.test", pwd: "pwd12345", wantErr: ErrInvalidCredentials},
		{name: "deactivated account", email: "off@campus.test", pwd: "pwd12345", wantErr: ErrAccountDeactivated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident, token, err := svc.SignIn(ctx, tt.email, tt.pwd)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("SignIn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if ident.UID != "s1" {
				t.Errorf("identity UID = %s, want s1", ident.UID)
			}
			claims := parseToken(t, svc, token)
			if claims.Subject != "s1" || claims.Role != "student" {
				t.Errorf("claims = %+v, want subject s1 role student", claims)
			}
		})
	}
}

func TestService_claimPropagation(t *testing.T) {
	svc, repo := setup(t)
	createUser(t, repo, "a1", user.RoleAdmin, "pwd12345", true)
	ctx := context.Background()

	if _, err := svc.Claims(ctx, "a1", false); errors.Cause(err) != ErrNotSignedIn {
		t.Fatalf("Claims() before sign-in error = %v, want %v", err, ErrNotSignedIn)
	}

	_, token, err := svc.SignIn(ctx, "a1@campus.test", "pwd12345")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if parseToken(t, svc, token).Admin {
		t.Error("token carries the admin claim before attachment")
	}

	if err := svc.SetCustomClaim(ctx, "a1", true); err != nil {
		t.Fatalf("SetCustomClaim() error = %v", err)
	}

	// the current token's snapshot is unchanged
	claims, err := svc.Claims(ctx, "a1", false)
	if err != nil {
		t.Fatalf("Claims() error = %v", err)
	}
	if claims.Admin {
		t.Error("claim visible without a token refresh")
	}

	// a forced refresh makes it visible
	claims, err = svc.Claims(ctx, "a1", true)
	if err != nil {
		t.Fatalf("Claims(forceRefresh) error = %v", err)
	}
	if !claims.Admin {
		t.Error("claim not visible after a forced refresh")
	}

	// and stays visible on plain reads afterwards
	claims, _ = svc.Claims(ctx, "a1", false)
	if !claims.Admin {
		t.Error("refreshed snapshot not retained")
	}

	// freshly issued tokens carry it too
	fresh, err := svc.RefreshToken(ctx, "a1")
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if !parseToken(t, svc, fresh).Admin {
		t.Error("refreshed token does not carry the attached claim")
	}

	if err := svc.SetCustomClaim(ctx, "ghost", true); err == nil {
		t.Error("SetCustomClaim() for an unknown user error = nil, want error")
	}
}

func TestService_changeEvents(t *testing.T) {
	svc, repo := setup(t)
	createUser(t, repo, "s1", user.RoleStudent, "pwd12345", true)
	ctx := context.Background()

	var events []*core.Identity
	unsubscribe := svc.OnChange(func(ident *core.Identity) { events = append(events, ident) })

	if _, _, err := svc.SignIn(ctx, "s1@campus.test", "pwd12345"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if len(events) != 1 || events[0] == nil || events[0].UID != "s1" {
		t.Fatalf("events after sign-in = %+v, want [s1]", events)
	}

	if err := svc.SignOut(ctx, "s1"); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if len(events) != 2 || events[1] != nil {
		t.Fatalf("events after sign-out = %+v, want [s1 nil]", events)
	}
	if _, err := svc.Claims(ctx, "s1", false); errors.Cause(err) != ErrNotSignedIn {
		t.Errorf("Claims() after sign-out error = %v, want %v", err, ErrNotSignedIn)
	}

	// no event after unsubscribe
	unsubscribe()
	if _, _, err := svc.SignIn(ctx, "s1@campus.test", "pwd12345"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events after unsubscribe = %d, want 2", len(events))
	}
}

func TestService_RefreshToken_deactivated(t *testing.T) {
	svc, repo := setup(t)
	usr := createUser(t, repo, "s1", user.RoleStudent, "pwd12345", true)
	ctx := context.Background()

	if _, _, err := svc.SignIn(ctx, "s1@campus.test", "pwd12345"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	isActive := false
	if _, err := repo.UpdateUser(ctx, usr, &isActive); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if _, err := svc.RefreshToken(ctx, "s1"); errors.Cause(err) != ErrAccountDeactivated {
		t.Errorf("RefreshToken() error = %v, want %v", err, ErrAccountDeactivated)
	}
}
