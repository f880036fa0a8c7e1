package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

var hexKeyRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestAuthService_Register_Success(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour)

	user, err := svc.Register(context.Background(), "alice_01", "pass123", "alice@example.com", "Alice Smith")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if user.Permissions != domain.StudentPermissions {
		t.Fatalf("new accounts start as students, got %d", user.Permissions)
	}
	if !hexKeyRegex.MatchString(user.APIKey) {
		t.Fatalf("expected 64-hex api key, got %q", user.APIKey)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour)
	ctx := context.Background()

	cases := []struct {
		name                                      string
		username, password, email, displayName string
	}{
		{"short username", "bob", "password", "b@x.test", "Bob Jones"},
		{"username with spaces", "bob jones", "password", "b@x.test", "Bob Jones"},
		{"bad display name", "bob_jones", "password", "b@x.test", "Bob! Jones"},
		{"short password", "bob_jones", "pw", "b@x.test", "Bob Jones"},
		{"missing email", "bob_jones", "password", "", "Bob Jones"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.username, tc.password, tc.email, tc.displayName); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "carol_99", "password", "carol@x.test", "Carol Q"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.Register(ctx, "carol_99", "password2", "carol@x.test", "Carol Q"); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "dave_01", "s3cret99", "dave@x.test", "Dave Lee"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, user, err := svc.Login(ctx, "dave@x.test", "s3cret99")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user == nil || user.Username != "dave_01" {
		t.Fatalf("unexpected user: %+v", user)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims["email"] != "dave@x.test" {
		t.Fatalf("unexpected claims: %v", claims)
	}
	if rank, ok := claims["permissions"].(float64); !ok || int(rank) != domain.StudentPermissions {
		t.Fatalf("permissions claim missing or wrong: %v", claims["permissions"])
	}
}

func TestAuthService_Login_Failures(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour)
	ctx := context.Background()

	_, _ = svc.Register(ctx, "erin_01", "goodpass", "erin@x.test", "Erin Cho")

	if _, _, err := svc.Login(ctx, "erin@x.test", "badpass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "ghost@x.test", "whatever"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "", ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty input, got %v", err)
	}
}

func TestAuthService_RefreshAPIKey(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "fred_01", "password", "fred@x.test", "Fred Wu")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	oldKey := user.APIKey

	newKey, err := svc.RefreshAPIKey(ctx, user.ID, user.Email)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if !hexKeyRegex.MatchString(newKey) {
		t.Fatalf("expected 64-hex api key, got %q", newKey)
	}
	if newKey == oldKey {
		t.Fatalf("refresh must rotate the key")
	}
	if _, err := repo.FindByAPIKey(ctx, newKey); err != nil {
		t.Fatalf("rotated key not persisted: %v", err)
	}
	if _, err := repo.FindByAPIKey(ctx, oldKey); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("old key should be invalidated, got %v", err)
	}

	// guests carry no user ID and cannot rotate keys
	if _, err := svc.RefreshAPIKey(ctx, "", "guest@x.test"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for guest, got %v", err)
	}
}
