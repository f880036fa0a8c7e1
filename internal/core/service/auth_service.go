package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{5,20}$`)
	displayRegex  = regexp.MustCompile(`^[a-zA-Z0-9_ ]{5,20}$`)
)

// AuthService implements registration, login, and API key rotation.
type AuthService struct {
	repo      ports.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthService(repo ports.UserRepository, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{repo: repo, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

func (s *AuthService) Register(ctx context.Context, username, password, email, displayName string) (*domain.User, error) {
	if !usernameRegex.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 5-20 letters, digits, or underscores", domain.ErrValidation)
	}
	if !displayRegex.MatchString(displayName) {
		return nil, fmt.Errorf("%w: invalid display name", domain.ErrValidation)
	}
	if len(password) < 5 || len(password) > 20 {
		return nil, fmt.Errorf("%w: password must be 5-20 characters", domain.ErrValidation)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		Email:        email,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Permissions:  domain.StudentPermissions,
		APIKey:       generateAPIKey(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// RefreshAPIKey rotates the caller's API key, persists it, and returns the
// new 64-hex value.
func (s *AuthService) RefreshAPIKey(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", domain.ErrUserNotFound
	}

	key := generateAPIKey()
	if err := s.repo.UpdateAPIKey(ctx, userID, key); err != nil {
		return "", fmt.Errorf("update api key: %w", err)
	}
	return key, nil
}

func (s *AuthService) generateToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":      user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"permissions":  user.Permissions,
		"exp":          time.Now().Add(s.tokenTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}

// generateAPIKey returns 32 random bytes hex-encoded (64 characters).
func generateAPIKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process has bigger problems; fall
		// back to a time-derived key rather than returning an empty one.
		return fmt.Sprintf("%064x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
