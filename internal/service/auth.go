package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("expired token")
	ErrWrongPassword   = errors.New("wrong password")
	ErrWeakPassword    = errors.New("password must be at least 8 characters")
	ErrInvalidUsername = errors.New("invalid username")
)

const sessionTTL = 7 * 24 * time.Hour

func validateUsername(username string) error {
	if len(username) < 3 || len(username) > 50 {
		return fmt.Errorf("must be between 3 and 50 characters")
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return fmt.Errorf("must contain only letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

type AuthService struct {
	users     port.UserStore
	oauth     port.TokenExchanger
	secretKey string
}

func NewAuthService(users port.UserStore, oauth port.TokenExchanger, secretKey string) *AuthService {
	return &AuthService{
		users:     users,
		oauth:     oauth,
		secretKey: secretKey,
	}
}

func (s *AuthService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUsername, err)
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.users.CreateUser(ctx, username, string(passwordHash))
}

// Login validates the password and mints a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Authorized, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	token, expiresAt := s.generateToken(user.ID)
	return &domain.Authorized{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) generateToken(userID int64) (string, time.Time) {
	issued := time.Now().UTC()
	timestamp := strconv.FormatInt(issued.Unix(), 10)
	id := strconv.FormatInt(userID, 10)
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + ":" + id))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return timestamp + ":" + id + ":" + signature, issued.Add(sessionTTL)
}

// ValidateToken resolves a session token back to its user.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	timestamp, userIDStr, signature := parts[0], parts[1], parts[2]

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + ":" + userIDStr))
	expected := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, ErrInvalidToken
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if time.Now().After(time.Unix(ts, 0).Add(sessionTTL)) {
		return nil, ErrExpiredToken
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// ConsentURL starts the platform consent flow for the given user.
func (s *AuthService) ConsentURL(userID int64) string {
	return s.oauth.ConsentURL(strconv.FormatInt(userID, 10))
}

// HandleOAuthCallback exchanges the consent callback code and stores the
// platform credentials on the user. The result is the tagged variant: either
// a fresh session or a renewed consent redirect.
func (s *AuthService) HandleOAuthCallback(ctx context.Context, user *domain.User, code string) (domain.AuthResult, error) {
	fresh, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		var reauth *domain.ReauthRequiredError
		if errors.As(err, &reauth) {
			return domain.NeedsReauth{ConsentURL: reauth.ConsentURL}, nil
		}
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	merged := user.Credentials.Merge(fresh)
	if err := s.users.UpdateCredentials(ctx, user.ID, merged); err != nil {
		return nil, fmt.Errorf("persist credentials: %w", err)
	}
	user.Credentials = merged

	token, expiresAt := s.generateToken(user.ID)
	return domain.Authorized{Token: token, ExpiresAt: expiresAt}, nil
}
