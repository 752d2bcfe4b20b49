package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Profile is the public view of an account.
type Profile struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"fullName,omitempty"`
	PictureURL string `json:"pictureUrl,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// Session is returned by sign up and login. AccessToken is empty when the provider
// requires email confirmation first.
type Session struct {
	AccessToken string    `json:"accessToken,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	User        Profile   `json:"user"`
}

// Provider implements account operations for one identity backend.
type Provider interface {
	Name() string
	SignUp(ctx context.Context, email, password, fullName string) (Session, error)
	Login(ctx context.Context, email, password string) (Session, error)
	Logout(ctx context.Context, accessToken string) error
	User(ctx context.Context, accessToken string) (Profile, error)
}

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnauthorized       = errors.New("unauthorized")
)

// UpstreamError reports a failure of the hosted identity service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("auth upstream status %d: %s", e.StatusCode, e.Message)
}

const minPasswordLength = 6

var credentialRules = validator.New()

func validateCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if err := credentialRules.Var(email, "email"); err != nil {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if err := credentialRules.Var(password, fmt.Sprintf("min=%d", minPasswordLength)); err != nil {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	return email, nil
}
