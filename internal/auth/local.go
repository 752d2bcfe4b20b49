package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	sharedauth "github.com/FIipFIop/perp-prediction/internal/shared/auth"
	"github.com/FIipFIop/perp-prediction/internal/users"
)

// LocalProvider stores accounts in the users repository with bcrypt password hashes
// and issues HS256 session tokens.
type LocalProvider struct {
	Users  *users.Service
	Issuer *sharedauth.Issuer
	Cost   int
}

// NewLocalProvider constructs a LocalProvider.
func NewLocalProvider(userSvc *users.Service, issuer *sharedauth.Issuer) *LocalProvider {
	return &LocalProvider{Users: userSvc, Issuer: issuer, Cost: bcrypt.DefaultCost}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) SignUp(ctx context.Context, email, password, fullName string) (Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return Session{}, err
	}
	user := users.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Provider:     users.ProviderLocal,
		PasswordHash: string(hash),
	}
	if err := p.Users.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, err
	}
	return p.issue(user)
}

func (p *LocalProvider) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := p.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if user.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return p.issue(user)
}

// Logout has nothing to release locally; the handler revokes the token.
func (p *LocalProvider) Logout(ctx context.Context, accessToken string) error {
	return ctx.Err()
}

func (p *LocalProvider) User(ctx context.Context, accessToken string) (Profile, error) {
	claims, err := p.Issuer.Verify(accessToken)
	if err != nil {
		return Profile{}, ErrUnauthorized
	}
	user, err := p.Users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Profile{}, ErrUnauthorized
		}
		return Profile{}, err
	}
	return profileFromUser(user), nil
}

func (p *LocalProvider) issue(user users.User) (Session, error) {
	token, err := p.Issuer.Sign(sharedauth.Claims{
		Email:            user.Email,
		Name:             user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
	})
	if err != nil {
		return Session{}, err
	}
	claims, err := p.Issuer.Verify(token)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time, User: profileFromUser(user)}, nil
}

func profileFromUser(user users.User) Profile {
	return Profile{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		PictureURL: user.PictureURL,
		Provider:   user.Provider,
	}
}
