package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IdentityProvider resolves a caller's credentials to a user ID.
type IdentityProvider interface {
	Authenticate(ctx context.Context, creds Credentials) (userID string, err error)
}

// Provider authenticates bearer tokens issued by Login, or a username and
// password checked against the user repository.
type Provider struct {
	users  UserRepository
	secret string
	ttl    time.Duration
}

// NewProvider creates a Provider signing tokens with secret.
func NewProvider(users UserRepository, secret string, ttl time.Duration) *Provider {
	return &Provider{users: users, secret: secret, ttl: ttl}
}

// Authenticate returns the user ID behind creds. Every failure is reported
// as ErrAuthenticationFailed so callers cannot enumerate usernames.
func (p *Provider) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if creds.Token != "" {
		claims, err := ParseToken(creds.Token, p.secret)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		user, err := p.users.GetByID(ctx, claims.Subject)
		if err != nil {
			return "", authFailure(err)
		}
		if !user.IsActive {
			return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, ErrUserInactive)
		}
		return user.ID, nil
	}

	user, err := p.checkPassword(ctx, creds.Username, creds.Password)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// Login verifies a username and password and issues an access token.
func (p *Provider) Login(ctx context.Context, username, password string) (*User, string, error) {
	user, err := p.checkPassword(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	token, err := GenerateAccessToken(user, p.secret, p.ttl)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// Register creates an active account.
func (p *Provider) Register(ctx context.Context, username, displayName, password string) (*User, error) {
	if !IsValidUsername(username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUser, username)
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{Username: username, DisplayName: displayName, PasswordHash: hash, IsActive: true}
	if err := p.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// TokenTTL returns the lifetime of issued tokens.
func (p *Provider) TokenTTL() time.Duration {
	if p.ttl <= 0 {
		return defaultTokenTTL
	}
	return p.ttl
}

func (p *Provider) checkPassword(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, ErrAuthenticationFailed
	}
	user, err := p.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, authFailure(err)
	}
	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrAuthenticationFailed
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, ErrUserInactive)
	}
	return user, nil
}

// authFailure maps lookup errors. Unknown users fail authentication;
// anything else is an infrastructure error.
func authFailure(err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return ErrAuthenticationFailed
	}
	return fmt.Errorf("looking up user: %w", err)
}
