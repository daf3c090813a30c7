package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/vishal065/BookBazaar-masterji/pkg/auth"
	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. A non-empty adminKey must match the configured
// super admin key and yields an admin account.
func (a *App) Register(ctx context.Context, email, password, adminKey string) (domain.User, error) {
	email = normalizeEmail(email)
	var v validation
	_, err := mail.ParseAddress(email)
	v.check(email != "" && err == nil, "email must be a valid email address")
	v.check(password != "", "password is required")
	if err := v.err(); err != nil {
		return domain.User{}, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, invalid(err.Error())
	}

	role := domain.RoleUser
	if adminKey = strings.TrimSpace(adminKey); adminKey != "" {
		if a.superAdminKey == "" || subtle.ConstantTimeCompare([]byte(adminKey), []byte(a.superAdminKey)) != 1 {
			return domain.User{}, ErrInvalidAdminKey
		}
		role = domain.RoleAdmin
	}

	_, exists, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrUserExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.clock()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks credentials, records the login time and issues a session token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", invalid("email and password are required")
	}
	user, found, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	now := a.clock()
	if err := a.store.SetLastLogin(ctx, user.ID, now); err != nil {
		return domain.User{}, "", fmt.Errorf("record login: %w", err)
	}
	user.LastLogin = &now
	user.UpdatedAt = now
	return user, token, nil
}

// Authenticate resolves a session token to its user.
func (a *App) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, ErrUnauthorized
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrUnauthorized
	}
	user, found, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// Logout revokes the token for the rest of its lifetime.
func (a *App) Logout(token string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
