package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vishal065/BookBazaar-masterji/internal/util"
	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

const apiKeyBytes = 24

// GenerateAPIKey creates the caller's key, replacing any previous one.
func (a *App) GenerateAPIKey(ctx context.Context, user domain.User) (domain.APIKey, error) {
	secret, err := util.RandomHex(apiKeyBytes)
	if err != nil {
		return domain.APIKey{}, err
	}
	now := a.clock()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Key:       secret,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, fmt.Errorf("save api key: %w", err)
	}
	stored, found, err := a.store.GetAPIKeyByUser(ctx, user.ID)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("load api key: %w", err)
	}
	if !found {
		return key, nil
	}
	return stored, nil
}

// GetAPIKey returns the caller's key.
func (a *App) GetAPIKey(ctx context.Context, user domain.User) (domain.APIKey, error) {
	key, found, err := a.store.GetAPIKeyByUser(ctx, user.ID)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("load api key: %w", err)
	}
	if !found {
		return domain.APIKey{}, ErrAPIKeyNotFound
	}
	return key, nil
}

// ValidateAPIKey accepts an active, unexpired key.
func (a *App) ValidateAPIKey(ctx context.Context, presented string) (domain.APIKey, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return domain.APIKey{}, ErrAPIKeyMissing
	}
	key, found, err := a.store.GetAPIKeyByKey(ctx, presented)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("load api key: %w", err)
	}
	if !found || !key.Usable(a.clock()) {
		return domain.APIKey{}, ErrAPIKeyInvalid
	}
	return key, nil
}
