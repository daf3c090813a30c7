package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

// AddToCart puts a book in the caller's cart. A book can be in the cart once.
func (a *App) AddToCart(ctx context.Context, user domain.User, bookID string, quantity int) (domain.CartItem, error) {
	if bookID == "" {
		return domain.CartItem{}, invalid("bookId is required")
	}
	if quantity < 1 {
		return domain.CartItem{}, ErrInvalidQuantity
	}
	if _, err := a.loadBook(ctx, bookID); err != nil {
		return domain.CartItem{}, err
	}
	now := a.clock()
	item := domain.CartItem{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		BookID:    bookID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.AddCartItem(ctx, item); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.CartItem{}, ErrAlreadyInCart
		}
		return domain.CartItem{}, fmt.Errorf("add cart item: %w", err)
	}
	return item, nil
}

// UpdateCartItem sets a line's quantity. Zero removes the line and reports removed.
func (a *App) UpdateCartItem(ctx context.Context, user domain.User, itemID string, quantity int) (domain.CartItem, bool, error) {
	if quantity < 0 {
		return domain.CartItem{}, false, ErrInvalidQuantity
	}
	if quantity == 0 {
		if err := a.RemoveCartItem(ctx, user, itemID); err != nil {
			return domain.CartItem{}, false, err
		}
		return domain.CartItem{}, true, nil
	}
	item, found, err := a.store.UpdateCartItemQuantity(ctx, user.ID, itemID, quantity)
	if err != nil {
		return domain.CartItem{}, false, fmt.Errorf("update cart item: %w", err)
	}
	if !found {
		return domain.CartItem{}, false, ErrCartItemNotFound
	}
	return item, false, nil
}

// GetCart returns the caller's cart lines with current book details.
func (a *App) GetCart(ctx context.Context, user domain.User) ([]domain.CartLine, error) {
	lines, err := a.store.CartLines(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return lines, nil
}

// RemoveCartItem deletes one of the caller's cart lines.
func (a *App) RemoveCartItem(ctx context.Context, user domain.User, itemID string) error {
	removed, err := a.store.RemoveCartItem(ctx, user.ID, itemID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if !removed {
		return ErrCartItemNotFound
	}
	return nil
}
