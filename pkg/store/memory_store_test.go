package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

func seedBook(t *testing.T, s *MemoryStore, id, isbn string, stock int, created time.Time) domain.Book {
	t.Helper()
	b := domain.Book{
		ID:        id,
		Title:     "Title " + id,
		Author:    "Author " + id,
		Genre:     "fiction",
		ISBN:      isbn,
		Price:     decimal.RequireFromString("10.00"),
		Stock:     stock,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, s.CreateBook(context.Background(), b))
	return b
}

func seedOrder(t *testing.T, s *MemoryStore, userID, orderID, bookID string) {
	t.Helper()
	now := time.Now().UTC()
	err := s.WithinTx(context.Background(), func(tx Tx) error {
		if err := tx.CreateOrder(domain.Order{ID: orderID, UserID: userID, Status: domain.OrderPending, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.CreatePayment(domain.Payment{ID: "pay-" + orderID, OrderID: orderID, UserID: userID, ProviderOrderID: orderID, Status: domain.PaymentPending}); err != nil {
			return err
		}
		return tx.CreateOrderItems([]domain.OrderItem{{ID: "item-" + orderID, OrderID: orderID, BookID: bookID, Quantity: 1, Price: decimal.RequireFromString("10.00")}})
	})
	require.NoError(t, err)
}

func TestMemoryStoreConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, s.CreateUser(ctx, domain.User{ID: "u1", Email: "a@example.com"}))
	err := s.CreateUser(ctx, domain.User{ID: "u2", Email: "A@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	seedBook(t, s, "b1", "isbn-1", 3, now)
	err = s.CreateBook(ctx, domain.Book{ID: "b2", ISBN: "isbn-1"})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.AddCartItem(ctx, domain.CartItem{ID: "c1", UserID: "u1", BookID: "b1", Quantity: 1}))
	err = s.AddCartItem(ctx, domain.CartItem{ID: "c2", UserID: "u1", BookID: "b1", Quantity: 2})
	assert.ErrorIs(t, err, ErrConflict)
	err = s.AddCartItem(ctx, domain.CartItem{ID: "c3", UserID: "u1", BookID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.CreateReview(ctx, domain.Review{ID: "r1", BookID: "b1", UserID: "u1", Rating: 5}))
	err = s.CreateReview(ctx, domain.Review{ID: "r2", BookID: "b1", UserID: "u1", Rating: 4})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStoreWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedBook(t, s, "b1", "isbn-1", 1, time.Now().UTC())
	require.NoError(t, s.AddCartItem(ctx, domain.CartItem{ID: "c1", UserID: "u1", BookID: "b1", Quantity: 1}))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.CreateOrder(domain.Order{ID: "o1", UserID: "u1", Status: domain.OrderPending}))
		require.NoError(t, tx.DecrementStock("b1", 1))
		require.NoError(t, tx.ClearCart("u1"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, found, err := s.GetOrder(ctx, "u1", "o1")
	require.NoError(t, err)
	assert.False(t, found, "order should be rolled back")

	b, _, _ := s.GetBook(ctx, "b1")
	assert.Equal(t, 1, b.Stock)

	lines, err := s.CartLines(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestMemoryStoreDecrementStockGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedBook(t, s, "b1", "isbn-1", 2, time.Now().UTC())

	err := s.WithinTx(ctx, func(tx Tx) error { return tx.DecrementStock("b1", 3) })
	assert.ErrorIs(t, err, ErrInsufficientStock)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.DecrementStock("b1", 2) }))
	b, _, _ := s.GetBook(ctx, "b1")
	assert.Equal(t, 0, b.Stock)
}

func TestMemoryStoreSetStatusWritesBothRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedBook(t, s, "b1", "isbn-1", 2, time.Now().UTC())
	seedOrder(t, s, "u1", "o1", "b1")

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.SetStatus("o1", domain.OrderFulfilled, domain.PaymentPaid)
	}))
	o, found, err := s.GetOrder(ctx, "u1", "o1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.OrderFulfilled, o.Status)
	p, found, err := s.GetPaymentByOrderID(ctx, "o1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.PaymentPaid, p.Status)

	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.SetStatus("missing", domain.OrderFulfilled, domain.PaymentPaid)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListBooksPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedBook(t, s, "b1", "isbn-1", 1, base)
	seedBook(t, s, "b2", "isbn-2", 1, base.Add(time.Hour))
	seedBook(t, s, "b3", "isbn-3", 1, base.Add(2*time.Hour))

	books, total, err := s.ListBooks(ctx, BookQuery{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, books, 2)
	assert.Equal(t, "b3", books[0].ID)
	assert.Equal(t, "b2", books[1].ID)

	books, _, err = s.ListBooks(ctx, BookQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "b1", books[0].ID)

	books, total, err = s.ListBooks(ctx, BookQuery{Title: "title b2"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "b2", books[0].ID)
}

func TestMemoryStoreDeleteBook(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	seedBook(t, s, "b1", "isbn-1", 1, now)
	seedBook(t, s, "b2", "isbn-2", 1, now)
	require.NoError(t, s.AddCartItem(ctx, domain.CartItem{ID: "c1", UserID: "u1", BookID: "b1", Quantity: 1}))
	seedOrder(t, s, "u1", "o1", "b2")

	deleted, err := s.DeleteBook(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, deleted)
	lines, _ := s.CartLines(ctx, "u1")
	assert.Empty(t, lines)

	_, err = s.DeleteBook(ctx, "b2")
	assert.ErrorIs(t, err, ErrConflict)

	deleted, err = s.DeleteBook(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStoreHasPurchasedRequiresFulfilled(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedBook(t, s, "b1", "isbn-1", 1, time.Now().UTC())
	seedOrder(t, s, "u1", "o1", "b1")

	ok, err := s.HasPurchased(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.SetStatus("o1", domain.OrderFulfilled, domain.PaymentPaid)
	}))
	ok, err = s.HasPurchased(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.HasPurchased(ctx, "u2", "b1")
	assert.False(t, ok)
}

func TestMemoryStoreLatestReviews(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedBook(t, s, "b1", "isbn-1", 1, base)
	for i, user := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.CreateReview(ctx, domain.Review{
			ID: "r-" + user, BookID: "b1", UserID: user, Rating: 4,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	latest, err := s.LatestReviews(ctx, []string{"b1", "b2"}, 2)
	require.NoError(t, err)
	require.Len(t, latest["b1"], 2)
	assert.Equal(t, "r-u3", latest["b1"][0].ID)
	assert.Equal(t, "r-u2", latest["b1"][1].ID)
	assert.NotContains(t, latest, "b2")
}

func TestMemoryStoreWithinTxHonorsCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithinTx(ctx, func(Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStoreListOrdersNegativeOffset(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	seedBook(t, s, "b1", "isbn-1", 1, now)
	seedOrder(t, s, "u1", "o1", "b1")

	orders, total, err := s.ListOrders(ctx, "u1", 10, -116)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Empty(t, orders)
}
