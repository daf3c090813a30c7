package store

import (
	"context"
	"errors"
	"time"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

var (
	// ErrConflict is returned when a write violates a uniqueness or reference constraint.
	ErrConflict = errors.New("conflicting record")
	// ErrNotFound is returned by writes that target a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientStock is returned when a guarded stock decrement matches no row.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// BookQuery filters and pages the catalog. Empty filters match everything.
type BookQuery struct {
	Title  string
	Author string
	Genre  string
	ISBN   string
	Limit  int
	Offset int
}

// Store defines persistence operations for the bookstore.
// Lookups return (value, found, err); a missing row is not an error.
type Store interface {
	// users
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	SetLastLogin(ctx context.Context, userID string, at time.Time) error

	// api keys
	SaveAPIKey(ctx context.Context, k domain.APIKey) error
	GetAPIKeyByUser(ctx context.Context, userID string) (domain.APIKey, bool, error)
	GetAPIKeyByKey(ctx context.Context, key string) (domain.APIKey, bool, error)

	// books
	CreateBook(ctx context.Context, b domain.Book) error
	UpdateBook(ctx context.Context, b domain.Book) error
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	DeleteBook(ctx context.Context, id string) (bool, error)
	ListBooks(ctx context.Context, q BookQuery) ([]domain.Book, int64, error)

	// cart
	AddCartItem(ctx context.Context, item domain.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, bool, error)
	RemoveCartItem(ctx context.Context, userID, itemID string) (bool, error)
	CartLines(ctx context.Context, userID string) ([]domain.CartLine, error)

	// orders
	GetOrder(ctx context.Context, userID, orderID string) (domain.Order, bool, error)
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int64, error)
	ListOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (domain.Payment, bool, error)
	GetPaymentByProviderOrderID(ctx context.Context, providerOrderID string) (domain.Payment, bool, error)

	// reviews
	HasPurchased(ctx context.Context, userID, bookID string) (bool, error)
	CreateReview(ctx context.Context, r domain.Review) error
	GetReview(ctx context.Context, userID, reviewID string) (domain.Review, bool, error)
	UpdateReview(ctx context.Context, r domain.Review) error
	DeleteReview(ctx context.Context, userID, reviewID string) (bool, error)
	ListReviews(ctx context.Context, bookID string, limit, offset int) ([]domain.Review, int64, error)
	LatestReviews(ctx context.Context, bookIDs []string, perBook int) (map[string][]domain.Review, error)

	// WithinTx runs fn in one transaction. Any error from fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx holds the writes of the order workflow that must commit together.
type Tx interface {
	CreateOrder(o domain.Order) error
	CreatePayment(p domain.Payment) error
	CreateOrderItems(items []domain.OrderItem) error
	ClearCart(userID string) error

	// LockOrder reads an order owned by userID and holds it until the transaction ends.
	LockOrder(userID, orderID string) (domain.Order, bool, error)
	ListOrderItems(orderID string) ([]domain.OrderItem, error)
	// DecrementStock subtracts quantity only while enough stock remains.
	DecrementStock(bookID string, quantity int) error
	// SetStatus is the only writer of order and payment status; both rows change together.
	SetStatus(orderID string, order domain.OrderStatus, payment domain.PaymentStatus) error
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
