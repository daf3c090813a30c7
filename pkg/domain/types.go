package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user may manage the catalog.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// APIKey grants read access to the public catalog. A user holds at most one.
type APIKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Key       string     `json:"key"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Usable reports whether the key is active and not expired at now.
func (k APIKey) Usable(now time.Time) bool {
	if !k.Active {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

type Book struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Genre       string          `json:"genre,omitempty"`
	Description string          `json:"description,omitempty"`
	ISBN        string          `json:"isbn"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CoverKey    string          `json:"-"`
	CoverURL    string          `json:"coverUrl,omitempty"`
	Reviews     []Review        `json:"reviews,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CartItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BookID    string    `json:"bookId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CartLine is a cart row left-joined with the current state of its book.
// BookMissing is set when the book no longer exists.
type CartLine struct {
	CartItem
	Title       string          `json:"title,omitempty"`
	Author      string          `json:"author,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	BookMissing bool            `json:"bookMissing,omitempty"`
}

// OutOfStockItem describes a cart line left out of an order.
type OutOfStockItem struct {
	CartItemID string `json:"cartItemId"`
	BookID     string `json:"bookId"`
	Title      string `json:"title,omitempty"`
	Quantity   int    `json:"quantity"`
	Available  int    `json:"available"`
}

type Order struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	TotalAmount   decimal.Decimal  `json:"totalAmount"`
	Status        OrderStatus      `json:"status"`
	ExcludedItems []OutOfStockItem `json:"excludedItems,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// OrderItem snapshots the unit price at placement time.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	BookID    string          `json:"bookId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Subtotal returns price × quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderLine is an order item joined with descriptive book fields.
type OrderLine struct {
	OrderItem
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
}

type Payment struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"orderId"`
	UserID            string          `json:"userId"`
	Provider          string          `json:"provider"`
	ProviderOrderID   string          `json:"providerOrderId"`
	ProviderPaymentID string          `json:"-"`
	ProviderSignature string          `json:"-"`
	Amount            decimal.Decimal `json:"amount"`
	Status            PaymentStatus   `json:"status"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type Review struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
