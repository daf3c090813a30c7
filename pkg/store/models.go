package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	LastLogin    *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type APIKeyModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex;not null"`
	Key       string `gorm:"column:api_key;uniqueIndex;not null"`
	Active    bool   `gorm:"not null;default:true"`
	ExpiresAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type BookModel struct {
	ID          string          `gorm:"primaryKey"`
	Title       string          `gorm:"not null;index"`
	Author      string          `gorm:"not null;index"`
	Genre       string          `gorm:"index"`
	Description string          `gorm:"type:text"`
	ISBN        string          `gorm:"column:isbn;uniqueIndex;not null"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null;check:chk_book_price,price >= 0"`
	Stock       int             `gorm:"not null;default:0;check:chk_book_stock,stock >= 0"`
	CoverKey    string
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type CartItemModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_cart_user_book"`
	BookID    string    `gorm:"not null;uniqueIndex:idx_cart_user_book;index"`
	Quantity  int       `gorm:"not null;check:chk_cart_quantity,quantity > 0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type OrderModel struct {
	ID            string          `gorm:"primaryKey"`
	UserID        string          `gorm:"not null;index"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status        string          `gorm:"not null;index"`
	ExcludedItems datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt     time.Time       `gorm:"not null;index"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

type OrderItemModel struct {
	ID        string          `gorm:"primaryKey"`
	OrderID   string          `gorm:"not null;index"`
	BookID    string          `gorm:"not null;index"`
	Quantity  int             `gorm:"not null;check:chk_order_item_quantity,quantity > 0"`
	Price     decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

type PaymentModel struct {
	ID                string          `gorm:"primaryKey"`
	OrderID           string          `gorm:"not null;uniqueIndex"`
	UserID            string          `gorm:"not null;index"`
	Provider          string          `gorm:"not null"`
	ProviderOrderID   string          `gorm:"not null;uniqueIndex"`
	ProviderPaymentID string          `gorm:"not null;uniqueIndex"`
	ProviderSignature string          `gorm:"not null;uniqueIndex"`
	Amount            decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status            string          `gorm:"not null"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

type ReviewModel struct {
	ID        string    `gorm:"primaryKey"`
	BookID    string    `gorm:"not null;uniqueIndex:idx_review_book_user"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_review_book_user"`
	Rating    int       `gorm:"not null;check:chk_review_rating,rating BETWEEN 1 AND 5"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}
