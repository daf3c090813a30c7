package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vishal065/BookBazaar-masterji/internal/app"
	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type apiKeyResponse struct {
	Key       string     `json:"key"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type bookRequest struct {
	Title       string           `json:"title" validate:"required"`
	Author      string           `json:"author" validate:"required"`
	Genre       string           `json:"genre"`
	Description string           `json:"description"`
	ISBN        string           `json:"isbn" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Stock       int              `json:"stock" validate:"gte=0"`
}

func (b bookRequest) input() app.BookInput {
	return app.BookInput{
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		Description: b.Description,
		ISBN:        b.ISBN,
		Price:       *b.Price,
		Stock:       b.Stock,
	}
}

type bookPatchRequest struct {
	Title       *string          `json:"title"`
	Author      *string          `json:"author"`
	Genre       *string          `json:"genre"`
	Description *string          `json:"description"`
	ISBN        *string          `json:"isbn"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
}

func (b bookPatchRequest) patch() app.BookPatch {
	return app.BookPatch{
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		Description: b.Description,
		ISBN:        b.ISBN,
		Price:       b.Price,
		Stock:       b.Stock,
	}
}

type addToCartRequest struct {
	BookID   string `json:"bookId" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type updateCartRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

// paymentView exposes the provider identifiers the client needs to complete payment.
type paymentView struct {
	ID                string               `json:"id"`
	Provider          string               `json:"provider"`
	Amount            decimal.Decimal      `json:"amount"`
	Status            domain.PaymentStatus `json:"status"`
	UserID            string               `json:"userId"`
	RazorpayOrderID   string               `json:"razorpay_order_id"`
	RazorpayPaymentID string               `json:"razorpay_payment_id"`
	RazorpaySignature string               `json:"razorpay_signature"`
}

func newPaymentView(p domain.Payment) paymentView {
	return paymentView{
		ID:                p.ID,
		Provider:          p.Provider,
		Amount:            p.Amount,
		Status:            p.Status,
		UserID:            p.UserID,
		RazorpayOrderID:   p.ProviderOrderID,
		RazorpayPaymentID: p.ProviderPaymentID,
		RazorpaySignature: p.ProviderSignature,
	}
}

type placeOrderResponse struct {
	Order           domain.Order            `json:"order"`
	TotalAmount     decimal.Decimal         `json:"totalAmount"`
	Payment         paymentView             `json:"payment"`
	OutOfStockItems []domain.OutOfStockItem `json:"outOfStockItems,omitempty"`
}

type reviewRequest struct {
	BookID  string `json:"bookId" validate:"required"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// queryInt returns the integer query parameter, or 0 when absent or malformed
// so the application defaults apply.
func queryInt(r *http.Request, name string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
