package app

import (
	"errors"
	"strings"
)

// Messages of these errors are shown to clients as-is.
var (
	ErrUserExists         = errors.New("User already exists")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrInvalidAdminKey    = errors.New("Invalid admin key")
	ErrUnauthorized       = errors.New("Unauthorized")

	ErrAPIKeyMissing  = errors.New("API key is required")
	ErrAPIKeyInvalid  = errors.New("Invalid or expired API key")
	ErrAPIKeyNotFound = errors.New("API key not found")

	ErrBookNotFound         = errors.New("Book not found")
	ErrISBNExists           = errors.New("A book with this ISBN already exists")
	ErrBookInUse            = errors.New("Book is referenced by existing orders")
	ErrSearchFilterRequired = errors.New("At least one search filter is required")
	ErrCoverStorageDisabled = errors.New("Cover storage is not configured")

	ErrAlreadyInCart    = errors.New("Book already in cart")
	ErrInvalidQuantity  = errors.New("Invalid quantity")
	ErrCartItemNotFound = errors.New("Cart item not found")

	ErrCartEmpty              = errors.New("Cart is empty")
	ErrAllOutOfStock          = errors.New("All items in cart are out of stock")
	ErrOrderNotFound          = errors.New("Order not found")
	ErrPaymentDetailsRequired = errors.New("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	ErrPaymentMismatch        = errors.New("Invalid payment details")
	ErrInsufficientStock      = errors.New("Insufficient stock")
	ErrInvalidOrderState      = errors.New("Order status does not allow this action")

	ErrPurchaseRequired = errors.New("Purchase required to review this book")
	ErrAlreadyReviewed  = errors.New("You have already reviewed this book")
	ErrReviewNotFound   = errors.New("Review not found")
)

// ValidationError carries one message per rejected field.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "Validation failed"
	}
	return "Validation failed: " + strings.Join(e.Errors, "; ")
}

func invalid(msgs ...string) error {
	return &ValidationError{Errors: msgs}
}

// validation collects field problems and yields a *ValidationError when any were recorded.
type validation struct {
	errs []string
}

func (v *validation) check(ok bool, msg string) {
	if !ok {
		v.errs = append(v.errs, msg)
	}
}

func (v *validation) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errs}
}
