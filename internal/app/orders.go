package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
	"github.com/vishal065/BookBazaar-masterji/pkg/notify"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

const paymentProvider = "RAZORPAY"

// Payment verification outcomes reported to metrics.
const (
	outcomePaid              = "paid"
	outcomeAlreadyFulfilled  = "already_fulfilled"
	outcomeMismatch          = "mismatch"
	outcomeInsufficientStock = "insufficient_stock"
	outcomeError             = "error"
)

// PlacedOrder is the result of turning a cart into an order.
type PlacedOrder struct {
	Order      domain.Order
	Payment    domain.Payment
	Items      []domain.OrderItem
	OutOfStock []domain.OutOfStockItem
}

// PaymentProof is what the payment provider hands back to the client.
type PaymentProof struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

// VerifiedPayment reports the order after verification.
type VerifiedPayment struct {
	Order            domain.Order
	AlreadyFulfilled bool
}

// CancelledOrder reports the order after cancellation.
type CancelledOrder struct {
	Order domain.Order
	// Refunded is set when the order had been paid.
	Refunded bool
}

// OrderList is one page of the caller's orders.
type OrderList struct {
	Orders   []domain.Order `json:"orders"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int64          `json:"total"`
}

// OrderDetail is an order with its payment and book-annotated lines.
type OrderDetail struct {
	Order   domain.Order       `json:"order"`
	Payment *domain.Payment    `json:"payment"`
	Items   []domain.OrderLine `json:"items"`
}

// partitionCart splits cart lines into those the current stock can serve and those it cannot.
func partitionCart(lines []domain.CartLine) ([]domain.CartLine, []domain.OutOfStockItem) {
	var fulfillable []domain.CartLine
	var excluded []domain.OutOfStockItem
	for _, line := range lines {
		if line.BookMissing || line.Quantity > line.Stock {
			available := line.Stock
			if line.BookMissing {
				available = 0
			}
			excluded = append(excluded, domain.OutOfStockItem{
				CartItemID: line.ID,
				BookID:     line.BookID,
				Title:      line.Title,
				Quantity:   line.Quantity,
				Available:  available,
			})
			continue
		}
		fulfillable = append(fulfillable, line)
	}
	return fulfillable, excluded
}

func orderTotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total.Round(2)
}

// PlaceOrder converts the caller's cart into a pending order and payment.
// Lines the stock cannot serve are left out and reported; the whole cart is cleared.
func (a *App) PlaceOrder(ctx context.Context, user domain.User) (PlacedOrder, error) {
	lines, err := a.store.CartLines(ctx, user.ID)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return PlacedOrder{}, ErrCartEmpty
	}
	fulfillable, excluded := partitionCart(lines)
	if len(fulfillable) == 0 {
		return PlacedOrder{}, ErrAllOutOfStock
	}

	now := a.clock()
	orderID := uuid.NewString()
	total := orderTotal(fulfillable)
	order := domain.Order{
		ID:            orderID,
		UserID:        user.ID,
		TotalAmount:   total,
		Status:        domain.OrderPending,
		ExcludedItems: excluded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	payment := domain.Payment{
		ID:                uuid.NewString(),
		OrderID:           orderID,
		UserID:            user.ID,
		Provider:          paymentProvider,
		ProviderOrderID:   orderID,
		ProviderPaymentID: uuid.NewString(),
		ProviderSignature: uuid.NewString(),
		Amount:            total,
		Status:            domain.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	items := make([]domain.OrderItem, 0, len(fulfillable))
	for _, line := range fulfillable {
		items = append(items, domain.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			BookID:    line.BookID,
			Quantity:  line.Quantity,
			Price:     line.Price,
			CreatedAt: now,
		})
	}

	err = a.store.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateOrder(order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := tx.CreatePayment(payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		if err := tx.CreateOrderItems(items); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
		if err := tx.ClearCart(user.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return PlacedOrder{}, err
	}
	a.metrics.OrderPlaced()
	slog.InfoContext(ctx, "order_placed", "order_id", orderID, "user_id", user.ID, "total", total.StringFixed(2), "items", len(items), "excluded", len(excluded))
	return PlacedOrder{Order: order, Payment: payment, Items: items, OutOfStock: excluded}, nil
}

// applyTransition moves an order and its payment together. It is the only
// place order workflows change status.
func applyTransition(tx store.Tx, order domain.Order, event domain.OrderEvent, at time.Time) (domain.Order, error) {
	next, paymentStatus, err := domain.Transition(order.Status, event)
	if err != nil {
		return order, fmt.Errorf("%w: %w", ErrInvalidOrderState, err)
	}
	if err := tx.SetStatus(order.ID, next, paymentStatus); err != nil {
		return order, fmt.Errorf("set status: %w", err)
	}
	order.Status = next
	order.UpdatedAt = at
	return order, nil
}

// VerifyPayment confirms a payment for one of the caller's orders. A proof that
// does not match the stored payment fails a pending order. Verifying a paid
// order again succeeds without side effects.
func (a *App) VerifyPayment(ctx context.Context, user domain.User, proof PaymentProof) (VerifiedPayment, error) {
	proof.ProviderOrderID = strings.TrimSpace(proof.ProviderOrderID)
	proof.ProviderPaymentID = strings.TrimSpace(proof.ProviderPaymentID)
	proof.Signature = strings.TrimSpace(proof.Signature)
	if proof.ProviderOrderID == "" || proof.ProviderPaymentID == "" || proof.Signature == "" {
		return VerifiedPayment{}, ErrPaymentDetailsRequired
	}

	payment, found, err := a.store.GetPaymentByProviderOrderID(ctx, proof.ProviderOrderID)
	if err != nil {
		a.metrics.PaymentVerification(outcomeError)
		return VerifiedPayment{}, fmt.Errorf("load payment: %w", err)
	}
	if !found || payment.UserID != user.ID {
		return VerifiedPayment{}, ErrOrderNotFound
	}
	mismatch := payment.ProviderPaymentID != proof.ProviderPaymentID || payment.ProviderSignature != proof.Signature

	var result VerifiedPayment
	err = a.store.WithinTx(ctx, func(tx store.Tx) error {
		order, found, err := tx.LockOrder(user.ID, payment.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if !found {
			return ErrOrderNotFound
		}
		if mismatch {
			result.Order = order
			if order.Status != domain.OrderPending {
				return nil
			}
			result.Order, err = applyTransition(tx, order, domain.EventPaymentRejected, a.clock())
			return err
		}
		if order.Status == domain.OrderFulfilled {
			result = VerifiedPayment{Order: order, AlreadyFulfilled: true}
			return nil
		}

		updated, err := applyTransition(tx, order, domain.EventPaymentVerified, a.clock())
		if err != nil {
			return err
		}
		items, err := tx.ListOrderItems(order.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		for _, item := range items {
			if err := tx.DecrementStock(item.BookID, item.Quantity); err != nil {
				if errors.Is(err, store.ErrInsufficientStock) {
					return ErrInsufficientStock
				}
				return fmt.Errorf("decrement stock: %w", err)
			}
		}
		result.Order = updated
		return nil
	})

	switch {
	case err == nil && mismatch:
		a.metrics.PaymentVerification(outcomeMismatch)
		slog.WarnContext(ctx, "payment_mismatch", "order_id", payment.OrderID, "user_id", user.ID, "order_status", result.Order.Status)
		return VerifiedPayment{}, ErrPaymentMismatch
	case errors.Is(err, ErrInsufficientStock):
		a.metrics.PaymentVerification(outcomeInsufficientStock)
		return VerifiedPayment{}, err
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrInvalidOrderState):
		return VerifiedPayment{}, err
	case err != nil:
		a.metrics.PaymentVerification(outcomeError)
		return VerifiedPayment{}, err
	}

	if result.AlreadyFulfilled {
		a.metrics.PaymentVerification(outcomeAlreadyFulfilled)
		return result, nil
	}
	a.metrics.PaymentVerification(outcomePaid)
	slog.InfoContext(ctx, "order_paid", "order_id", result.Order.ID, "user_id", user.ID)
	a.sendConfirmation(ctx, user, result.Order)
	return result, nil
}

// sendConfirmation hands the confirmation mail off; failures are only logged.
func (a *App) sendConfirmation(ctx context.Context, user domain.User, order domain.Order) {
	if strings.TrimSpace(user.Email) == "" {
		return
	}
	lines, err := a.store.ListOrderLines(ctx, order.ID)
	if err != nil {
		slog.WarnContext(ctx, "confirmation_lines_failed", "order_id", order.ID, "err", err)
		return
	}
	msg, err := notify.OrderConfirmation(user.Email, order, lines)
	if err != nil {
		slog.WarnContext(ctx, "confirmation_render_failed", "order_id", order.ID, "err", err)
		return
	}
	a.notifier.Dispatch(ctx, msg)
}

// CancelOrder cancels one of the caller's pending or paid orders and marks its payment refunded.
func (a *App) CancelOrder(ctx context.Context, user domain.User, orderID string) (CancelledOrder, error) {
	var result CancelledOrder
	err := a.store.WithinTx(ctx, func(tx store.Tx) error {
		order, found, err := tx.LockOrder(user.ID, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if !found {
			return ErrOrderNotFound
		}
		wasPaid := order.Status == domain.OrderFulfilled
		updated, err := applyTransition(tx, order, domain.EventCancel, a.clock())
		if err != nil {
			return err
		}
		result = CancelledOrder{Order: updated, Refunded: wasPaid}
		return nil
	})
	if err != nil {
		return CancelledOrder{}, err
	}
	a.metrics.OrderCancelled()
	slog.InfoContext(ctx, "order_cancelled", "order_id", orderID, "user_id", user.ID, "refunded", result.Refunded)
	return result, nil
}

// ListOrders pages through the caller's orders, newest first.
func (a *App) ListOrders(ctx context.Context, user domain.User, page, pageSize int) (OrderList, error) {
	page, pageSize = normalizePage(page, pageSize)
	orders, total, err := a.store.ListOrders(ctx, user.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return OrderList{}, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return OrderList{Orders: orders, Page: page, PageSize: pageSize, Total: total}, nil
}

// GetOrder returns one of the caller's orders with payment and lines.
func (a *App) GetOrder(ctx context.Context, user domain.User, orderID string) (OrderDetail, error) {
	order, found, err := a.store.GetOrder(ctx, user.ID, orderID)
	if err != nil {
		return OrderDetail{}, fmt.Errorf("load order: %w", err)
	}
	if !found {
		return OrderDetail{}, ErrOrderNotFound
	}
	detail := OrderDetail{Order: order}
	payment, found, err := a.store.GetPaymentByOrderID(ctx, order.ID)
	if err != nil {
		return OrderDetail{}, fmt.Errorf("load payment: %w", err)
	}
	if found {
		detail.Payment = &payment
	}
	detail.Items, err = a.store.ListOrderLines(ctx, order.ID)
	if err != nil {
		return OrderDetail{}, fmt.Errorf("load order lines: %w", err)
	}
	if detail.Items == nil {
		detail.Items = []domain.OrderLine{}
	}
	return detail, nil
}
