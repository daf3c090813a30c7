package domain

import (
	"errors"
	"fmt"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFulfilled OrderStatus = "fulfilled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// OrderEvent drives an order (and its payment) from one status to the next.
type OrderEvent string

const (
	EventPaymentVerified OrderEvent = "payment_verified"
	EventPaymentRejected OrderEvent = "payment_rejected"
	EventCancel          OrderEvent = "cancel"
)

// ErrInvalidTransition is returned for an event the current status does not accept.
var ErrInvalidTransition = errors.New("invalid order status transition")

type transitionKey struct {
	from  OrderStatus
	event OrderEvent
}

type transitionTarget struct {
	order   OrderStatus
	payment PaymentStatus
}

// Every legal move. Cancelled and Failed are terminal.
var transitions = map[transitionKey]transitionTarget{
	{OrderPending, EventPaymentVerified}: {OrderFulfilled, PaymentPaid},
	{OrderPending, EventPaymentRejected}: {OrderFailed, PaymentFailed},
	{OrderPending, EventCancel}:          {OrderCancelled, PaymentRefunded},
	{OrderFulfilled, EventCancel}:        {OrderCancelled, PaymentRefunded},
}

// Transition returns the order and payment status that follow event from the
// given order status. Both values must be written together.
func Transition(from OrderStatus, event OrderEvent) (OrderStatus, PaymentStatus, error) {
	target, ok := transitions[transitionKey{from: from, event: event}]
	if !ok {
		return from, PaymentStatusFor(from), fmt.Errorf("%w: %s on %s order", ErrInvalidTransition, event, from)
	}
	return target.order, target.payment, nil
}

// PaymentStatusFor returns the payment status paired with an order status.
func PaymentStatusFor(s OrderStatus) PaymentStatus {
	switch s {
	case OrderFulfilled:
		return PaymentPaid
	case OrderFailed:
		return PaymentFailed
	case OrderCancelled:
		return PaymentRefunded
	default:
		return PaymentPending
	}
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderFulfilled, OrderCancelled, OrderFailed:
		return true
	}
	return false
}

// Terminal reports whether no further event is accepted.
func (s OrderStatus) Terminal() bool {
	return s == OrderCancelled || s == OrderFailed
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}
