package domain

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from        OrderStatus
		event       OrderEvent
		wantOrder   OrderStatus
		wantPayment PaymentStatus
		wantErr     bool
	}{
		{OrderPending, EventPaymentVerified, OrderFulfilled, PaymentPaid, false},
		{OrderPending, EventPaymentRejected, OrderFailed, PaymentFailed, false},
		{OrderPending, EventCancel, OrderCancelled, PaymentRefunded, false},
		{OrderFulfilled, EventCancel, OrderCancelled, PaymentRefunded, false},
		{OrderFulfilled, EventPaymentVerified, OrderFulfilled, PaymentPaid, true},
		{OrderFulfilled, EventPaymentRejected, OrderFulfilled, PaymentPaid, true},
		{OrderFailed, EventCancel, OrderFailed, PaymentFailed, true},
		{OrderFailed, EventPaymentVerified, OrderFailed, PaymentFailed, true},
		{OrderCancelled, EventCancel, OrderCancelled, PaymentRefunded, true},
		{OrderCancelled, EventPaymentRejected, OrderCancelled, PaymentRefunded, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"/"+string(tc.event), func(t *testing.T) {
			order, payment, err := Transition(tc.from, tc.event)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if order != tc.wantOrder || payment != tc.wantPayment {
				t.Fatalf("got %s/%s, want %s/%s", order, payment, tc.wantOrder, tc.wantPayment)
			}
		})
	}
}

func TestTransitionKeepsStatusPairing(t *testing.T) {
	statuses := []OrderStatus{OrderPending, OrderFulfilled, OrderCancelled, OrderFailed}
	events := []OrderEvent{EventPaymentVerified, EventPaymentRejected, EventCancel}
	for _, from := range statuses {
		for _, event := range events {
			order, payment, err := Transition(from, event)
			if err != nil {
				continue
			}
			if !order.Valid() || !payment.Valid() {
				t.Fatalf("%s/%s produced unknown status %s/%s", from, event, order, payment)
			}
			if PaymentStatusFor(order) != payment {
				t.Fatalf("%s/%s broke pairing: order %s with payment %s", from, event, order, payment)
			}
		}
	}
}

func TestTerminalStatusesAcceptNoEvent(t *testing.T) {
	for _, from := range []OrderStatus{OrderCancelled, OrderFailed} {
		if !from.Terminal() {
			t.Fatalf("%s should be terminal", from)
		}
		for _, event := range []OrderEvent{EventPaymentVerified, EventPaymentRejected, EventCancel} {
			if _, _, err := Transition(from, event); err == nil {
				t.Fatalf("%s accepted %s", from, event)
			}
		}
	}
}
