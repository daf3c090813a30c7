package server

import (
	"net/http"

	"github.com/vishal065/BookBazaar-masterji/internal/app"
	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.orderLimiter, "Too many order attempts") {
		s.audit(r, "orders.place", "rate_limited", "user_id", user.ID)
		return
	}
	placed, err := s.app.PlaceOrder(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	msg := "Order placed successfully"
	if len(placed.OutOfStock) > 0 {
		msg = "Order placed, few items are out of stock"
	}
	respond(w, http.StatusCreated, msg, placeOrderResponse{
		Order:           placed.Order,
		TotalAmount:     placed.Order.TotalAmount,
		Payment:         newPaymentView(placed.Payment),
		OutOfStockItems: placed.OutOfStock,
	})
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.orderLimiter, "Too many payment attempts") {
		s.audit(r, "orders.verify", "rate_limited", "user_id", user.ID)
		return
	}
	var req verifyPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.app.VerifyPayment(r.Context(), user, app.PaymentProof{
		ProviderOrderID:   req.RazorpayOrderID,
		ProviderPaymentID: req.RazorpayPaymentID,
		Signature:         req.RazorpaySignature,
	})
	if err != nil {
		s.audit(r, "orders.verify", "fail", "user_id", user.ID, "order_id", req.RazorpayOrderID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "orders.verify", "success", "user_id", user.ID, "order_id", res.Order.ID)
	if res.AlreadyFulfilled {
		respond(w, http.StatusOK, "Order already fulfilled", res.Order)
		return
	}
	respond(w, http.StatusOK, "Order paid successfully", res.Order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, user domain.User) {
	list, err := s.app.ListOrders(r.Context(), user, queryInt(r, "page"), queryInt(r, "pageSize"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Orders fetched", list)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, user domain.User) {
	detail, err := s.app.GetOrder(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Order fetched successfully", detail)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, user domain.User) {
	res, err := s.app.CancelOrder(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "orders.cancel", "success", "user_id", user.ID, "order_id", res.Order.ID, "refunded", res.Refunded)
	if res.Refunded {
		respond(w, http.StatusOK, "Order cancelled and refund initiated", res.Order)
		return
	}
	respond(w, http.StatusOK, "Order cancelled successfully", res.Order)
}
