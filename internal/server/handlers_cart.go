package server

import (
	"net/http"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req addToCartRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.app.AddToCart(r.Context(), user, req.BookID, req.Quantity)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Item added to cart", item)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req updateCartRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, removed, err := s.app.UpdateCartItem(r.Context(), user, r.PathValue("id"), *req.Quantity)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if removed {
		respond(w, http.StatusOK, "Item removed from cart", nil)
		return
	}
	respond(w, http.StatusOK, "Cart item updated", item)
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request, user domain.User) {
	lines, err := s.app.GetCart(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if len(lines) == 0 {
		respond(w, http.StatusOK, "Cart is empty", lines)
		return
	}
	respond(w, http.StatusOK, "Cart fetched successfully", lines)
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.RemoveCartItem(r.Context(), user, r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Item removed from cart", nil)
}
