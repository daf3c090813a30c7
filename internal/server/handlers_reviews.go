package server

import (
	"net/http"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

func (s *Server) handleAddReview(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	review, err := s.app.AddReview(r.Context(), user, req.BookID, req.Rating, req.Comment)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Review added successfully", review)
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req updateReviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	review, err := s.app.UpdateReview(r.Context(), user, r.PathValue("id"), req.Rating, req.Comment)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Review updated successfully", review)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteReview(r.Context(), user, r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Review deleted successfully", nil)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	page, err := s.app.ListReviews(r.Context(), r.URL.Query().Get("bookId"), queryInt(r, "page"), queryInt(r, "pageSize"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Reviews fetched successfully", page)
}
