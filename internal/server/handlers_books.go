package server

import (
	"errors"
	"net/http"

	"github.com/vishal065/BookBazaar-masterji/internal/app"
	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req bookRequest
	if !s.decode(w, r, &req) {
		return
	}
	book, err := s.app.CreateBook(r.Context(), req.input())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "books.add", "success", "user_id", user.ID, "book_id", book.ID)
	respond(w, http.StatusCreated, "Book added successfully", book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req bookPatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	book, err := s.app.UpdateBook(r.Context(), r.PathValue("id"), req.patch())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "books.update", "success", "user_id", user.ID, "book_id", book.ID)
	respond(w, http.StatusOK, "Book updated successfully", book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := r.PathValue("id")
	if err := s.app.DeleteBook(r.Context(), id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "books.delete", "success", "user_id", user.ID, "book_id", id)
	respond(w, http.StatusOK, "Book deleted successfully", nil)
}

func (s *Server) handleUploadCover(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxCoverBytes+1<<20)
	if err := r.ParseMultipartForm(s.maxCoverBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, http.StatusRequestEntityTooLarge, "Cover image is too large", nil, nil)
			return
		}
		s.fail(w, r, http.StatusBadRequest, "Invalid form data", nil, err)
		return
	}
	file, _, err := r.FormFile("cover")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Validation failed", []string{"cover is required"}, nil)
		return
	}
	defer file.Close()
	book, err := s.app.UploadCover(r.Context(), r.PathValue("id"), file)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "books.cover", "success", "user_id", user.ID, "book_id", book.ID)
	respond(w, http.StatusOK, "Cover uploaded successfully", book)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := s.app.ListBooks(r.Context(), queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Books fetched successfully", page)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.app.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Book fetched successfully", book)
}

func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := app.BookFilter{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Genre:  q.Get("genre"),
		ISBN:   q.Get("isbn"),
	}
	page, err := s.app.SearchBooks(r.Context(), filter, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Books fetched successfully", page)
}
