package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
	"github.com/vishal065/BookBazaar-masterji/pkg/storage"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

// BookInput is a complete book as submitted by an admin.
type BookInput struct {
	Title       string
	Author      string
	Genre       string
	Description string
	ISBN        string
	Price       decimal.Decimal
	Stock       int
}

// BookPatch carries the fields of a partial update; nil fields are kept.
type BookPatch struct {
	Title       *string
	Author      *string
	Genre       *string
	Description *string
	ISBN        *string
	Price       *decimal.Decimal
	Stock       *int
}

// BookFilter selects books by case-insensitive substring or exact ISBN.
type BookFilter struct {
	Title  string
	Author string
	Genre  string
	ISBN   string
}

func (f BookFilter) empty() bool {
	return strings.TrimSpace(f.Title) == "" && strings.TrimSpace(f.Author) == "" &&
		strings.TrimSpace(f.Genre) == "" && strings.TrimSpace(f.ISBN) == ""
}

// BookPage is one page of the catalog.
type BookPage struct {
	Books      []domain.Book `json:"books"`
	Pagination Pagination    `json:"pagination"`
}

func validateBook(b domain.Book) error {
	var v validation
	v.check(strings.TrimSpace(b.Title) != "", "title is required")
	v.check(strings.TrimSpace(b.Author) != "", "author is required")
	v.check(strings.TrimSpace(b.ISBN) != "", "isbn is required")
	v.check(!b.Price.IsNegative(), "price must not be negative")
	v.check(b.Stock >= 0, "stock must not be negative")
	return v.err()
}

func bookWriteError(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrISBNExists
	case errors.Is(err, store.ErrNotFound):
		return ErrBookNotFound
	}
	return fmt.Errorf("%s book: %w", op, err)
}

// CreateBook adds a book to the catalog.
func (a *App) CreateBook(ctx context.Context, in BookInput) (domain.Book, error) {
	now := a.clock()
	book := domain.Book{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Author:      strings.TrimSpace(in.Author),
		Genre:       strings.TrimSpace(in.Genre),
		Description: strings.TrimSpace(in.Description),
		ISBN:        strings.TrimSpace(in.ISBN),
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateBook(book); err != nil {
		return domain.Book{}, err
	}
	if err := a.store.CreateBook(ctx, book); err != nil {
		return domain.Book{}, bookWriteError(err, "create")
	}
	return book, nil
}

// UpdateBook applies a partial update.
func (a *App) UpdateBook(ctx context.Context, id string, patch BookPatch) (domain.Book, error) {
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	if patch.Title != nil {
		book.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Author != nil {
		book.Author = strings.TrimSpace(*patch.Author)
	}
	if patch.Genre != nil {
		book.Genre = strings.TrimSpace(*patch.Genre)
	}
	if patch.Description != nil {
		book.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.ISBN != nil {
		book.ISBN = strings.TrimSpace(*patch.ISBN)
	}
	if patch.Price != nil {
		book.Price = patch.Price.Round(2)
	}
	if patch.Stock != nil {
		book.Stock = *patch.Stock
	}
	if err := validateBook(book); err != nil {
		return domain.Book{}, err
	}
	book.UpdatedAt = a.clock()
	if err := a.store.UpdateBook(ctx, book); err != nil {
		return domain.Book{}, bookWriteError(err, "update")
	}
	return book, nil
}

// DeleteBook removes a book that no order references, together with its cover.
func (a *App) DeleteBook(ctx context.Context, id string) error {
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := a.store.DeleteBook(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrBookInUse
		}
		return fmt.Errorf("delete book: %w", err)
	}
	if !deleted {
		return ErrBookNotFound
	}
	a.dropCover(ctx, book.CoverKey)
	return nil
}

// GetBook returns a book with its latest reviews and a presigned cover URL.
func (a *App) GetBook(ctx context.Context, id string) (domain.Book, error) {
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	books := []domain.Book{book}
	if err := a.decorate(ctx, books); err != nil {
		return domain.Book{}, err
	}
	return books[0], nil
}

// ListBooks pages through the whole catalog, newest first.
func (a *App) ListBooks(ctx context.Context, page, limit int) (BookPage, error) {
	return a.queryBooks(ctx, BookFilter{}, page, limit)
}

// SearchBooks pages through books matching filter; at least one field must be set.
func (a *App) SearchBooks(ctx context.Context, filter BookFilter, page, limit int) (BookPage, error) {
	if filter.empty() {
		return BookPage{}, ErrSearchFilterRequired
	}
	return a.queryBooks(ctx, filter, page, limit)
}

func (a *App) queryBooks(ctx context.Context, filter BookFilter, page, limit int) (BookPage, error) {
	page, limit = normalizePage(page, limit)
	books, total, err := a.store.ListBooks(ctx, store.BookQuery{
		Title:  filter.Title,
		Author: filter.Author,
		Genre:  filter.Genre,
		ISBN:   filter.ISBN,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return BookPage{}, fmt.Errorf("list books: %w", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	if err := a.decorate(ctx, books); err != nil {
		return BookPage{}, err
	}
	return BookPage{Books: books, Pagination: newPagination(page, limit, total)}, nil
}

// UploadCover stores a new cover image and replaces the previous one.
func (a *App) UploadCover(ctx context.Context, id string, r io.Reader) (domain.Book, error) {
	if a.objects == nil {
		return domain.Book{}, ErrCoverStorageDisabled
	}
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	cover, err := storage.ReadCover(r, a.coverMaxBytes)
	if err != nil {
		return domain.Book{}, err
	}
	key := storage.CoverKey(book.ID, cover.Extension)
	if err := a.objects.Put(ctx, key, cover.Reader(), cover.Size(), cover.ContentType); err != nil {
		return domain.Book{}, fmt.Errorf("store cover: %w", err)
	}
	previous := book.CoverKey
	book.CoverKey = key
	book.UpdatedAt = a.clock()
	if err := a.store.UpdateBook(ctx, book); err != nil {
		a.dropCover(ctx, key)
		return domain.Book{}, bookWriteError(err, "update")
	}
	a.dropCover(ctx, previous)
	book.CoverURL = a.coverURL(ctx, key)
	return book, nil
}

func (a *App) loadBook(ctx context.Context, id string) (domain.Book, error) {
	book, found, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("load book: %w", err)
	}
	if !found {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// decorate attaches the latest reviews and cover URLs in place.
func (a *App) decorate(ctx context.Context, books []domain.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]string, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	reviews, err := a.store.LatestReviews(ctx, ids, latestReviews)
	if err != nil {
		return fmt.Errorf("load reviews: %w", err)
	}
	for i := range books {
		books[i].Reviews = reviews[books[i].ID]
		if books[i].Reviews == nil {
			books[i].Reviews = []domain.Review{}
		}
		books[i].CoverURL = a.coverURL(ctx, books[i].CoverKey)
	}
	return nil
}

func (a *App) coverURL(ctx context.Context, key string) string {
	if key == "" || a.objects == nil {
		return ""
	}
	url, err := a.objects.PresignGet(ctx, key, a.presignExpiry)
	if err != nil {
		slog.WarnContext(ctx, "cover_presign_failed", "key", key, "err", err)
		return ""
	}
	return url
}

func (a *App) dropCover(ctx context.Context, key string) {
	if key == "" || a.objects == nil {
		return
	}
	if err := a.objects.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "cover_delete_failed", "key", key, "err", err)
	}
}
