package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

const maxCommentRunes = 2000

// ReviewPage is one page of a book's reviews.
type ReviewPage struct {
	Reviews  []domain.Review `json:"reviews"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Total    int64           `json:"total"`
}

// sanitizeComment reduces HTML to its visible text with whitespace collapsed.
func sanitizeComment(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return strings.Join(strings.Fields(raw), " ")
	}
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func validateReview(rating int, comment string) error {
	var v validation
	v.check(rating >= 1 && rating <= 5, "rating must be between 1 and 5")
	v.check(utf8.RuneCountInString(comment) <= maxCommentRunes, fmt.Sprintf("comment must be at most %d characters", maxCommentRunes))
	return v.err()
}

// AddReview records the caller's review of a book they have received.
func (a *App) AddReview(ctx context.Context, user domain.User, bookID string, rating int, comment string) (domain.Review, error) {
	if strings.TrimSpace(bookID) == "" {
		return domain.Review{}, invalid("bookId is required")
	}
	comment = sanitizeComment(comment)
	if err := validateReview(rating, comment); err != nil {
		return domain.Review{}, err
	}
	if _, err := a.loadBook(ctx, bookID); err != nil {
		return domain.Review{}, err
	}
	purchased, err := a.store.HasPurchased(ctx, user.ID, bookID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("check purchase: %w", err)
	}
	if !purchased {
		return domain.Review{}, ErrPurchaseRequired
	}
	now := a.clock()
	review := domain.Review{
		ID:        uuid.NewString(),
		BookID:    bookID,
		UserID:    user.ID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateReview(ctx, review); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Review{}, ErrAlreadyReviewed
		}
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

// UpdateReview rewrites the rating and comment of the caller's own review.
func (a *App) UpdateReview(ctx context.Context, user domain.User, reviewID string, rating int, comment string) (domain.Review, error) {
	review, found, err := a.store.GetReview(ctx, user.ID, reviewID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("load review: %w", err)
	}
	if !found {
		return domain.Review{}, ErrReviewNotFound
	}
	comment = sanitizeComment(comment)
	if err := validateReview(rating, comment); err != nil {
		return domain.Review{}, err
	}
	review.Rating = rating
	review.Comment = comment
	review.UpdatedAt = a.clock()
	if err := a.store.UpdateReview(ctx, review); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Review{}, ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}
	return review, nil
}

// DeleteReview removes the caller's own review.
func (a *App) DeleteReview(ctx context.Context, user domain.User, reviewID string) error {
	deleted, err := a.store.DeleteReview(ctx, user.ID, reviewID)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if !deleted {
		return ErrReviewNotFound
	}
	return nil
}

// ListReviews pages through a book's reviews, newest first.
func (a *App) ListReviews(ctx context.Context, bookID string, page, pageSize int) (ReviewPage, error) {
	if strings.TrimSpace(bookID) == "" {
		return ReviewPage{}, invalid("bookId is required")
	}
	if _, err := a.loadBook(ctx, bookID); err != nil {
		return ReviewPage{}, err
	}
	page, pageSize = normalizePage(page, pageSize)
	reviews, total, err := a.store.ListReviews(ctx, bookID, pageSize, (page-1)*pageSize)
	if err != nil {
		return ReviewPage{}, fmt.Errorf("list reviews: %w", err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return ReviewPage{Reviews: reviews, Page: page, PageSize: pageSize, Total: total}, nil
}
