package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

// MemoryStore keeps every table in-process. Used for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	seq  int64
	data memoryTables
}

type memoryTables struct {
	users      map[string]domain.User
	apiKeys    map[string]domain.APIKey // key: user ID
	books      map[string]domain.Book
	cart       map[string]domain.CartItem
	orders     map[string]domain.Order
	orderItems map[string]domain.OrderItem
	payments   map[string]domain.Payment // key: order ID
	reviews    map[string]domain.Review
	order      map[string]int64 // insertion sequence per row ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memoryTables{
		users:      make(map[string]domain.User),
		apiKeys:    make(map[string]domain.APIKey),
		books:      make(map[string]domain.Book),
		cart:       make(map[string]domain.CartItem),
		orders:     make(map[string]domain.Order),
		orderItems: make(map[string]domain.OrderItem),
		payments:   make(map[string]domain.Payment),
		reviews:    make(map[string]domain.Review),
		order:      make(map[string]int64),
	}}
}

func (t memoryTables) clone() memoryTables {
	return memoryTables{
		users:      maps.Clone(t.users),
		apiKeys:    maps.Clone(t.apiKeys),
		books:      maps.Clone(t.books),
		cart:       maps.Clone(t.cart),
		orders:     maps.Clone(t.orders),
		orderItems: maps.Clone(t.orderItems),
		payments:   maps.Clone(t.payments),
		reviews:    maps.Clone(t.reviews),
		order:      maps.Clone(t.order),
	}
}

func (m *MemoryStore) track(id string) {
	m.seq++
	m.data.order[id] = m.seq
}

// newestFirst sorts rows by CreatedAt desc, breaking ties by later insertion first.
func newestFirst[T any](m *MemoryStore, rows []T, id func(T) string, created func(T) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool {
		ci, cj := created(rows[i]), created(rows[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return m.data.order[id(rows[i])] > m.data.order[id(rows[j])]
	})
}

func page[T any](rows []T, limit, offset int) []T {
	if offset < 0 || offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// CreateUser inserts a user; a duplicate email yields ErrConflict.
func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("%w: email %s", ErrConflict, u.Email)
		}
	}
	m.data.users[u.ID] = u
	m.track(u.ID)
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.data.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.data.users[id]
	return u, ok, nil
}

// SetLastLogin records a successful login.
func (m *MemoryStore) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	u.UpdatedAt = at
	m.data.users[userID] = u
	return nil
}

// SaveAPIKey creates the user's key or replaces the existing one.
func (m *MemoryStore) SaveAPIKey(_ context.Context, k domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, existing := range m.data.apiKeys {
		if existing.Key == k.Key && userID != k.UserID {
			return fmt.Errorf("%w: api key", ErrConflict)
		}
	}
	if existing, ok := m.data.apiKeys[k.UserID]; ok {
		k.ID = existing.ID
		k.CreatedAt = existing.CreatedAt
	}
	m.data.apiKeys[k.UserID] = k
	return nil
}

// GetAPIKeyByUser returns the key owned by userID.
func (m *MemoryStore) GetAPIKeyByUser(_ context.Context, userID string) (domain.APIKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.data.apiKeys[userID]
	return k, ok, nil
}

// GetAPIKeyByKey resolves a presented key.
func (m *MemoryStore) GetAPIKeyByKey(_ context.Context, key string) (domain.APIKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.data.apiKeys {
		if k.Key == key {
			return k, true, nil
		}
	}
	return domain.APIKey{}, false, nil
}

func (m *MemoryStore) isbnTaken(isbn, exceptID string) bool {
	for id, b := range m.data.books {
		if id != exceptID && b.ISBN == isbn {
			return true
		}
	}
	return false
}

// CreateBook inserts a book; a duplicate ISBN yields ErrConflict.
func (m *MemoryStore) CreateBook(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isbnTaken(b.ISBN, b.ID) {
		return fmt.Errorf("%w: isbn %s", ErrConflict, b.ISBN)
	}
	b.Reviews = nil
	b.CoverURL = ""
	m.data.books[b.ID] = b
	m.track(b.ID)
	return nil
}

// UpdateBook overwrites the mutable fields of an existing book.
func (m *MemoryStore) UpdateBook(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data.books[b.ID]
	if !ok {
		return ErrNotFound
	}
	if m.isbnTaken(b.ISBN, b.ID) {
		return fmt.Errorf("%w: isbn %s", ErrConflict, b.ISBN)
	}
	b.CreatedAt = existing.CreatedAt
	b.Reviews = nil
	b.CoverURL = ""
	m.data.books[b.ID] = b
	return nil
}

// GetBook returns a book by ID.
func (m *MemoryStore) GetBook(_ context.Context, id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data.books[id]
	return b, ok, nil
}

// DeleteBook removes a book with its cart lines and reviews. Books referenced by orders yield ErrConflict.
func (m *MemoryStore) DeleteBook(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.books[id]; !ok {
		return false, nil
	}
	for _, item := range m.data.orderItems {
		if item.BookID == id {
			return false, fmt.Errorf("%w: book %s is referenced by orders", ErrConflict, id)
		}
	}
	delete(m.data.books, id)
	for itemID, item := range m.data.cart {
		if item.BookID == id {
			delete(m.data.cart, itemID)
		}
	}
	for reviewID, r := range m.data.reviews {
		if r.BookID == id {
			delete(m.data.reviews, reviewID)
		}
	}
	return true, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// ListBooks returns one page of books matching q, newest first, plus the total match count.
func (m *MemoryStore) ListBooks(_ context.Context, q BookQuery) ([]domain.Book, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	title, author, genre, isbn := strings.TrimSpace(q.Title), strings.TrimSpace(q.Author), strings.TrimSpace(q.Genre), strings.TrimSpace(q.ISBN)
	matches := make([]domain.Book, 0, len(m.data.books))
	for _, b := range m.data.books {
		if title != "" && !containsFold(b.Title, title) {
			continue
		}
		if author != "" && !containsFold(b.Author, author) {
			continue
		}
		if genre != "" && !containsFold(b.Genre, genre) {
			continue
		}
		if isbn != "" && b.ISBN != isbn {
			continue
		}
		matches = append(matches, b)
	}
	newestFirst(m, matches, func(b domain.Book) string { return b.ID }, func(b domain.Book) time.Time { return b.CreatedAt })
	return page(matches, q.Limit, q.Offset), int64(len(matches)), nil
}

// AddCartItem inserts a cart line; an existing (user, book) pair yields ErrConflict.
func (m *MemoryStore) AddCartItem(_ context.Context, item domain.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.books[item.BookID]; !ok {
		return fmt.Errorf("%w: book %s does not exist", ErrConflict, item.BookID)
	}
	for _, existing := range m.data.cart {
		if existing.UserID == item.UserID && existing.BookID == item.BookID {
			return fmt.Errorf("%w: book %s already in cart", ErrConflict, item.BookID)
		}
	}
	m.data.cart[item.ID] = item
	m.track(item.ID)
	return nil
}

// UpdateCartItemQuantity sets the quantity of a cart line owned by userID.
func (m *MemoryStore) UpdateCartItemQuantity(_ context.Context, userID, itemID string, quantity int) (domain.CartItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.data.cart[itemID]
	if !ok || item.UserID != userID {
		return domain.CartItem{}, false, nil
	}
	item.Quantity = quantity
	item.UpdatedAt = time.Now().UTC()
	m.data.cart[itemID] = item
	return item, true, nil
}

// RemoveCartItem deletes a cart line owned by userID.
func (m *MemoryStore) RemoveCartItem(_ context.Context, userID, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.data.cart[itemID]
	if !ok || item.UserID != userID {
		return false, nil
	}
	delete(m.data.cart, itemID)
	return true, nil
}

// CartLines reads the user's cart joined with current book price and stock, oldest line first.
func (m *MemoryStore) CartLines(_ context.Context, userID string) ([]domain.CartLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]domain.CartItem, 0)
	for _, item := range m.data.cart {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return m.data.order[items[i].ID] < m.data.order[items[j].ID]
	})
	out := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		line := domain.CartLine{CartItem: item}
		if b, ok := m.data.books[item.BookID]; ok {
			line.Title = b.Title
			line.Author = b.Author
			line.Price = b.Price
			line.Stock = b.Stock
		} else {
			line.BookMissing = true
		}
		out = append(out, line)
	}
	return out, nil
}

// GetOrder returns an order owned by userID.
func (m *MemoryStore) GetOrder(_ context.Context, userID, orderID string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.data.orders[orderID]
	if !ok || o.UserID != userID {
		return domain.Order{}, false, nil
	}
	return o, true, nil
}

// ListOrders pages the user's orders, newest first.
func (m *MemoryStore) ListOrders(_ context.Context, userID string, limit, offset int) ([]domain.Order, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	orders := make([]domain.Order, 0)
	for _, o := range m.data.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	newestFirst(m, orders, func(o domain.Order) string { return o.ID }, func(o domain.Order) time.Time { return o.CreatedAt })
	return page(orders, limit, offset), int64(len(orders)), nil
}

func (m *MemoryStore) orderItemsLocked(orderID string) []domain.OrderItem {
	items := make([]domain.OrderItem, 0)
	for _, item := range m.data.orderItems {
		if item.OrderID == orderID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return m.data.order[items[i].ID] < m.data.order[items[j].ID]
	})
	return items
}

// ListOrderLines returns the items of an order joined with book title, author and ISBN.
func (m *MemoryStore) ListOrderLines(_ context.Context, orderID string) ([]domain.OrderLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.orderItemsLocked(orderID)
	out := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		line := domain.OrderLine{OrderItem: item}
		if b, ok := m.data.books[item.BookID]; ok {
			line.Title = b.Title
			line.Author = b.Author
			line.ISBN = b.ISBN
		}
		out = append(out, line)
	}
	return out, nil
}

// GetPaymentByOrderID returns the payment of an order.
func (m *MemoryStore) GetPaymentByOrderID(_ context.Context, orderID string) (domain.Payment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data.payments[orderID]
	return p, ok, nil
}

// GetPaymentByProviderOrderID resolves a payment from the provider order identifier.
func (m *MemoryStore) GetPaymentByProviderOrderID(_ context.Context, providerOrderID string) (domain.Payment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.data.payments {
		if p.ProviderOrderID == providerOrderID {
			return p, true, nil
		}
	}
	return domain.Payment{}, false, nil
}

// HasPurchased reports whether the user has a fulfilled order containing bookID.
func (m *MemoryStore) HasPurchased(_ context.Context, userID, bookID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.data.orderItems {
		if item.BookID != bookID {
			continue
		}
		o, ok := m.data.orders[item.OrderID]
		if ok && o.UserID == userID && o.Status == domain.OrderFulfilled {
			return true, nil
		}
	}
	return false, nil
}

// CreateReview inserts a review; a second review of the same book by the same user yields ErrConflict.
func (m *MemoryStore) CreateReview(_ context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data.reviews {
		if existing.BookID == r.BookID && existing.UserID == r.UserID {
			return fmt.Errorf("%w: review of book %s", ErrConflict, r.BookID)
		}
	}
	m.data.reviews[r.ID] = r
	m.track(r.ID)
	return nil
}

// GetReview returns a review written by userID.
func (m *MemoryStore) GetReview(_ context.Context, userID, reviewID string) (domain.Review, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data.reviews[reviewID]
	if !ok || r.UserID != userID {
		return domain.Review{}, false, nil
	}
	return r, true, nil
}

// UpdateReview rewrites rating and comment of a review owned by r.UserID.
func (m *MemoryStore) UpdateReview(_ context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data.reviews[r.ID]
	if !ok || existing.UserID != r.UserID {
		return ErrNotFound
	}
	existing.Rating = r.Rating
	existing.Comment = r.Comment
	existing.UpdatedAt = r.UpdatedAt
	m.data.reviews[r.ID] = existing
	return nil
}

// DeleteReview removes a review owned by userID.
func (m *MemoryStore) DeleteReview(_ context.Context, userID, reviewID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data.reviews[reviewID]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(m.data.reviews, reviewID)
	return true, nil
}

func (m *MemoryStore) reviewsOfLocked(bookID string) []domain.Review {
	out := make([]domain.Review, 0)
	for _, r := range m.data.reviews {
		if r.BookID == bookID {
			out = append(out, r)
		}
	}
	newestFirst(m, out, func(r domain.Review) string { return r.ID }, func(r domain.Review) time.Time { return r.CreatedAt })
	return out
}

// ListReviews pages the reviews of a book, newest first.
func (m *MemoryStore) ListReviews(_ context.Context, bookID string, limit, offset int) ([]domain.Review, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reviews := m.reviewsOfLocked(bookID)
	return page(reviews, limit, offset), int64(len(reviews)), nil
}

// LatestReviews returns up to perBook newest reviews for each book.
func (m *MemoryStore) LatestReviews(_ context.Context, bookIDs []string, perBook int) (map[string][]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]domain.Review, len(bookIDs))
	if perBook <= 0 {
		return out, nil
	}
	for _, id := range bookIDs {
		if reviews := m.reviewsOfLocked(id); len(reviews) > 0 {
			out[id] = page(reviews, perBook, 0)
		}
	}
	return out, nil
}

// WithinTx serializes fn against every other access and restores the
// previous state when fn fails.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, seq := m.data.clone(), m.seq
	if err := fn(&memoryTx{m: m}); err != nil {
		m.data, m.seq = snapshot, seq
		return err
	}
	return nil
}

// memoryTx runs with MemoryStore.mu already held.
type memoryTx struct {
	m *MemoryStore
}

func (t *memoryTx) CreateOrder(o domain.Order) error {
	if _, ok := t.m.data.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s", ErrConflict, o.ID)
	}
	t.m.data.orders[o.ID] = o
	t.m.track(o.ID)
	return nil
}

func (t *memoryTx) CreatePayment(p domain.Payment) error {
	if _, ok := t.m.data.orders[p.OrderID]; !ok {
		return fmt.Errorf("%w: order %s does not exist", ErrConflict, p.OrderID)
	}
	for _, existing := range t.m.data.payments {
		if existing.OrderID == p.OrderID || existing.ProviderOrderID == p.ProviderOrderID {
			return fmt.Errorf("%w: payment for order %s", ErrConflict, p.OrderID)
		}
	}
	t.m.data.payments[p.OrderID] = p
	t.m.track(p.ID)
	return nil
}

func (t *memoryTx) CreateOrderItems(items []domain.OrderItem) error {
	for _, item := range items {
		if _, ok := t.m.data.orders[item.OrderID]; !ok {
			return fmt.Errorf("%w: order %s does not exist", ErrConflict, item.OrderID)
		}
		if _, ok := t.m.data.books[item.BookID]; !ok {
			return fmt.Errorf("%w: book %s does not exist", ErrConflict, item.BookID)
		}
		t.m.data.orderItems[item.ID] = item
		t.m.track(item.ID)
	}
	return nil
}

func (t *memoryTx) ClearCart(userID string) error {
	for id, item := range t.m.data.cart {
		if item.UserID == userID {
			delete(t.m.data.cart, id)
		}
	}
	return nil
}

func (t *memoryTx) LockOrder(userID, orderID string) (domain.Order, bool, error) {
	o, ok := t.m.data.orders[orderID]
	if !ok || o.UserID != userID {
		return domain.Order{}, false, nil
	}
	return o, true, nil
}

func (t *memoryTx) ListOrderItems(orderID string) ([]domain.OrderItem, error) {
	return t.m.orderItemsLocked(orderID), nil
}

func (t *memoryTx) DecrementStock(bookID string, quantity int) error {
	b, ok := t.m.data.books[bookID]
	if !ok || b.Stock < quantity {
		return fmt.Errorf("%w: book %s", ErrInsufficientStock, bookID)
	}
	b.Stock -= quantity
	b.UpdatedAt = time.Now().UTC()
	t.m.data.books[bookID] = b
	return nil
}

func (t *memoryTx) SetStatus(orderID string, order domain.OrderStatus, payment domain.PaymentStatus) error {
	o, ok := t.m.data.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	p, ok := t.m.data.payments[orderID]
	if !ok {
		return fmt.Errorf("%w: payment for order %s", ErrNotFound, orderID)
	}
	now := time.Now().UTC()
	o.Status, o.UpdatedAt = order, now
	p.Status, p.UpdatedAt = payment, now
	t.m.data.orders[orderID] = o
	t.m.data.payments[orderID] = p
	return nil
}

var _ Store = (*MemoryStore)(nil)
