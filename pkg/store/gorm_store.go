package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

const migrateLockID int64 = 41524242

// foreignKey describes a constraint added after AutoMigrate.
type foreignKey struct {
	table    string
	column   string
	refTable string
	onDelete string
}

var foreignKeys = []foreignKey{
	{"api_key_models", "user_id", "user_models", "CASCADE"},
	{"cart_item_models", "user_id", "user_models", "CASCADE"},
	// Deleting a book drops it from every cart, as MemoryStore.DeleteBook does.
	{"cart_item_models", "book_id", "book_models", "CASCADE"},
	{"order_models", "user_id", "user_models", "CASCADE"},
	{"order_item_models", "order_id", "order_models", "CASCADE"},
	{"order_item_models", "book_id", "book_models", "RESTRICT"},
	{"payment_models", "order_id", "order_models", "CASCADE"},
	{"review_models", "book_id", "book_models", "CASCADE"},
	{"review_models", "user_id", "user_models", "CASCADE"},
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&UserModel{},
		&APIKeyModel{},
		&BookModel{},
		&CartItemModel{},
		&OrderModel{},
		&OrderItemModel{},
		&PaymentModel{},
		&ReviewModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, fk := range foreignKeys {
		if err := tx.Exec(foreignKeySQL(fk)).Error; err != nil {
			return fmt.Errorf("ensure foreign key %s.%s: %w", fk.table, fk.column, err)
		}
	}
	return nil
}

func foreignKeySQL(fk foreignKey) string {
	name := fk.table + "_" + fk.column + "_fkey"
	return fmt.Sprintf(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = '%[1]s'
				AND constraint_name = '%[2]s'
			) THEN
				ALTER TABLE %[1]s
				ADD CONSTRAINT %[2]s
				FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE %[5]s;
			END IF;
		END $$;
	`, fk.table, name, fk.column, fk.refTable, fk.onDelete)
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func first[M any](q *gorm.DB, conds ...any) (M, bool, error) {
	var model M
	if err := q.First(&model, conds...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model, false, nil
		}
		return model, false, err
	}
	return model, true, nil
}

// CreateUser inserts a user; a duplicate email yields ErrConflict.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return translateError(s.db.WithContext(ctx).Create(&model).Error)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	model, ok, err := first[UserModel](s.db.WithContext(ctx).Where("email = ?", email))
	if !ok || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	model, ok, err := first[UserModel](s.db.WithContext(ctx), "id = ?", id)
	if !ok || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SetLastLogin records a successful login.
func (s *GormStore) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{"last_login": at, "updated_at": at}).Error
}

// SaveAPIKey creates the user's key or replaces the existing one.
func (s *GormStore) SaveAPIKey(ctx context.Context, k domain.APIKey) error {
	model := apiKeyToModel(k)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "active", "expires_at", "updated_at"}),
	}).Create(&model).Error
	return translateError(err)
}

// GetAPIKeyByUser returns the key owned by userID.
func (s *GormStore) GetAPIKeyByUser(ctx context.Context, userID string) (domain.APIKey, bool, error) {
	model, ok, err := first[APIKeyModel](s.db.WithContext(ctx).Where("user_id = ?", userID))
	if !ok || err != nil {
		return domain.APIKey{}, false, err
	}
	return apiKeyFromModel(model), true, nil
}

// GetAPIKeyByKey resolves a presented key.
func (s *GormStore) GetAPIKeyByKey(ctx context.Context, key string) (domain.APIKey, bool, error) {
	model, ok, err := first[APIKeyModel](s.db.WithContext(ctx).Where("api_key = ?", key))
	if !ok || err != nil {
		return domain.APIKey{}, false, err
	}
	return apiKeyFromModel(model), true, nil
}

// CreateBook inserts a book; a duplicate ISBN yields ErrConflict.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) error {
	model := bookToModel(b)
	return translateError(s.db.WithContext(ctx).Create(&model).Error)
}

// UpdateBook overwrites the mutable fields of an existing book.
func (s *GormStore) UpdateBook(ctx context.Context, b domain.Book) error {
	model := bookToModel(b)
	res := s.db.WithContext(ctx).Model(&BookModel{}).Where("id = ?", b.ID).Updates(map[string]any{
		"title":       model.Title,
		"author":      model.Author,
		"genre":       model.Genre,
		"description": model.Description,
		"isbn":        model.ISBN,
		"price":       model.Price,
		"stock":       model.Stock,
		"cover_key":   model.CoverKey,
		"updated_at":  model.UpdatedAt,
	})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetBook returns a book by ID.
func (s *GormStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	model, ok, err := first[BookModel](s.db.WithContext(ctx), "id = ?", id)
	if !ok || err != nil {
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// DeleteBook removes a book. Books referenced by orders yield ErrConflict.
func (s *GormStore) DeleteBook(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&BookModel{}, "id = ?", id)
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListBooks returns one page of books matching q, newest first, plus the total match count.
func (s *GormStore) ListBooks(ctx context.Context, q BookQuery) ([]domain.Book, int64, error) {
	query := s.db.WithContext(ctx).Model(&BookModel{})
	if v := strings.TrimSpace(q.Title); v != "" {
		query = query.Where("title ILIKE ?", "%"+v+"%")
	}
	if v := strings.TrimSpace(q.Author); v != "" {
		query = query.Where("author ILIKE ?", "%"+v+"%")
	}
	if v := strings.TrimSpace(q.Genre); v != "" {
		query = query.Where("genre ILIKE ?", "%"+v+"%")
	}
	if v := strings.TrimSpace(q.ISBN); v != "" {
		query = query.Where("isbn = ?", v)
	}
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookModel
	if err := query.Order("created_at desc, id").Limit(q.Limit).Offset(q.Offset).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Book, 0, len(models))
	for _, m := range models {
		out = append(out, bookFromModel(m))
	}
	return out, total, nil
}

// AddCartItem inserts a cart line; an existing (user, book) pair yields ErrConflict.
func (s *GormStore) AddCartItem(ctx context.Context, item domain.CartItem) error {
	model := cartItemToModel(item)
	return translateError(s.db.WithContext(ctx).Create(&model).Error)
}

// UpdateCartItemQuantity sets the quantity of a cart line owned by userID.
func (s *GormStore) UpdateCartItemQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, bool, error) {
	var item domain.CartItem
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CartItemModel{}).
			Where("id = ? AND user_id = ?", itemID, userID).
			Updates(map[string]any{"quantity": quantity, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		model, ok, err := first[CartItemModel](tx, "id = ?", itemID)
		if err != nil {
			return err
		}
		found = ok
		item = cartItemFromModel(model)
		return nil
	})
	if err != nil {
		return domain.CartItem{}, false, err
	}
	return item, found, nil
}

// RemoveCartItem deletes a cart line owned by userID.
func (s *GormStore) RemoveCartItem(ctx context.Context, userID, itemID string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&CartItemModel{}, "id = ? AND user_id = ?", itemID, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type cartLineRow struct {
	CartItemModel
	FoundBookID *string
	Title       *string
	Author      *string
	Price       decimal.NullDecimal
	Stock       *int
}

// CartLines reads the user's cart left-joined with current book price and stock.
func (s *GormStore) CartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	var rows []cartLineRow
	err := s.db.WithContext(ctx).
		Table("cart_item_models AS c").
		Select("c.id, c.user_id, c.book_id, c.quantity, c.created_at, c.updated_at, b.id AS found_book_id, b.title, b.author, b.price, b.stock").
		Joins("LEFT JOIN book_models b ON b.id = c.book_id").
		Where("c.user_id = ?", userID).
		Order("c.created_at, c.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.CartLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, cartLineFromRow(row))
	}
	return out, nil
}

// GetOrder returns an order owned by userID.
func (s *GormStore) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, bool, error) {
	model, ok, err := first[OrderModel](s.db.WithContext(ctx).Where("user_id = ?", userID), "id = ?", orderID)
	if !ok || err != nil {
		return domain.Order{}, false, err
	}
	order, err := orderFromModel(model)
	return order, err == nil, err
}

// ListOrders pages the user's orders, newest first.
func (s *GormStore) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&OrderModel{}).Where("user_id = ?", userID)
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []OrderModel
	if err := query.Order("created_at desc, id").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Order, 0, len(models))
	for _, m := range models {
		order, err := orderFromModel(m)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, order)
	}
	return out, total, nil
}

type orderLineRow struct {
	OrderItemModel
	Title  *string
	Author *string
	ISBN   *string `gorm:"column:isbn"`
}

// ListOrderLines returns the items of an order joined with book title, author and ISBN.
func (s *GormStore) ListOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	var rows []orderLineRow
	err := s.db.WithContext(ctx).
		Table("order_item_models AS oi").
		Select("oi.id, oi.order_id, oi.book_id, oi.quantity, oi.price, oi.created_at, b.title, b.author, b.isbn").
		Joins("LEFT JOIN book_models b ON b.id = oi.book_id").
		Where("oi.order_id = ?", orderID).
		Order("oi.created_at, oi.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.OrderLine{
			OrderItem: orderItemFromModel(row.OrderItemModel),
			Title:     deref(row.Title),
			Author:    deref(row.Author),
			ISBN:      deref(row.ISBN),
		})
	}
	return out, nil
}

// GetPaymentByOrderID returns the payment of an order.
func (s *GormStore) GetPaymentByOrderID(ctx context.Context, orderID string) (domain.Payment, bool, error) {
	model, ok, err := first[PaymentModel](s.db.WithContext(ctx).Where("order_id = ?", orderID))
	if !ok || err != nil {
		return domain.Payment{}, false, err
	}
	return paymentFromModel(model), true, nil
}

// GetPaymentByProviderOrderID resolves a payment from the provider order identifier.
func (s *GormStore) GetPaymentByProviderOrderID(ctx context.Context, providerOrderID string) (domain.Payment, bool, error) {
	model, ok, err := first[PaymentModel](s.db.WithContext(ctx).Where("provider_order_id = ?", providerOrderID))
	if !ok || err != nil {
		return domain.Payment{}, false, err
	}
	return paymentFromModel(model), true, nil
}

// HasPurchased reports whether the user has a fulfilled order containing bookID.
func (s *GormStore) HasPurchased(ctx context.Context, userID, bookID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table("order_item_models AS oi").
		Joins("JOIN order_models o ON o.id = oi.order_id").
		Where("o.user_id = ? AND oi.book_id = ? AND o.status = ?", userID, bookID, string(domain.OrderFulfilled)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateReview inserts a review; a second review of the same book by the same user yields ErrConflict.
func (s *GormStore) CreateReview(ctx context.Context, r domain.Review) error {
	model := reviewToModel(r)
	return translateError(s.db.WithContext(ctx).Create(&model).Error)
}

// GetReview returns a review written by userID.
func (s *GormStore) GetReview(ctx context.Context, userID, reviewID string) (domain.Review, bool, error) {
	model, ok, err := first[ReviewModel](s.db.WithContext(ctx).Where("user_id = ?", userID), "id = ?", reviewID)
	if !ok || err != nil {
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

// UpdateReview rewrites rating and comment of a review owned by r.UserID.
func (s *GormStore) UpdateReview(ctx context.Context, r domain.Review) error {
	res := s.db.WithContext(ctx).Model(&ReviewModel{}).
		Where("id = ? AND user_id = ?", r.ID, r.UserID).
		Updates(map[string]any{"rating": r.Rating, "comment": r.Comment, "updated_at": r.UpdatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReview removes a review owned by userID.
func (s *GormStore) DeleteReview(ctx context.Context, userID, reviewID string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&ReviewModel{}, "id = ? AND user_id = ?", reviewID, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListReviews pages the reviews of a book, newest first.
func (s *GormStore) ListReviews(ctx context.Context, bookID string, limit, offset int) ([]domain.Review, int64, error) {
	query := s.db.WithContext(ctx).Model(&ReviewModel{}).Where("book_id = ?", bookID)
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []ReviewModel
	if err := query.Order("created_at desc, id").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Review, 0, len(models))
	for _, m := range models {
		out = append(out, reviewFromModel(m))
	}
	return out, total, nil
}

// LatestReviews returns up to perBook newest reviews for each book.
func (s *GormStore) LatestReviews(ctx context.Context, bookIDs []string, perBook int) (map[string][]domain.Review, error) {
	out := make(map[string][]domain.Review, len(bookIDs))
	if len(bookIDs) == 0 || perBook <= 0 {
		return out, nil
	}
	var models []ReviewModel
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, book_id, user_id, rating, comment, created_at, updated_at
		FROM (
			SELECT r.*, ROW_NUMBER() OVER (PARTITION BY r.book_id ORDER BY r.created_at DESC, r.id) AS rn
			FROM review_models r
			WHERE r.book_id IN ?
		) ranked
		WHERE rn <= ?
		ORDER BY book_id, created_at DESC, id
	`, bookIDs, perBook).Scan(&models).Error
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		out[m.BookID] = append(out[m.BookID], reviewFromModel(m))
	}
	return out, nil
}

// WithinTx runs fn inside a database transaction.
func (s *GormStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) CreateOrder(o domain.Order) error {
	model, err := orderToModel(o)
	if err != nil {
		return err
	}
	return translateError(t.db.Create(&model).Error)
}

func (t *gormTx) CreatePayment(p domain.Payment) error {
	model := paymentToModel(p)
	return translateError(t.db.Create(&model).Error)
}

func (t *gormTx) CreateOrderItems(items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	models := make([]OrderItemModel, 0, len(items))
	for _, item := range items {
		models = append(models, orderItemToModel(item))
	}
	return translateError(t.db.Create(&models).Error)
}

func (t *gormTx) ClearCart(userID string) error {
	return t.db.Delete(&CartItemModel{}, "user_id = ?", userID).Error
}

func (t *gormTx) LockOrder(userID, orderID string) (domain.Order, bool, error) {
	model, ok, err := first[OrderModel](
		t.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID),
		"id = ?", orderID,
	)
	if !ok || err != nil {
		return domain.Order{}, false, err
	}
	order, err := orderFromModel(model)
	return order, err == nil, err
}

func (t *gormTx) ListOrderItems(orderID string) ([]domain.OrderItem, error) {
	var models []OrderItemModel
	if err := t.db.Where("order_id = ?", orderID).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OrderItem, 0, len(models))
	for _, m := range models {
		out = append(out, orderItemFromModel(m))
	}
	return out, nil
}

func (t *gormTx) DecrementStock(bookID string, quantity int) error {
	res := t.db.Model(&BookModel{}).
		Where("id = ? AND stock >= ?", bookID, quantity).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", quantity),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: book %s", ErrInsufficientStock, bookID)
	}
	return nil
}

func (t *gormTx) SetStatus(orderID string, order domain.OrderStatus, payment domain.PaymentStatus) error {
	now := time.Now().UTC()
	res := t.db.Model(&OrderModel{}).Where("id = ?", orderID).
		Updates(map[string]any{"status": string(order), "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	res = t.db.Model(&PaymentModel{}).Where("order_id = ?", orderID).
		Updates(map[string]any{"status": string(payment), "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: payment for order %s", ErrNotFound, orderID)
	}
	return nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		LastLogin:    m.LastLogin,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func apiKeyToModel(k domain.APIKey) APIKeyModel {
	return APIKeyModel{
		ID:        k.ID,
		UserID:    k.UserID,
		Key:       k.Key,
		Active:    k.Active,
		ExpiresAt: k.ExpiresAt,
		CreatedAt: k.CreatedAt,
		UpdatedAt: k.UpdatedAt,
	}
}

func apiKeyFromModel(m APIKeyModel) domain.APIKey {
	return domain.APIKey{
		ID:        m.ID,
		UserID:    m.UserID,
		Key:       m.Key,
		Active:    m.Active,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		Description: b.Description,
		ISBN:        b.ISBN,
		Price:       b.Price,
		Stock:       b.Stock,
		CoverKey:    b.CoverKey,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Genre:       m.Genre,
		Description: m.Description,
		ISBN:        m.ISBN,
		Price:       m.Price,
		Stock:       m.Stock,
		CoverKey:    m.CoverKey,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func cartItemToModel(c domain.CartItem) CartItemModel {
	return CartItemModel{
		ID:        c.ID,
		UserID:    c.UserID,
		BookID:    c.BookID,
		Quantity:  c.Quantity,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func cartItemFromModel(m CartItemModel) domain.CartItem {
	return domain.CartItem{
		ID:        m.ID,
		UserID:    m.UserID,
		BookID:    m.BookID,
		Quantity:  m.Quantity,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func cartLineFromRow(row cartLineRow) domain.CartLine {
	line := domain.CartLine{CartItem: cartItemFromModel(row.CartItemModel)}
	if row.FoundBookID == nil {
		line.BookMissing = true
		return line
	}
	line.Title = deref(row.Title)
	line.Author = deref(row.Author)
	if row.Stock != nil {
		line.Stock = *row.Stock
	}
	if row.Price.Valid {
		line.Price = row.Price.Decimal
	}
	return line
}

func orderToModel(o domain.Order) (OrderModel, error) {
	model := OrderModel{
		ID:          o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if len(o.ExcludedItems) > 0 {
		raw, err := json.Marshal(o.ExcludedItems)
		if err != nil {
			return OrderModel{}, fmt.Errorf("encode excluded items: %w", err)
		}
		model.ExcludedItems = raw
	}
	return model, nil
}

func orderFromModel(m OrderModel) (domain.Order, error) {
	order := domain.Order{
		ID:          m.ID,
		UserID:      m.UserID,
		TotalAmount: m.TotalAmount,
		Status:      domain.OrderStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.ExcludedItems) > 0 {
		if err := json.Unmarshal(m.ExcludedItems, &order.ExcludedItems); err != nil {
			return domain.Order{}, fmt.Errorf("decode excluded items of order %s: %w", m.ID, err)
		}
	}
	return order, nil
}

func orderItemToModel(i domain.OrderItem) OrderItemModel {
	return OrderItemModel{
		ID:        i.ID,
		OrderID:   i.OrderID,
		BookID:    i.BookID,
		Quantity:  i.Quantity,
		Price:     i.Price,
		CreatedAt: i.CreatedAt,
	}
}

func orderItemFromModel(m OrderItemModel) domain.OrderItem {
	return domain.OrderItem{
		ID:        m.ID,
		OrderID:   m.OrderID,
		BookID:    m.BookID,
		Quantity:  m.Quantity,
		Price:     m.Price,
		CreatedAt: m.CreatedAt,
	}
}

func paymentToModel(p domain.Payment) PaymentModel {
	return PaymentModel{
		ID:                p.ID,
		OrderID:           p.OrderID,
		UserID:            p.UserID,
		Provider:          p.Provider,
		ProviderOrderID:   p.ProviderOrderID,
		ProviderPaymentID: p.ProviderPaymentID,
		ProviderSignature: p.ProviderSignature,
		Amount:            p.Amount,
		Status:            string(p.Status),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func paymentFromModel(m PaymentModel) domain.Payment {
	return domain.Payment{
		ID:                m.ID,
		OrderID:           m.OrderID,
		UserID:            m.UserID,
		Provider:          m.Provider,
		ProviderOrderID:   m.ProviderOrderID,
		ProviderPaymentID: m.ProviderPaymentID,
		ProviderSignature: m.ProviderSignature,
		Amount:            m.Amount,
		Status:            domain.PaymentStatus(m.Status),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:        r.ID,
		BookID:    r.BookID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:        m.ID,
		BookID:    m.BookID,
		UserID:    m.UserID,
		Rating:    m.Rating,
		Comment:   m.Comment,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Store = (*GormStore)(nil)
