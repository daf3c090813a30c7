package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vishal065/BookBazaar-masterji/pkg/notify"
	"github.com/vishal065/BookBazaar-masterji/pkg/storage"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
	latestReviews   = 5
)

// Notifier hands a message off for asynchronous delivery.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// Recorder receives order workflow events for metrics.
type Recorder interface {
	OrderPlaced()
	PaymentVerification(outcome string)
	OrderCancelled()
}

type nopRecorder struct{}

func (nopRecorder) OrderPlaced()               {}
func (nopRecorder) PaymentVerification(string) {}
func (nopRecorder) OrderCancelled()            {}

type logNotifier struct{ mailer notify.Mailer }

func (n logNotifier) Dispatch(ctx context.Context, msg notify.Message) {
	_ = n.mailer.Send(context.WithoutCancel(ctx), msg)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	Sessions    store.SessionStore
	JWTSecret   string
	JWTOptions  store.JWTOptions
	SessionTTL  time.Duration
	Revoker     store.TokenRevoker

	// Objects is optional; without it cover uploads are rejected.
	Objects       storage.ObjectStore
	PresignExpiry time.Duration
	CoverMaxBytes int64

	Notifier Notifier
	Metrics  Recorder

	SuperAdminKey string
	Now           func() time.Time
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	sessionTTL    time.Duration
	objects       storage.ObjectStore
	presignExpiry time.Duration
	coverMaxBytes int64
	notifier      Notifier
	metrics       Recorder
	superAdminKey string
	now           func() time.Time
}

// New constructs the application. A missing Store is opened from DatabaseURL
// and missing Sessions are built from JWTSecret.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	if cfg.CoverMaxBytes <= 0 {
		cfg.CoverMaxBytes = storage.MaxCoverBytes
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		revoker := cfg.Revoker
		if revoker == nil {
			revoker = store.NewMemoryTokenRevoker()
		}
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, cfg.JWTOptions)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = logNotifier{mailer: notify.LogMailer{}}
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = nopRecorder{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &App{
		store:         dataStore,
		sessions:      sessionStore,
		sessionTTL:    cfg.SessionTTL,
		objects:       cfg.Objects,
		presignExpiry: cfg.PresignExpiry,
		coverMaxBytes: cfg.CoverMaxBytes,
		notifier:      notifier,
		metrics:       recorder,
		superAdminKey: cfg.SuperAdminKey,
		now:           now,
	}, nil
}

// SessionTTL is the lifetime of issued session tokens.
func (a *App) SessionTTL() time.Duration {
	return a.sessionTTL
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func newPagination(page, limit int, total int64) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return p
}

// normalizePage applies the default page and size and caps both so the
// offset (page-1)*size stays within int range.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if page > math.MaxInt32 {
		page = math.MaxInt32
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
