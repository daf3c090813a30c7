package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/vishal065/BookBazaar-masterji/internal/app"
	"github.com/vishal065/BookBazaar-masterji/internal/metrics"
	"github.com/vishal065/BookBazaar-masterji/internal/ratelimit"
	"github.com/vishal065/BookBazaar-masterji/internal/util"
	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
	"github.com/vishal065/BookBazaar-masterji/pkg/storage"
)

const (
	tokenCookie  = "token"
	apiKeyHeader = "x-api-key"
	adminHeader  = "x-admin-key"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Metrics is optional; when set /metrics is served and requests are counted.
	Metrics            *metrics.Metrics
	Production         bool
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
	MaxCoverBytes      int64

	// Redis is optional; without it requests are not rate limited.
	Redis                    redis.UniversalClient
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	OrderRateLimitPerMinute  int
}

// Server exposes the BookBazaar REST API.
type Server struct {
	app           *app.App
	metrics       *metrics.Metrics
	mux           *http.ServeMux
	validate      *validatorv10.Validate
	production    bool
	trusted       *util.TrustedProxies
	origins       []string
	maxCoverBytes int64
	signupLimiter *ratelimit.FixedWindowLimiter
	loginLimiter  *ratelimit.FixedWindowLimiter
	orderLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	maxCover := cfg.MaxCoverBytes
	if maxCover <= 0 {
		maxCover = storage.MaxCoverBytes
	}
	s := &Server{
		app:           cfg.App,
		metrics:       cfg.Metrics,
		mux:           http.NewServeMux(),
		validate:      newValidator(),
		production:    cfg.Production,
		trusted:       cfg.TrustedProxies,
		origins:       cfg.CORSAllowedOrigins,
		maxCoverBytes: maxCover,
	}
	if cfg.Redis != nil {
		newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = fallback
			}
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.signupLimiter, err = newLimiter("signup", cfg.SignupRateLimitPerMinute, 5); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute, 10); err != nil {
			return nil, err
		}
		if s.orderLimiter, err = newLimiter("orders", cfg.OrderRateLimitPerMinute, 30); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	if s.metrics != nil {
		h = s.metrics.Middleware(h)
	}
	h = util.WithRequestLog(s.trusted, h)
	h = util.WithRequestID(h)
	h = util.WithCORS(s.origins, h)
	return util.WithSecurityHeaders(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// auth
	s.mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.mux.Handle("GET /api/v1/auth/me", s.authenticated(s.handleMe))
	s.mux.Handle("POST /api/v1/auth/logout", s.authenticated(s.handleLogout))

	// api keys
	s.mux.Handle("POST /api/v1/api-key/generate", s.authenticated(s.handleGenerateAPIKey))
	s.mux.Handle("GET /api/v1/api-key", s.authenticated(s.handleGetAPIKey))
	s.mux.Handle("GET /api/v1/api-key/{$}", s.authenticated(s.handleGetAPIKey))

	// books
	s.mux.Handle("POST /api/v1/books/add", s.adminOnly(s.handleAddBook))
	s.mux.Handle("PUT /api/v1/books/update/{id}", s.adminOnly(s.handleUpdateBook))
	s.mux.Handle("DELETE /api/v1/books/delete/{id}", s.adminOnly(s.handleDeleteBook))
	s.mux.Handle("PUT /api/v1/books/cover/{id}", s.adminOnly(s.handleUploadCover))
	s.mux.Handle("GET /api/v1/books/getAll", s.requireAPIKey(s.handleListBooks))
	s.mux.Handle("GET /api/v1/books/get/{id}", s.requireAPIKey(s.handleGetBook))
	s.mux.Handle("GET /api/v1/books/search", s.requireAPIKey(s.handleSearchBooks))

	// cart
	s.mux.Handle("POST /api/v1/cart/add", s.authenticated(s.handleAddToCart))
	s.mux.Handle("PUT /api/v1/cart/update/{id}", s.authenticated(s.handleUpdateCartItem))
	s.mux.Handle("GET /api/v1/cart/get", s.authenticated(s.handleGetCart))
	s.mux.Handle("DELETE /api/v1/cart/remove/{id}", s.authenticated(s.handleRemoveCartItem))

	// orders
	s.mux.Handle("POST /api/v1/orders/place-order", s.authenticated(s.handlePlaceOrder))
	s.mux.Handle("PUT /api/v1/orders/payment-verify", s.authenticated(s.handleVerifyPayment))
	s.mux.Handle("GET /api/v1/orders/get", s.authenticated(s.handleListOrders))
	s.mux.Handle("GET /api/v1/orders/get/{id}", s.authenticated(s.handleGetOrder))
	s.mux.Handle("PUT /api/v1/orders/cancel/{id}", s.authenticated(s.handleCancelOrder))

	// reviews
	s.mux.Handle("POST /api/v1/reviews/add", s.authenticated(s.handleAddReview))
	s.mux.Handle("PUT /api/v1/reviews/update/{id}", s.authenticated(s.handleUpdateReview))
	s.mux.Handle("DELETE /api/v1/reviews/delete/{id}", s.authenticated(s.handleDeleteReview))
	s.mux.Handle("GET /api/v1/reviews/get", s.requireAPIKey(s.handleListReviews))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(r)
		if !ok {
			s.audit(r, "auth.authorize", "fail", "reason", "missing_token")
			s.fail(w, r, http.StatusUnauthorized, app.ErrUnauthorized.Error(), nil, nil)
			return
		}
		user, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			s.audit(r, "auth.authorize", "fail", "reason", "invalid_token")
			s.writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !user.IsAdmin() {
			s.audit(r, "auth.admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			s.fail(w, r, http.StatusForbidden, "Forbidden", nil, nil)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) requireAPIKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.app.ValidateAPIKey(r.Context(), r.Header.Get(apiKeyHeader)); err != nil {
			s.audit(r, "apikey.verify", "fail", "reason", err.Error())
			s.writeAppError(w, r, err)
			return
		}
		next(w, r)
	})
}

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(r *http.Request) (string, bool) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, token != ""
	}
	cookie, err := r.Cookie(tokenCookie)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	return strings.TrimSpace(cookie.Value), true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate reports whether the request may proceed; a nil limiter always allows.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	s.fail(w, r, http.StatusTooManyRequests, msg, nil, nil)
	return false
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.app.SessionTTL() / time.Second),
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func logError(r *http.Request, msg string, err error) {
	util.LoggerFromContext(r.Context()).Error(msg, "path", r.URL.Path, "method", r.Method, "err", err)
}
