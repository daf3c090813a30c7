package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/vishal065/BookBazaar-masterji/internal/app"
	"github.com/vishal065/BookBazaar-masterji/internal/util"
	"github.com/vishal065/BookBazaar-masterji/pkg/storage"
)

const maxJSONBody = 1 << 20

type successEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type requestInfo struct {
	IP     string `json:"ip"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type errorEnvelope struct {
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Errors     []string     `json:"errors"`
	Success    bool         `json:"success"`
	Request    *requestInfo `json:"request,omitempty"`
	Stack      string       `json:"stack,omitempty"`
}

// statusFor maps application errors to HTTP statuses. Messages are client-safe.
var statusFor = []struct {
	err    error
	status int
}{
	{app.ErrUnauthorized, http.StatusUnauthorized},
	{app.ErrUserExists, http.StatusConflict},
	{app.ErrInvalidCredentials, http.StatusBadRequest},
	{app.ErrInvalidAdminKey, http.StatusForbidden},
	{app.ErrAPIKeyMissing, http.StatusUnauthorized},
	{app.ErrAPIKeyInvalid, http.StatusForbidden},
	{app.ErrAPIKeyNotFound, http.StatusNotFound},
	{app.ErrBookNotFound, http.StatusNotFound},
	{app.ErrISBNExists, http.StatusConflict},
	{app.ErrBookInUse, http.StatusConflict},
	{app.ErrSearchFilterRequired, http.StatusBadRequest},
	{app.ErrCoverStorageDisabled, http.StatusServiceUnavailable},
	{app.ErrAlreadyInCart, http.StatusConflict},
	{app.ErrInvalidQuantity, http.StatusBadRequest},
	{app.ErrCartItemNotFound, http.StatusNotFound},
	{app.ErrCartEmpty, http.StatusBadRequest},
	{app.ErrAllOutOfStock, http.StatusBadRequest},
	{app.ErrOrderNotFound, http.StatusNotFound},
	{app.ErrPaymentDetailsRequired, http.StatusBadRequest},
	{app.ErrPaymentMismatch, http.StatusBadRequest},
	{app.ErrInsufficientStock, http.StatusConflict},
	{app.ErrInvalidOrderState, http.StatusConflict},
	{app.ErrPurchaseRequired, http.StatusForbidden},
	{app.ErrAlreadyReviewed, http.StatusConflict},
	{app.ErrReviewNotFound, http.StatusNotFound},
	{storage.ErrUnsupportedCoverType, http.StatusBadRequest},
	{storage.ErrEmptyCover, http.StatusBadRequest},
	{storage.ErrCoverTooLarge, http.StatusRequestEntityTooLarge},
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successEnvelope{StatusCode: status, Data: data, Message: message, Success: true})
}

// fail writes the error envelope. Request details and the cause are only
// exposed outside production.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, message string, details []string, cause error) {
	if details == nil {
		details = []string{}
	}
	env := errorEnvelope{StatusCode: status, Message: message, Errors: details}
	if !s.production {
		env.Request = &requestInfo{IP: util.ClientIP(r, s.trusted), Method: r.Method, URL: r.URL.RequestURI()}
		if cause != nil {
			env.Stack = fmt.Sprintf("%+v", cause)
		}
	}
	writeJSON(w, status, env)
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	if errors.As(err, &verr) {
		s.fail(w, r, http.StatusBadRequest, "Validation failed", verr.Errors, nil)
		return
	}
	for _, entry := range statusFor {
		if errors.Is(err, entry.err) {
			s.fail(w, r, entry.status, entry.err.Error(), []string{entry.err.Error()}, err)
			return
		}
	}
	logError(r, "request_failed", err)
	s.fail(w, r, http.StatusInternalServerError, "Internal server error", nil, err)
}

func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into out and validates it. On failure the error
// response has already been written.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(out); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid JSON body", []string{err.Error()}, nil)
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Validation failed", validationMessages(err), nil)
		return false
	}
	return true
}

func validationMessages(err error) []string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out = append(out, field+" is required")
		case "email":
			out = append(out, field+" must be a valid email address")
		case "min", "gte":
			out = append(out, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte":
			out = append(out, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			out = append(out, field+" is invalid")
		}
	}
	return out
}
