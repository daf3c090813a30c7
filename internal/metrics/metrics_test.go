package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/books/get/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Middleware(mux)

	for _, id := range []string{"a", "b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/books/get/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "GET /api/v1/books/get/{id}", "404")); got != 2 {
		t.Fatalf("pattern counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched counter = %v, want 1", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.OrderPlaced()
	m.OrderPlaced()
	m.PaymentVerification("paid")
	m.PaymentVerification("mismatch")
	m.OrderCancelled()
	m.MailJob("sent")

	if got := testutil.ToFloat64(m.ordersPlaced); got != 2 {
		t.Fatalf("orders placed = %v", got)
	}
	if got := testutil.ToFloat64(m.verifications.WithLabelValues("mismatch")); got != 1 {
		t.Fatalf("mismatch = %v", got)
	}
	if got := testutil.ToFloat64(m.cancellations); got != 1 {
		t.Fatalf("cancellations = %v", got)
	}
	if got := testutil.ToFloat64(m.mailJobs.WithLabelValues("sent")); got != 1 {
		t.Fatalf("mail sent = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.OrderPlaced()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "bookbazaar_orders_placed_total 1") {
		t.Fatalf("exposition missing counter:\n%s", body)
	}
}
