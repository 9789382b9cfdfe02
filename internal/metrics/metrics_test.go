package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/items":                "/api/items",
		"/api/items/42":             "/api/items/{id}",
		"/api/items/42/redeem":      "/api/items/{id}/redeem",
		"/api/admin/approve-item/7": "/api/admin/approve-item/{id}",
		"/uploads/abc.jpg":          "/uploads/{key}",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestObserveLedger(t *testing.T) {
	before := testutil.ToFloat64(ledgerOps.WithLabelValues("redeem", "ok"))
	ObserveLedger("redeem", "ok")
	after := testutil.ToFloat64(ledgerOps.WithLabelValues("redeem", "ok"))
	if after-before != 1 {
		t.Errorf("redeem ok delta = %v, want 1", after-before)
	}
}

func TestInstrumentHandlerCountsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/items/{id}", "404"))
	req := httptest.NewRequest("GET", "/api/items/99", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/items/{id}", "404"))

	if after-before != 1 {
		t.Errorf("request count delta = %v, want 1", after-before)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	AddPoints("credited", 10)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "rewear_ledger_points_total") {
		t.Error("expected rewear_ledger_points_total in exposition")
	}
}
