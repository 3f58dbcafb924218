package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResult(t *testing.T) {
	if Result(nil) != "ok" || Result(errors.New("x")) != "error" {
		t.Error("unexpected result labels")
	}
}

func TestObserveHTTP(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/v1/months/{month}", "GET", "200"))
	ObserveHTTP("/v1/months/{month}", "GET", 200, 3*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("/v1/months/{month}", "GET", "200"))
	if after-before != 1 {
		t.Errorf("counter moved by %v, want 1", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	LedgerOperations.WithLabelValues("record_transaction", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "envelope_ledger_operations_total") {
		t.Error("ledger counter missing from exposition")
	}
}
