// Unit tests for ledger handlers that don't require a database connection:
// method validation, path/query parsing, and bearer-token authorization.

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trackrecord/ledger/pkg/logging"
)

func mustTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.New(nil)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return l
}

func TestHandleIngestMethodNotAllowed(t *testing.T) {
	h := NewLedgerHandlers(nil, nil, nil, nil, nil, nil, mustTestLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/api/instances/abc/events", nil)
	rec := httptest.NewRecorder()
	h.HandleIngest(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleReportMethodNotAllowed(t *testing.T) {
	h := NewLedgerHandlers(nil, nil, nil, nil, nil, nil, mustTestLogger(t))
	req := httptest.NewRequest(http.MethodPost, "/api/report?instance=x", nil)
	rec := httptest.NewRecorder()
	h.HandleReport(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleBundleMethodNotAllowed(t *testing.T) {
	h := NewLedgerHandlers(nil, nil, nil, nil, nil, nil, mustTestLogger(t))
	req := httptest.NewRequest(http.MethodPost, "/api/bundle?instance=x", nil)
	rec := httptest.NewRecorder()
	h.HandleBundle(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleReportRequiresInstance(t *testing.T) {
	h := NewLedgerHandlers(nil, nil, nil, nil, nil, nil, mustTestLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
	rec := httptest.NewRecorder()
	h.HandleReport(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestParseRangeQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/report?instance=inst-1&from=5&to=10", nil)
	instanceID, from, to, err := parseRangeQuery(req)
	if err != nil {
		t.Fatalf("parseRangeQuery: %v", err)
	}
	if instanceID != "inst-1" || from != 5 || to != 10 {
		t.Errorf("got (%s, %d, %d), want (inst-1, 5, 10)", instanceID, from, to)
	}
}

func TestParseRangeQueryInvalidFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/report?instance=inst-1&from=notanumber", nil)
	if _, _, _, err := parseRangeQuery(req); err == nil {
		t.Error("expected an error for a non-numeric from parameter")
	}
}

func TestPathSegment(t *testing.T) {
	cases := []struct {
		path, prefix, suffix, wantID string
		wantOK                       bool
	}{
		{"/api/instances/abc/events", "/api/instances/", "/events", "abc", true},
		{"/api/instances//events", "/api/instances/", "/events", "", false},
		{"/api/instances/abc", "/api/instances/", "/events", "", false},
		{"/other/abc/events", "/api/instances/", "/events", "", false},
	}
	for _, c := range cases {
		id, ok := pathSegment(c.path, c.prefix, c.suffix)
		if id != c.wantID || ok != c.wantOK {
			t.Errorf("pathSegment(%q) = (%q, %v), want (%q, %v)", c.path, id, ok, c.wantID, c.wantOK)
		}
	}
}

func TestAuthorizedNoTokensConfigured(t *testing.T) {
	h := NewLedgerHandlers(nil, nil, nil, nil, nil, nil, mustTestLogger(t))
	req := httptest.NewRequest(http.MethodPost, "/api/instances/abc/events", nil)
	if !h.authorized(req, "abc") {
		t.Error("expected requests to be allowed when no instance tokens are configured")
	}
}

func TestAuthorizedRejectsMismatch(t *testing.T) {
	h := NewLedgerHandlers(nil, nil, nil, nil, nil, map[string]string{"abc": "secret-token"}, mustTestLogger(t))
	req := httptest.NewRequest(http.MethodPost, "/api/instances/abc/events", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	if h.authorized(req, "abc") {
		t.Error("expected authorization to fail on a bearer mismatch")
	}
}

func TestAuthorizedAcceptsMatch(t *testing.T) {
	h := NewLedgerHandlers(nil, nil, nil, nil, nil, map[string]string{"abc": "secret-token"}, mustTestLogger(t))
	req := httptest.NewRequest(http.MethodPost, "/api/instances/abc/events", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	if !h.authorized(req, "abc") {
		t.Error("expected authorization to succeed on a bearer match")
	}
}
