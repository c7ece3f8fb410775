package notarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNoopNotarizerAlwaysErrors(t *testing.T) {
	n := NoopNotarizer{}
	if _, err := n.Notarize(context.Background(), "deadbeef"); err == nil {
		t.Fatal("expected NoopNotarizer.Notarize to error")
	}
	if _, err := n.Verify(context.Background(), Receipt{}); err == nil {
		t.Fatal("expected NoopNotarizer.Verify to error")
	}
}

func TestWebhookNotarizerRoundTrip(t *testing.T) {
	notarizeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req notarizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(Receipt{Provider: "test-provider", Hash: req.Hash, Timestamp: 1700000000, Proof: "p", VerifyURL: "http://example.invalid/verify"})
	}))
	defer notarizeSrv.Close()

	verifySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(verifyResponse{Valid: true})
	}))
	defer verifySrv.Close()

	n := NewWebhookNotarizer(WebhookConfig{NotarizeURL: notarizeSrv.URL, VerifyURL: verifySrv.URL})

	receipt, err := n.Notarize(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("Notarize: %v", err)
	}
	if receipt.Provider != "test-provider" || receipt.Hash != "deadbeef" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	ok, err := n.Verify(context.Background(), receipt)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected Verify to return true")
	}
}

func TestWebhookNotarizerRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	n := NewWebhookNotarizer(WebhookConfig{NotarizeURL: srv.URL, VerifyURL: srv.URL})
	if _, err := n.Notarize(context.Background(), "deadbeef"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
