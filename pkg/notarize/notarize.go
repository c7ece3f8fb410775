// Package notarize implements the optional third-party notarization
// plug-in of §4.G: the core commitment machinery stores whatever receipt
// a Notarizer returns and is agnostic about the provider.
//
// WebhookNotarizer's shape — a struct holding an *http.Client with a
// configured timeout plus a *log.Logger, POSTing a JSON request and
// decoding a JSON response — is adapted from the teacher's peer-attestation
// HTTP client (pkg/attestation/service.go's Service.httpClient /
// BroadcastAttestationRequest pattern), generalized from "ask a peer
// validator to attest" to "ask a notarization endpoint to timestamp a
// hash".
package notarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Receipt is the proof a Notarizer returns for a commitment hash.
type Receipt struct {
	Provider  string `json:"provider"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Proof     string `json:"proof"`
	VerifyURL string `json:"verifyUrl"`
}

// Notarizer submits a commitment hash to a third-party timestamping
// service and can later verify a receipt it returned.
type Notarizer interface {
	Notarize(ctx context.Context, hash string) (Receipt, error)
	Verify(ctx context.Context, receipt Receipt) (bool, error)
}

// NoopNotarizer is the default Notarizer: it notarizes nothing. Used
// when no notarization provider is configured; commitments still verify
// at L1/L2 but never reach L3_NOTARIZED.
type NoopNotarizer struct{}

func (NoopNotarizer) Notarize(ctx context.Context, hash string) (Receipt, error) {
	return Receipt{}, fmt.Errorf("notarize: no notarization provider configured")
}

func (NoopNotarizer) Verify(ctx context.Context, receipt Receipt) (bool, error) {
	return false, fmt.Errorf("notarize: no notarization provider configured")
}

// WebhookNotarizer submits a hash to an HTTP endpoint that returns a
// Receipt as JSON, and verifies receipts against a separate verify
// endpoint.
type WebhookNotarizer struct {
	notarizeURL string
	verifyURL   string
	httpClient  *http.Client
	logger      *log.Logger
}

// WebhookConfig configures a WebhookNotarizer.
type WebhookConfig struct {
	NotarizeURL string
	VerifyURL   string
	Timeout     time.Duration
	Logger      *log.Logger
}

// NewWebhookNotarizer builds a notarizer backed by an HTTP webhook.
func NewWebhookNotarizer(cfg WebhookConfig) *WebhookNotarizer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Notarize] ", log.LstdFlags)
	}
	return &WebhookNotarizer{
		notarizeURL: cfg.NotarizeURL,
		verifyURL:   cfg.VerifyURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
}

type notarizeRequest struct {
	Hash string `json:"hash"`
}

// Notarize POSTs the hash to the configured notarize endpoint and
// decodes the JSON Receipt response.
func (n *WebhookNotarizer) Notarize(ctx context.Context, hash string) (Receipt, error) {
	body, err := json.Marshal(notarizeRequest{Hash: hash})
	if err != nil {
		return Receipt{}, fmt.Errorf("notarize: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notarizeURL, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("notarize: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("notarize: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Receipt{}, fmt.Errorf("notarize: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Receipt{}, fmt.Errorf("notarize: provider returned status %d: %s", resp.StatusCode, respBody)
	}

	var receipt Receipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("notarize: decode response: %w", err)
	}
	n.logger.Printf("notarized hash=%s provider=%s", hash, receipt.Provider)
	return receipt, nil
}

type verifyRequest struct {
	Receipt Receipt `json:"receipt"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// Verify POSTs a receipt to the configured verify endpoint and returns
// whether the provider still attests to it.
func (n *WebhookNotarizer) Verify(ctx context.Context, receipt Receipt) (bool, error) {
	body, err := json.Marshal(verifyRequest{Receipt: receipt})
	if err != nil {
		return false, fmt.Errorf("notarize: marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.verifyURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("notarize: build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("notarize: verify request failed: %w", err)
	}
	defer resp.Body.Close()

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return false, fmt.Errorf("notarize: decode verify response: %w", err)
	}
	return vr.Valid, nil
}
