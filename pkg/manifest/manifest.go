// Package manifest implements the Ed25519-signed report manifest of
// §4.I: it binds a report body to the ledger by signing the body hash
// and embeds everything a standalone verifier needs to check that
// signature without any database access.
//
// The signing/verification shape — a private-key-holding signer plus a
// separate registry of trusted public keys, keyed by a short
// fingerprint — is adapted from the teacher's validator attestation
// signer (pkg/anchor_proof/signer.go), which signs a merkle root the
// same way this package signs a report body hash.
package manifest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SchemaVersion is the manifest schema version emitted in every manifest.
const SchemaVersion = "2.0"

const (
	EquityPolicy   = "BALANCE_PLUS_UNREALIZED"
	CashflowPolicy = "ADJUST_HWM_NO_DD_RESET"
)

// Manifest binds a report body to the ledger range it was generated
// from, per §4.I. ReportBodyHash and LedgerRootHash are lowercase hex
// sha256 digests (pkg/canonical's convention); Signature and PublicKey
// are lowercase hex too.
type Manifest struct {
	SchemaVersion      string `json:"schemaVersion"`
	ReportID           string `json:"reportId"`
	InstanceID         string `json:"instanceId"`
	CalculationVersion string `json:"calculationVersion"`
	FromSeqNo          uint64 `json:"fromSeqNo"`
	ToSeqNo            uint64 `json:"toSeqNo"`
	FromTimestamp      int64  `json:"fromTimestamp"`
	ToTimestamp        int64  `json:"toTimestamp"`
	EquityPolicy       string `json:"equityPolicy"`
	CashflowPolicy     string `json:"cashflowPolicy"`
	FirstEventHash     string `json:"firstEventHash"`
	LastEventHash      string `json:"lastEventHash"`
	LedgerRootHash     string `json:"ledgerRootHash"`
	ReportBodyHash     string `json:"reportBodyHash"`
	Signature          string `json:"signature"`
	PublicKey          string `json:"publicKey"`
	SigningKeyVersion  string `json:"signingKeyVersion"`
	GeneratedAt        int64  `json:"generatedAt"`
}

// ManifestSigner holds the server-side Ed25519 keypair used to sign
// report manifests.
type ManifestSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewManifestSigner builds a signer from a raw Ed25519 private key.
func NewManifestSigner(privateKey ed25519.PrivateKey) (*ManifestSigner, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("manifest: invalid private key size: expected %d, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	return &ManifestSigner{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
	}, nil
}

// NewManifestSignerFromHex builds a signer from a hex-encoded private key.
func NewManifestSignerFromHex(privateKeyHex string) (*ManifestSigner, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("manifest: invalid private key hex: %w", err)
	}
	return NewManifestSigner(raw)
}

// PublicKeyHex returns the signer's public key as hex.
func (s *ManifestSigner) PublicKeyHex() string {
	return hex.EncodeToString(s.publicKey)
}

// KeyVersion returns the short fingerprint of the signer's public key:
// the first 8 bytes of sha256(publicKey), hex-encoded.
func (s *ManifestSigner) KeyVersion() string {
	return Fingerprint(s.publicKey)
}

// Fingerprint computes the short key-version fingerprint of a raw
// Ed25519 public key: the first 8 bytes of its sha256 digest, hex.
func Fingerprint(publicKey ed25519.PublicKey) string {
	h := sha256.Sum256(publicKey)
	return hex.EncodeToString(h[:8])
}

// Sign signs the raw 32-byte report body hash (not its hex string) and
// returns the hex-encoded signature.
func (s *ManifestSigner) Sign(reportBodyHash [32]byte) string {
	sig := ed25519.Sign(s.privateKey, reportBodyHash[:])
	return hex.EncodeToString(sig)
}

// TrustedKeyRegistry enumerates the public-key versions a verifier is
// willing to accept. A nil or empty registry means "no registry
// configured"; callers SHOULD still warn in that case per §4.I but a
// missing registry is not itself a hard verification failure.
type TrustedKeyRegistry struct {
	versions map[string]bool
}

// NewTrustedKeyRegistry builds an empty registry.
func NewTrustedKeyRegistry() *TrustedKeyRegistry {
	return &TrustedKeyRegistry{versions: make(map[string]bool)}
}

// Trust marks a signingKeyVersion fingerprint as accepted.
func (r *TrustedKeyRegistry) Trust(signingKeyVersion string) {
	r.versions[signingKeyVersion] = true
}

// IsTrusted reports whether a signingKeyVersion fingerprint is in the
// registry. An empty registry trusts nothing.
func (r *TrustedKeyRegistry) IsTrusted(signingKeyVersion string) bool {
	if r == nil {
		return false
	}
	return r.versions[signingKeyVersion]
}

// Len reports how many key versions are registered, so callers can
// distinguish "no registry configured" from "registry configured but
// this key isn't in it".
func (r *TrustedKeyRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.versions)
}

// VerifySignature checks an Ed25519 signature over a report body hash
// against the manifest's embedded public key, and that the embedded
// signingKeyVersion fingerprint actually matches that public key. It
// does not consult a TrustedKeyRegistry — callers combine this with a
// registry lookup as §4.I and §4.L require.
func VerifySignature(m Manifest, reportBodyHash [32]byte) error {
	pub, err := hex.DecodeString(m.PublicKey)
	if err != nil {
		return fmt.Errorf("manifest: invalid publicKey hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("manifest: invalid publicKey size: expected %d, got %d", ed25519.PublicKeySize, len(pub))
	}
	if Fingerprint(pub) != m.SigningKeyVersion {
		return fmt.Errorf("manifest: signingKeyVersion %q does not match fingerprint of embedded publicKey", m.SigningKeyVersion)
	}
	sig, err := hex.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("manifest: invalid signature hex: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("manifest: invalid signature size: expected %d, got %d", ed25519.SignatureSize, len(sig))
	}
	if !ed25519.Verify(pub, reportBodyHash[:], sig) {
		return fmt.Errorf("manifest: signature verification failed")
	}
	return nil
}
