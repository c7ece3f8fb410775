package manifest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"testing"
)

func mustSigner(t *testing.T) *ManifestSigner {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := NewManifestSigner(priv)
	if err != nil {
		t.Fatalf("NewManifestSigner: %v", err)
	}
	return s
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	s := mustSigner(t)
	bodyHash := sha256.Sum256([]byte(`{"some":"canonical body"}`))

	m := Manifest{
		PublicKey:         s.PublicKeyHex(),
		SigningKeyVersion: s.KeyVersion(),
		Signature:         s.Sign(bodyHash),
	}

	if err := VerifySignature(m, bodyHash); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	s := mustSigner(t)
	bodyHash := sha256.Sum256([]byte(`{"some":"canonical body"}`))
	m := Manifest{
		PublicKey:         s.PublicKeyHex(),
		SigningKeyVersion: s.KeyVersion(),
		Signature:         s.Sign(bodyHash),
	}

	tamperedHash := sha256.Sum256([]byte(`{"some":"tampered body"}`))
	if err := VerifySignature(m, tamperedHash); err == nil {
		t.Fatal("expected verification failure for tampered body hash")
	}
}

func TestVerifyRejectsFingerprintMismatch(t *testing.T) {
	s := mustSigner(t)
	bodyHash := sha256.Sum256([]byte(`{"some":"canonical body"}`))
	m := Manifest{
		PublicKey:         s.PublicKeyHex(),
		SigningKeyVersion: "deadbeefdeadbeef",
		Signature:         s.Sign(bodyHash),
	}

	if err := VerifySignature(m, bodyHash); err == nil {
		t.Fatal("expected verification failure for signingKeyVersion/publicKey mismatch")
	}
}

func TestTrustedKeyRegistry(t *testing.T) {
	s := mustSigner(t)
	reg := NewTrustedKeyRegistry()
	if reg.IsTrusted(s.KeyVersion()) {
		t.Fatal("empty registry should trust nothing")
	}
	reg.Trust(s.KeyVersion())
	if !reg.IsTrusted(s.KeyVersion()) {
		t.Fatal("expected key version to be trusted after Trust()")
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
}
