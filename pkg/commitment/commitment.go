// Package commitment implements §4.G: periodic commitments that bind the
// chain head to the financial state HMAC, so that the keyless hash chain
// stays a second anchor and a leaked HMAC secret alone cannot forge
// history.
//
// The canonical-hash plumbing this package builds on (concat-then-sha256,
// lowercase hex, no "0x" prefix) is adapted from the teacher's
// pkg/commitment/commitment.go bundle-ID hashing, generalized from a
// Merkle-root concat to the instanceId|seqNo|lastEventHash|stateHmac
// concat this spec names.
package commitment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/trackrecord/ledger/pkg/canonical"
)

// CommitmentInterval is the seqNo cadence at which a commitment is
// created, per §4.G.
const CommitmentInterval = 500

// ShouldCreateCommitment reports whether a commitment row should be
// created after appending the event at seqNo.
func ShouldCreateCommitment(seqNo uint64) bool {
	return seqNo > 0 && seqNo%CommitmentInterval == 0
}

// Commitment is one row binding a chain head to a financial-state HMAC.
type Commitment struct {
	InstanceID     string               `json:"instanceId"`
	SeqNo          uint64               `json:"seqNo"`
	LastEventHash  string               `json:"lastEventHash"`
	StateHMAC      string               `json:"stateHmac"`
	CommitmentHash string               `json:"commitmentHash"`
	NotarizedAt    *int64               `json:"notarizedAt,omitempty"`
	Receipt        *NotarizationReceipt `json:"receipt,omitempty"`
}

// NotarizationReceipt is the optional third-party notarization proof a
// Notarizer plug-in returns for a commitment hash.
type NotarizationReceipt struct {
	Provider  string `json:"provider"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Proof     string `json:"proof"`
	VerifyURL string `json:"verifyUrl"`
}

// StateHMAC computes the HMAC-SHA-256 of the checkpointed financial
// fields, canonicalized, keyed by the server secret. financialFields is
// any value that canonical.MarshalValue can encode (the checkpoint's
// balance/equity/highWaterMark triple).
func StateHMAC(serverSecret []byte, financialFields interface{}) (string, error) {
	body, err := canonical.MarshalValue(financialFields)
	if err != nil {
		return "", fmt.Errorf("commitment: canonicalize financial fields: %w", err)
	}
	mac := hmac.New(sha256.New, serverSecret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Hash computes commitmentHash = sha256(instanceId | seqNo | lastEventHash | stateHmac).
func Hash(instanceID string, seqNo uint64, lastEventHash, stateHMAC string) string {
	return canonical.HashConcat(
		[]byte(instanceID),
		[]byte(fmt.Sprintf("%d", seqNo)),
		[]byte(lastEventHash),
		[]byte(stateHMAC),
	)
}

// Build assembles a Commitment row's hash from its fields.
func Build(instanceID string, seqNo uint64, lastEventHash, stateHMAC string) Commitment {
	return Commitment{
		InstanceID:     instanceID,
		SeqNo:          seqNo,
		LastEventHash:  lastEventHash,
		StateHMAC:      stateHMAC,
		CommitmentHash: Hash(instanceID, seqNo, lastEventHash, stateHMAC),
	}
}

// Verify recomputes a commitment's hash and checks it against the stored
// value.
func Verify(c Commitment) bool {
	return Hash(c.InstanceID, c.SeqNo, c.LastEventHash, c.StateHMAC) == c.CommitmentHash
}

// IsNotarized reports whether the commitment carries a notarization
// timestamp — one of the L3 verification conditions of §4.L.
func (c Commitment) IsNotarized() bool {
	return c.NotarizedAt != nil
}
