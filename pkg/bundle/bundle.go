// Package bundle implements §4.K: it assembles a single self-contained
// proof document from a report plus its supporting ledger rows, then runs
// pkg/verify over its own output so a consumer sees the expected answer
// embedded before ever recomputing it themselves.
package bundle

import (
	"github.com/trackrecord/ledger/pkg/commitment"
	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/manifest"
	"github.com/trackrecord/ledger/pkg/report"
	"github.com/trackrecord/ledger/pkg/verify"
)

// Checkpoint, BrokerEvidenceEntry and BrokerDigestEntry are re-exported
// from pkg/verify so callers assembling a bundle don't need to import
// both packages for the same shapes.
type (
	Checkpoint          = verify.Checkpoint
	BrokerEvidenceEntry = verify.BrokerEvidenceEntry
	BrokerDigestEntry   = verify.BrokerDigestEntry
)

// Bundle is verify.Bundle plus the embedded verification the assembler
// computed, the full §4.K document shape.
type Bundle struct {
	Report         report.Report                `json:"report"`
	Events         []event.Event                 `json:"events"`
	Checkpoints    []Checkpoint                  `json:"checkpoints"`
	BrokerEvidence []BrokerEvidenceEntry          `json:"brokerEvidence"`
	BrokerDigests  []BrokerDigestEntry            `json:"brokerDigests"`
	Commitments    []commitment.Commitment        `json:"commitments"`
	Verification   verify.Result                  `json:"verification"`
}

// Input is everything the assembler needs beyond the event range itself.
type Input struct {
	InstanceID     string
	Events         []event.Event
	Checkpoints    []Checkpoint
	Commitments    []commitment.Commitment
	Signer         *manifest.ManifestSigner
	TrustedKeys    *manifest.TrustedKeyRegistry
	GeneratedAt    int64
}

// Assemble runs §4.J's report generator over in.Events, extracts broker
// evidence/digest entries from the same range, wraps everything into a
// Bundle, and embeds the result of running pkg/verify over that exact
// Bundle.
func Assemble(in Input) (Bundle, error) {
	rpt, err := report.Generate(in.Events, in.InstanceID, in.Signer, in.GeneratedAt)
	if err != nil {
		return Bundle{}, err
	}

	evidence, digests := extractBrokerEntries(in.Events)

	b := Bundle{
		Report:         rpt,
		Events:         in.Events,
		Checkpoints:    in.Checkpoints,
		BrokerEvidence: evidence,
		BrokerDigests:  digests,
		Commitments:    in.Commitments,
	}

	vb := verify.Bundle{
		Report:         b.Report,
		Events:         b.Events,
		Checkpoints:    b.Checkpoints,
		BrokerEvidence: b.BrokerEvidence,
		BrokerDigests:  b.BrokerDigests,
		Commitments:    b.Commitments,
	}
	b.Verification = verify.Verify(vb, in.InstanceID, in.TrustedKeys)

	return b, nil
}

func extractBrokerEntries(events []event.Event) ([]BrokerEvidenceEntry, []BrokerDigestEntry) {
	var evidence []BrokerEvidenceEntry
	var digests []BrokerDigestEntry
	for _, e := range events {
		switch e.EventType {
		case event.BrokerEvidence:
			var p event.BrokerEvidencePayload
			if err := e.Decode(&p); err != nil {
				continue
			}
			evidence = append(evidence, BrokerEvidenceEntry{SeqNo: e.SeqNo, Payload: p})
		case event.BrokerHistoryDigest:
			var p event.BrokerHistoryDigestPayload
			if err := e.Decode(&p); err != nil {
				continue
			}
			digests = append(digests, BrokerDigestEntry{SeqNo: e.SeqNo, Payload: p})
		}
	}
	return evidence, digests
}
