// Package event defines the eleven event-type payloads that make up a
// trading instance's ledger, their validation rules, and the canonical
// byte form each event's hash is computed over.
//
// Event variants are a tagged sum distinguished by EventType, following
// the discriminated-envelope pattern of the teacher's canonical-event
// package (seen in the pack's Chartly canonical-event envelope): a stable
// outer shape plus a typed payload, decoded by an exhaustive switch on
// the tag rather than duck-typing.
package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trackrecord/ledger/pkg/canonical"
	"github.com/trackrecord/ledger/pkg/decimal"
)

// Type is the event discriminator.
type Type string

const (
	SessionStart        Type = "SESSION_START"
	SessionEnd          Type = "SESSION_END"
	Snapshot            Type = "SNAPSHOT"
	TradeOpen           Type = "TRADE_OPEN"
	TradeClose          Type = "TRADE_CLOSE"
	TradeModify         Type = "TRADE_MODIFY"
	PartialClose        Type = "PARTIAL_CLOSE"
	Cashflow            Type = "CASHFLOW"
	BrokerEvidence      Type = "BROKER_EVIDENCE"
	BrokerHistoryDigest Type = "BROKER_HISTORY_DIGEST"
	ChainRecovery       Type = "CHAIN_RECOVERY"
)

// Valid reports whether t is one of the eleven known event types.
func (t Type) Valid() bool {
	switch t {
	case SessionStart, SessionEnd, Snapshot, TradeOpen, TradeClose, TradeModify,
		PartialClose, Cashflow, BrokerEvidence, BrokerHistoryDigest, ChainRecovery:
		return true
	}
	return false
}

// Direction is a trade side.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Mode distinguishes a live session from a paper one. Self-reported; see
// the caveats surfaced at verification level 1.
type Mode string

const (
	Live  Mode = "LIVE"
	Paper Mode = "PAPER"
)

// CashflowType is a deposit or withdrawal.
type CashflowType string

const (
	Deposit    CashflowType = "DEPOSIT"
	Withdrawal CashflowType = "WITHDRAWAL"
)

// BrokerAction is the execution side a BROKER_EVIDENCE event corroborates.
type BrokerAction string

const (
	BrokerOpen  BrokerAction = "OPEN"
	BrokerClose BrokerAction = "CLOSE"
)

// Genesis is the prevHash of the first event of a chain: 64 ASCII zeros.
var Genesis = strings.Repeat("0", 64)

// Event is the envelope every event type shares. Payload carries the
// type-specific fields and is decoded via Decode once EventType is known.
type Event struct {
	InstanceID string          `json:"instanceId"`
	SeqNo      uint64          `json:"seqNo"`
	EventType  Type            `json:"eventType"`
	PrevHash   string          `json:"prevHash"`
	EventHash  string          `json:"eventHash"`
	Timestamp  int64           `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// Decode unmarshals the event's payload into target, which must be a
// pointer to the payload struct matching EventType.
func (e Event) Decode(target interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event: seqNo %d: empty payload", e.SeqNo)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("event: seqNo %d: decode payload: %w", e.SeqNo, err)
	}
	return nil
}

// BuildCanonical returns the canonical JSON bytes of
// {instanceId, eventType, seqNo, prevHash, timestamp, ...payload}, the
// object whose SHA-256 is the event's hash. eventHash is never part of
// this form; it is what gets computed from it.
func BuildCanonical(instanceID string, eventType Type, seqNo uint64, prevHash string, timestamp int64, payload json.RawMessage) ([]byte, error) {
	var payloadMap map[string]interface{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &payloadMap); err != nil {
			return nil, fmt.Errorf("event: unmarshal payload: %w", err)
		}
	}
	merged := make(map[string]interface{}, len(payloadMap)+5)
	for k, v := range payloadMap {
		merged[k] = v
	}
	merged["instanceId"] = instanceID
	merged["eventType"] = string(eventType)
	merged["seqNo"] = seqNo
	merged["prevHash"] = prevHash
	merged["timestamp"] = timestamp
	return canonical.MarshalValue(merged)
}

// ComputeHash returns the lowercase hex SHA-256 of the event's canonical
// form: sha256(buildCanonicalEvent(...)).
func ComputeHash(instanceID string, eventType Type, seqNo uint64, prevHash string, timestamp int64, payload json.RawMessage) (string, error) {
	b, err := BuildCanonical(instanceID, eventType, seqNo, prevHash, timestamp, payload)
	if err != nil {
		return "", err
	}
	return canonical.Hash(b), nil
}

// ---- payload variants (§3) ----

type SessionStartPayload struct {
	Broker    string    `json:"broker"`
	Account   string    `json:"account"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	EAVersion string    `json:"eaVersion"`
	Mode      Mode      `json:"mode"`
	Balance   decimal.D `json:"balance"`
}

type SessionEndPayload struct {
	Reason        string    `json:"reason"`
	FinalBalance  decimal.D `json:"finalBalance"`
	FinalEquity   decimal.D `json:"finalEquity"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
}

type SnapshotPayload struct {
	Balance       decimal.D `json:"balance"`
	Equity        decimal.D `json:"equity"`
	OpenTrades    int       `json:"openTrades"`
	UnrealizedPnL decimal.D `json:"unrealizedPnL"`
	Drawdown      decimal.D `json:"drawdown"`
}

type TradeOpenPayload struct {
	Ticket    string    `json:"ticket"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Lots      decimal.D `json:"lots"`
	OpenPrice decimal.D `json:"openPrice"`
	SL        decimal.D `json:"sl"`
	TP        decimal.D `json:"tp"`
}

type TradeClosePayload struct {
	Ticket      string    `json:"ticket"`
	ClosePrice  decimal.D `json:"closePrice"`
	Profit      decimal.D `json:"profit"`
	Swap        decimal.D `json:"swap"`
	Commission  decimal.D `json:"commission"`
	CloseReason string    `json:"closeReason"`
}

type TradeModifyPayload struct {
	Ticket string    `json:"ticket"`
	NewSL  decimal.D `json:"newSL"`
	NewTP  decimal.D `json:"newTP"`
	OldSL  decimal.D `json:"oldSL"`
	OldTP  decimal.D `json:"oldTP"`
}

type PartialClosePayload struct {
	Ticket        string    `json:"ticket"`
	ClosedLots    decimal.D `json:"closedLots"`
	RemainingLots decimal.D `json:"remainingLots"`
	Profit        decimal.D `json:"profit"`
	ClosePrice    decimal.D `json:"closePrice"`
}

type CashflowPayload struct {
	Type          CashflowType `json:"type"`
	Amount        decimal.D    `json:"amount"`
	BalanceBefore decimal.D    `json:"balanceBefore"`
	BalanceAfter  decimal.D    `json:"balanceAfter"`
	Note          string       `json:"note"`
}

type BrokerEvidencePayload struct {
	BrokerTicket       string       `json:"brokerTicket"`
	ExecutionTimestamp int64        `json:"executionTimestamp"`
	Symbol             string       `json:"symbol"`
	Volume             decimal.D    `json:"volume"`
	ExecutionPrice     decimal.D    `json:"executionPrice"`
	Action             BrokerAction `json:"action"`
	LinkedTicket       string       `json:"linkedTicket"`
}

type BrokerHistoryDigestPayload struct {
	PeriodStart  int64  `json:"periodStart"`
	PeriodEnd    int64  `json:"periodEnd"`
	TradeCount   int    `json:"tradeCount"`
	HistoryHash  string `json:"historyHash"`
	FirstTicket  string `json:"firstTicket"`
	LastTicket   string `json:"lastTicket"`
	ExportFormat string `json:"exportFormat"`
}

type ChainRecoveryPayload struct {
	PreviousSeqNo      uint64 `json:"previousSeqNo"`
	PreviousHash       string `json:"previousHash"`
	RecoveredFromSeqNo uint64 `json:"recoveredFromSeqNo"`
	RecoveredFromHash  string `json:"recoveredFromHash"`
	Reason             string `json:"reason"`
}

// Normalize methods fix each decimal field to its semantic scale (§4.A).
// JSON decoding leaves decimal.D values with an unset scale; callers MUST
// normalize before doing arithmetic or producing canonical strings.

func (p *SessionStartPayload) Normalize() {
	p.Balance = p.Balance.AtScale(decimal.ScaleCents)
}

func (p *SessionEndPayload) Normalize() {
	p.FinalBalance = p.FinalBalance.AtScale(decimal.ScaleCents)
	p.FinalEquity = p.FinalEquity.AtScale(decimal.ScaleCents)
}

func (p *SnapshotPayload) Normalize() {
	p.Balance = p.Balance.AtScale(decimal.ScaleCents)
	p.Equity = p.Equity.AtScale(decimal.ScaleCents)
	p.UnrealizedPnL = p.UnrealizedPnL.AtScale(decimal.ScaleCents)
	p.Drawdown = p.Drawdown.AtScale(decimal.ScaleCents)
}

func (p *TradeOpenPayload) Normalize() {
	p.Lots = p.Lots.AtScale(decimal.ScaleLots)
	p.OpenPrice = p.OpenPrice.AtScale(decimal.ScalePrice)
	p.SL = p.SL.AtScale(decimal.ScalePrice)
	p.TP = p.TP.AtScale(decimal.ScalePrice)
}

func (p *TradeClosePayload) Normalize() {
	p.ClosePrice = p.ClosePrice.AtScale(decimal.ScalePrice)
	p.Profit = p.Profit.AtScale(decimal.ScaleCents)
	p.Swap = p.Swap.AtScale(decimal.ScaleCents)
	p.Commission = p.Commission.AtScale(decimal.ScaleCents)
}

func (p *TradeModifyPayload) Normalize() {
	p.NewSL = p.NewSL.AtScale(decimal.ScalePrice)
	p.NewTP = p.NewTP.AtScale(decimal.ScalePrice)
	p.OldSL = p.OldSL.AtScale(decimal.ScalePrice)
	p.OldTP = p.OldTP.AtScale(decimal.ScalePrice)
}

func (p *PartialClosePayload) Normalize() {
	p.ClosedLots = p.ClosedLots.AtScale(decimal.ScaleLots)
	p.RemainingLots = p.RemainingLots.AtScale(decimal.ScaleLots)
	p.Profit = p.Profit.AtScale(decimal.ScaleCents)
	p.ClosePrice = p.ClosePrice.AtScale(decimal.ScalePrice)
}

func (p *CashflowPayload) Normalize() {
	p.Amount = p.Amount.AtScale(decimal.ScaleCents)
	p.BalanceBefore = p.BalanceBefore.AtScale(decimal.ScaleCents)
	p.BalanceAfter = p.BalanceAfter.AtScale(decimal.ScaleCents)
}

func (p *BrokerEvidencePayload) Normalize() {
	p.Volume = p.Volume.AtScale(decimal.ScaleLots)
	p.ExecutionPrice = p.ExecutionPrice.AtScale(decimal.ScalePrice)
}
