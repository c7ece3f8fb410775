// Instance-head repository: the per-instance running state the ingest
// transaction of §4.F reads, validates against, and writes back on every
// event append. The row supplies the chain tip for validation; the
// financial fields it stores are re-derived on each append by a full
// replay from seqNo 1 (see pkg/state).

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trackrecord/ledger/pkg/decimal"
)

// InstanceHead is the persisted running state of one instance.
type InstanceHead struct {
	InstanceID         string
	LastSeqNo          uint64
	LastEventHash      string
	Balance            decimal.D
	Equity             decimal.D
	HighWaterMark      decimal.D
	CumulativeCashflow decimal.D
	MaxDrawdown        decimal.D
	MaxDrawdownPct     decimal.D
	ReplayState        json.RawMessage // opaque JSON column; pkg/state's Ingest leaves it unset, so it is stored as {}
}

// HeadRepository handles instance_heads operations.
type HeadRepository struct {
	client *Client
}

// NewHeadRepository creates a new head repository.
func NewHeadRepository(client *Client) *HeadRepository {
	return &HeadRepository{client: client}
}

// GetHeadForUpdateTx loads an instance's head row within tx, taking a
// row-level exclusive lock via SELECT ... FOR UPDATE so concurrent
// ingest requests for the same instance serialize, per §4.F step 1.
// Returns ErrInstanceNotFound if the instance has no head row yet (its
// first event must be a fresh-chain SESSION_START against event.Genesis).
func (r *HeadRepository) GetHeadForUpdateTx(ctx context.Context, tx *Tx, instanceID string) (InstanceHead, error) {
	query := `
		SELECT instance_id, last_seq_no, last_event_hash, balance, equity,
			high_water_mark, cumulative_cashflow, max_drawdown, max_drawdown_pct, replay_state
		FROM instance_heads WHERE instance_id = $1 FOR UPDATE`

	var h InstanceHead
	var balance, equity, hwm, cashflow, maxDD, maxDDPct string
	var replayState []byte
	err := tx.Tx().QueryRowContext(ctx, query, instanceID).Scan(
		&h.InstanceID, &h.LastSeqNo, &h.LastEventHash, &balance, &equity, &hwm, &cashflow, &maxDD, &maxDDPct, &replayState,
	)
	if err == sql.ErrNoRows {
		return InstanceHead{}, ErrInstanceNotFound
	}
	if err != nil {
		return InstanceHead{}, fmt.Errorf("failed to load instance head: %w", err)
	}

	h.Balance, err = decimal.Parse(balance, decimal.ScaleCents)
	if err != nil {
		return InstanceHead{}, fmt.Errorf("failed to parse stored balance: %w", err)
	}
	h.Equity, err = decimal.Parse(equity, decimal.ScaleCents)
	if err != nil {
		return InstanceHead{}, fmt.Errorf("failed to parse stored equity: %w", err)
	}
	h.HighWaterMark, err = decimal.Parse(hwm, decimal.ScaleCents)
	if err != nil {
		return InstanceHead{}, fmt.Errorf("failed to parse stored highWaterMark: %w", err)
	}
	h.CumulativeCashflow, err = decimal.Parse(cashflow, decimal.ScaleCents)
	if err != nil {
		return InstanceHead{}, fmt.Errorf("failed to parse stored cumulativeCashflow: %w", err)
	}
	h.MaxDrawdown, err = decimal.Parse(maxDD, decimal.ScaleCents)
	if err != nil {
		return InstanceHead{}, fmt.Errorf("failed to parse stored maxDrawdown: %w", err)
	}
	h.MaxDrawdownPct, err = decimal.Parse(maxDDPct, decimal.ScalePercent)
	if err != nil {
		return InstanceHead{}, fmt.Errorf("failed to parse stored maxDrawdownPct: %w", err)
	}
	h.ReplayState = replayState
	return h, nil
}

// UpsertHeadTx writes an instance's head row within tx.
func (r *HeadRepository) UpsertHeadTx(ctx context.Context, tx *Tx, h InstanceHead) error {
	query := `
		INSERT INTO instance_heads (
			instance_id, last_seq_no, last_event_hash, balance, equity,
			high_water_mark, cumulative_cashflow, max_drawdown, max_drawdown_pct, replay_state, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (instance_id) DO UPDATE SET
			last_seq_no = EXCLUDED.last_seq_no,
			last_event_hash = EXCLUDED.last_event_hash,
			balance = EXCLUDED.balance,
			equity = EXCLUDED.equity,
			high_water_mark = EXCLUDED.high_water_mark,
			cumulative_cashflow = EXCLUDED.cumulative_cashflow,
			max_drawdown = EXCLUDED.max_drawdown,
			max_drawdown_pct = EXCLUDED.max_drawdown_pct,
			replay_state = EXCLUDED.replay_state,
			updated_at = now()`

	replayState := h.ReplayState
	if replayState == nil {
		replayState = json.RawMessage("{}")
	}

	_, err := tx.Tx().ExecContext(ctx, query,
		h.InstanceID, h.LastSeqNo, h.LastEventHash,
		h.Balance.String(), h.Equity.String(), h.HighWaterMark.String(),
		h.CumulativeCashflow.String(), h.MaxDrawdown.String(), h.MaxDrawdownPct.String(),
		[]byte(replayState),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert instance head: %w", err)
	}
	return nil
}
