// Checkpoint repository - CRUD operations over periodic balance/equity
// snapshots (§3, §4.F step 4). Checkpoints are never mutated once written.

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trackrecord/ledger/pkg/decimal"
)

// Checkpoint is one row of {instanceId, seqNo, balance, equity, highWaterMark, hmac}.
type Checkpoint struct {
	InstanceID    string
	SeqNo         uint64
	Balance       decimal.D
	Equity        decimal.D
	HighWaterMark decimal.D
	HMAC          string
}

// CheckpointRepository handles checkpoint row operations.
type CheckpointRepository struct {
	client *Client
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(client *Client) *CheckpointRepository {
	return &CheckpointRepository{client: client}
}

// InsertCheckpointTx inserts a checkpoint row within tx.
func (r *CheckpointRepository) InsertCheckpointTx(ctx context.Context, tx *Tx, c Checkpoint) error {
	query := `
		INSERT INTO checkpoints (instance_id, seq_no, balance, equity, high_water_mark, hmac)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Tx().ExecContext(ctx, query, c.InstanceID, c.SeqNo, c.Balance.String(), c.Equity.String(), c.HighWaterMark.String(), c.HMAC)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by (instanceId, seqNo).
func (r *CheckpointRepository) GetCheckpoint(ctx context.Context, instanceID string, seqNo uint64) (Checkpoint, error) {
	query := `
		SELECT instance_id, seq_no, balance, equity, high_water_mark, hmac
		FROM checkpoints WHERE instance_id = $1 AND seq_no = $2`

	var c Checkpoint
	var balance, equity, hwm string
	err := r.client.QueryRowContext(ctx, query, instanceID, seqNo).Scan(&c.InstanceID, &c.SeqNo, &balance, &equity, &hwm, &c.HMAC)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	if c.Balance, err = decimal.Parse(balance, decimal.ScaleCents); err != nil {
		return Checkpoint{}, err
	}
	if c.Equity, err = decimal.Parse(equity, decimal.ScaleCents); err != nil {
		return Checkpoint{}, err
	}
	if c.HighWaterMark, err = decimal.Parse(hwm, decimal.ScaleCents); err != nil {
		return Checkpoint{}, err
	}
	return c, nil
}

// ListCheckpoints retrieves all checkpoints for an instance, ascending by seqNo.
func (r *CheckpointRepository) ListCheckpoints(ctx context.Context, instanceID string) ([]Checkpoint, error) {
	query := `
		SELECT instance_id, seq_no, balance, equity, high_water_mark, hmac
		FROM checkpoints WHERE instance_id = $1 ORDER BY seq_no ASC`

	rows, err := r.client.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		var balance, equity, hwm string
		if err := rows.Scan(&c.InstanceID, &c.SeqNo, &balance, &equity, &hwm, &c.HMAC); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if c.Balance, err = decimal.Parse(balance, decimal.ScaleCents); err != nil {
			return nil, err
		}
		if c.Equity, err = decimal.Parse(equity, decimal.ScaleCents); err != nil {
			return nil, err
		}
		if c.HighWaterMark, err = decimal.Parse(hwm, decimal.ScaleCents); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
