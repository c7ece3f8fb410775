// Commitment repository - CRUD operations over §4.G commitment rows,
// the chain-head-to-financial-state binding checked at L3 verification.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trackrecord/ledger/pkg/commitment"
)

// CommitmentRepository handles commitment row operations.
type CommitmentRepository struct {
	client *Client
}

// NewCommitmentRepository creates a new commitment repository.
func NewCommitmentRepository(client *Client) *CommitmentRepository {
	return &CommitmentRepository{client: client}
}

// InsertCommitmentTx inserts a commitment row within tx.
func (r *CommitmentRepository) InsertCommitmentTx(ctx context.Context, tx *Tx, c commitment.Commitment) error {
	query := `
		INSERT INTO commitments (instance_id, seq_no, last_event_hash, state_hmac, commitment_hash)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Tx().ExecContext(ctx, query, c.InstanceID, c.SeqNo, c.LastEventHash, c.StateHMAC, c.CommitmentHash)
	if err != nil {
		return fmt.Errorf("failed to insert commitment: %w", err)
	}
	return nil
}

// RecordNotarization attaches a notarization receipt to an existing commitment.
func (r *CommitmentRepository) RecordNotarization(ctx context.Context, instanceID string, seqNo uint64, receipt commitment.NotarizationReceipt, notarizedAt time.Time) error {
	query := `
		UPDATE commitments SET notarized_at = $3, receipt_provider = $4, receipt_proof = $5, receipt_verify_url = $6
		WHERE instance_id = $1 AND seq_no = $2`

	res, err := r.client.ExecContext(ctx, query, instanceID, seqNo, notarizedAt, receipt.Provider, receipt.Proof, receipt.VerifyURL)
	if err != nil {
		return fmt.Errorf("failed to record notarization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrCommitmentNotFound
	}
	return nil
}

// GetCommitment retrieves a commitment by (instanceId, seqNo).
func (r *CommitmentRepository) GetCommitment(ctx context.Context, instanceID string, seqNo uint64) (commitment.Commitment, error) {
	query := `
		SELECT instance_id, seq_no, last_event_hash, state_hmac, commitment_hash,
			notarized_at, receipt_provider, receipt_proof, receipt_verify_url
		FROM commitments WHERE instance_id = $1 AND seq_no = $2`

	var c commitment.Commitment
	var notarizedAt sql.NullTime
	var provider, proof, verifyURL sql.NullString
	err := r.client.QueryRowContext(ctx, query, instanceID, seqNo).Scan(
		&c.InstanceID, &c.SeqNo, &c.LastEventHash, &c.StateHMAC, &c.CommitmentHash,
		&notarizedAt, &provider, &proof, &verifyURL,
	)
	if err == sql.ErrNoRows {
		return commitment.Commitment{}, ErrCommitmentNotFound
	}
	if err != nil {
		return commitment.Commitment{}, fmt.Errorf("failed to get commitment: %w", err)
	}
	if notarizedAt.Valid {
		ts := notarizedAt.Time.Unix()
		c.NotarizedAt = &ts
		c.Receipt = &commitment.NotarizationReceipt{
			Provider:  provider.String,
			Hash:      c.CommitmentHash,
			Timestamp: ts,
			Proof:     proof.String,
			VerifyURL: verifyURL.String,
		}
	}
	return c, nil
}

// ListCommitments retrieves all commitments for an instance, ascending by seqNo.
func (r *CommitmentRepository) ListCommitments(ctx context.Context, instanceID string) ([]commitment.Commitment, error) {
	query := `
		SELECT instance_id, seq_no, last_event_hash, state_hmac, commitment_hash,
			notarized_at, receipt_provider, receipt_proof, receipt_verify_url
		FROM commitments WHERE instance_id = $1 ORDER BY seq_no ASC`

	rows, err := r.client.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commitments: %w", err)
	}
	defer rows.Close()

	var out []commitment.Commitment
	for rows.Next() {
		var c commitment.Commitment
		var notarizedAt sql.NullTime
		var provider, proof, verifyURL sql.NullString
		if err := rows.Scan(&c.InstanceID, &c.SeqNo, &c.LastEventHash, &c.StateHMAC, &c.CommitmentHash,
			&notarizedAt, &provider, &proof, &verifyURL); err != nil {
			return nil, fmt.Errorf("failed to scan commitment: %w", err)
		}
		if notarizedAt.Valid {
			ts := notarizedAt.Time.Unix()
			c.NotarizedAt = &ts
			c.Receipt = &commitment.NotarizationReceipt{
				Provider: provider.String, Hash: c.CommitmentHash, Timestamp: ts, Proof: proof.String, VerifyURL: verifyURL.String,
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
