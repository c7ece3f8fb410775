// Event repository - CRUD operations over the append-only events table.

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trackrecord/ledger/pkg/event"
)

// EventRepository handles event row operations.
type EventRepository struct {
	client *Client
}

// NewEventRepository creates a new event repository.
func NewEventRepository(client *Client) *EventRepository {
	return &EventRepository{client: client}
}

// AppendEvent inserts a new event row. Callers are responsible for
// seqNo/prevHash validation before calling this — AppendEvent does not
// re-check chain linkage.
func (r *EventRepository) AppendEvent(ctx context.Context, e event.Event) error {
	query := `
		INSERT INTO events (instance_id, seq_no, event_type, prev_hash, event_hash, timestamp, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.client.ExecContext(ctx, query,
		e.InstanceID, e.SeqNo, string(e.EventType), e.PrevHash, e.EventHash, e.Timestamp, []byte(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// AppendEventTx is AppendEvent but scoped to an existing transaction,
// for use inside the per-instance ingest transaction of §4.F.
func (r *EventRepository) AppendEventTx(ctx context.Context, tx *Tx, e event.Event) error {
	query := `
		INSERT INTO events (instance_id, seq_no, event_type, prev_hash, event_hash, timestamp, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Tx().ExecContext(ctx, query,
		e.InstanceID, e.SeqNo, string(e.EventType), e.PrevHash, e.EventHash, e.Timestamp, []byte(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvent retrieves a single event by (instanceId, seqNo).
func (r *EventRepository) GetEvent(ctx context.Context, instanceID string, seqNo uint64) (event.Event, error) {
	query := `
		SELECT instance_id, seq_no, event_type, prev_hash, event_hash, timestamp, payload
		FROM events WHERE instance_id = $1 AND seq_no = $2`

	var e event.Event
	var eventType string
	var payload []byte
	err := r.client.QueryRowContext(ctx, query, instanceID, seqNo).Scan(
		&e.InstanceID, &e.SeqNo, &eventType, &e.PrevHash, &e.EventHash, &e.Timestamp, &payload,
	)
	if err == sql.ErrNoRows {
		return event.Event{}, ErrEventNotFound
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("failed to get event: %w", err)
	}
	e.EventType = event.Type(eventType)
	e.Payload = json.RawMessage(payload)
	return e, nil
}

// ListEvents retrieves all events for an instance in the range
// [fromSeqNo, toSeqNo], both inclusive. toSeqNo == 0 means "no upper bound".
func (r *EventRepository) ListEvents(ctx context.Context, instanceID string, fromSeqNo, toSeqNo uint64) ([]event.Event, error) {
	query := `
		SELECT instance_id, seq_no, event_type, prev_hash, event_hash, timestamp, payload
		FROM events
		WHERE instance_id = $1 AND seq_no >= $2 AND ($3 = 0 OR seq_no <= $3)
		ORDER BY seq_no ASC`

	rows, err := r.client.QueryContext(ctx, query, instanceID, fromSeqNo, toSeqNo)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var eventType string
		var payload []byte
		if err := rows.Scan(&e.InstanceID, &e.SeqNo, &eventType, &e.PrevHash, &e.EventHash, &e.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventType = event.Type(eventType)
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}
