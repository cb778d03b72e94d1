package repository

import (
	"context"

	"github.com/sqlc-dev/pqtype"
)

// A redelivered event conflicts and returns sql.ErrNoRows.
const insertWebhookEvent = `-- name: InsertWebhookEvent :one
INSERT INTO webhook_events (provider, event_id, event_type, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider, event_id) DO NOTHING
RETURNING provider, event_id, event_type, payload, received_at`

type InsertWebhookEventParams struct {
	Provider  string                `json:"provider"`
	EventID   string                `json:"event_id"`
	EventType string                `json:"event_type"`
	Payload   pqtype.NullRawMessage `json:"payload"`
}

func (q *Queries) InsertWebhookEvent(ctx context.Context, arg InsertWebhookEventParams) (WebhookEvent, error) {
	row := q.db.QueryRowContext(ctx, insertWebhookEvent,
		arg.Provider,
		arg.EventID,
		arg.EventType,
		arg.Payload,
	)
	var i WebhookEvent
	err := row.Scan(
		&i.Provider,
		&i.EventID,
		&i.EventType,
		&i.Payload,
		&i.ReceivedAt,
	)
	return i, err
}
