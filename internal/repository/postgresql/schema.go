package postgresql

import (
	"context"
	"fmt"

	"github.com/linkpulse/notifyhub/internal/pkg/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id           UUID PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	actor_id     TEXT NOT NULL,
	type         TEXT NOT NULL CHECK (type IN ('FOLLOW', 'LIKE', 'REPLY', 'REPLY_TO_REPLY', 'RESHARE', 'MENTION')),
	ref_id       TEXT,
	is_read      BOOLEAN NOT NULL DEFAULT false,
	read_at      TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (recipient_id <> actor_id)
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created
	ON notifications (recipient_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient_unread
	ON notifications (recipient_id) WHERE is_read = false;
`

// Migrate applies the notification schema. Safe to run on every start.
func Migrate(ctx context.Context, db *database.DB) error {
	return WithTransaction(ctx, db, func(ctx context.Context) error {
		if _, err := GetQuerier(ctx, db).Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		return nil
	})
}
