package taskqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StreamChannel is the NOTIFY channel raised for every change-log append.
const StreamChannel = "botte_task_stream"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS botte_tasks (
		pk            TEXT        NOT NULL,
		sk            TEXT        NOT NULL,
		item          JSONB       NOT NULL,
		expiration_ts BIGINT      NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (pk, sk)
	)`,
	`CREATE INDEX IF NOT EXISTS botte_tasks_expiration_ts_idx ON botte_tasks (expiration_ts)`,

	`CREATE TABLE IF NOT EXISTS botte_task_stream (
		seq        BIGSERIAL   PRIMARY KEY,
		event_name TEXT        NOT NULL,
		keys       JSONB       NOT NULL,
		new_image  JSONB,
		old_image  JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS botte_task_stream_created_at_idx ON botte_task_stream (created_at)`,

	`CREATE TABLE IF NOT EXISTS botte_stream_checkpoints (
		consumer   TEXT        PRIMARY KEY,
		seq        BIGINT      NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE OR REPLACE FUNCTION botte_task_stream_append() RETURNS trigger AS $$
	DECLARE
		rec_keys JSONB;
		new_seq  BIGINT;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			rec_keys := jsonb_build_object('PK', jsonb_build_object('S', OLD.pk), 'SK', jsonb_build_object('S', OLD.sk));
			INSERT INTO botte_task_stream (event_name, keys, old_image)
			VALUES ('REMOVE', rec_keys, OLD.item) RETURNING seq INTO new_seq;
		ELSIF TG_OP = 'UPDATE' THEN
			rec_keys := jsonb_build_object('PK', jsonb_build_object('S', NEW.pk), 'SK', jsonb_build_object('S', NEW.sk));
			INSERT INTO botte_task_stream (event_name, keys, new_image, old_image)
			VALUES ('MODIFY', rec_keys, NEW.item, OLD.item) RETURNING seq INTO new_seq;
		ELSE
			rec_keys := jsonb_build_object('PK', jsonb_build_object('S', NEW.pk), 'SK', jsonb_build_object('S', NEW.sk));
			INSERT INTO botte_task_stream (event_name, keys, new_image)
			VALUES ('INSERT', rec_keys, NEW.item) RETURNING seq INTO new_seq;
		END IF;
		PERFORM pg_notify('` + StreamChannel + `', new_seq::text);
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS botte_tasks_stream_trigger ON botte_tasks`,
	`CREATE TRIGGER botte_tasks_stream_trigger
		AFTER INSERT OR UPDATE OR DELETE ON botte_tasks
		FOR EACH ROW EXECUTE FUNCTION botte_task_stream_append()`,
}

// Migrate creates the task table, its change log and the consumer
// checkpoints. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting migration: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent migrations (server and CLI starting together).
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('botte_migrate'))`); err != nil {
		return fmt.Errorf("error locking migration: %w", err)
	}

	for i, stmt := range migrations {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing migration: %w", err)
	}
	return nil
}
