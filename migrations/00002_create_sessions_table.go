package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateSessionsTable, downCreateSessionsTable)
}

func upCreateSessionsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE sessions (
			id UUID PRIMARY KEY,
			guild_id UUID REFERENCES guilds(id) ON DELETE CASCADE,
			creator_id UUID NOT NULL,
			title TEXT NOT NULL,
			max_players INT NOT NULL CHECK (max_players >= 1),
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'active')),
			schedule_kind TEXT NOT NULL DEFAULT 'none' CHECK (schedule_kind IN ('none', 'all-day', 'timed')),
			schedule_date TIMESTAMP WITH TIME ZONE,
			schedule_start_at TIMESTAMP WITH TIME ZONE,
			schedule_end_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			CHECK (schedule_end_at IS NULL OR schedule_end_at > schedule_start_at)
		);

		CREATE INDEX idx_sessions_guild_created ON sessions (guild_id, created_at DESC);
	`

	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}

func downCreateSessionsTable(ctx context.Context, tx *sql.Tx) error {
	query := `DROP TABLE IF EXISTS sessions;`
	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}
