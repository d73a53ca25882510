package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateGuildsTable, downCreateGuildsTable)
}

func upCreateGuildsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE guilds (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			webhook_url TEXT,
			notify_on_create BOOLEAN NOT NULL DEFAULT TRUE,
			notify_on_join BOOLEAN NOT NULL DEFAULT TRUE,
			notify_on_activate BOOLEAN NOT NULL DEFAULT TRUE,
			notify_on_start BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
		);

		CREATE TABLE guild_members (
			guild_id UUID NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('owner', 'admin', 'member')),
			joined_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
			PRIMARY KEY (guild_id, user_id)
		);
	`

	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}

func downCreateGuildsTable(ctx context.Context, tx *sql.Tx) error {
	query := `DROP TABLE IF EXISTS guild_members; DROP TABLE IF EXISTS guilds;`
	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}
