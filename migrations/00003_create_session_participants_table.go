package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateSessionParticipantsTable, downCreateSessionParticipantsTable)
}

func upCreateSessionParticipantsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE session_participants (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			display_name TEXT NOT NULL,
			avatar_url TEXT,
			confidence TEXT NOT NULL DEFAULT 'definite' CHECK (confidence IN ('definite', 'maybe', 'undecided')),
			join_start_at TIMESTAMP WITH TIME ZONE,
			join_end_at TIMESTAMP WITH TIME ZONE,
			joined_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
			UNIQUE(session_id, user_id)
		);
	`

	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}

func downCreateSessionParticipantsTable(ctx context.Context, tx *sql.Tx) error {
	query := `DROP TABLE IF EXISTS session_participants;`
	_, err := tx.ExecContext(ctx, query)
	if err != nil {
		return err
	}
	return nil
}
