package repository

import (
	"context"
	"database/sql"
	"errors"

	"lobby-service/internal/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// GuildRepository is read-only; guilds and memberships are managed elsewhere.
type GuildRepository interface {
	FindBySlug(ctx context.Context, slug string) (*model.Guild, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Guild, error)
	MemberRole(ctx context.Context, guildID, userID uuid.UUID) (model.GuildRole, error)
}

const guildColumns = `id, slug, name, webhook_url, notify_on_create, notify_on_join, notify_on_activate, notify_on_start`

type postgresGuildRepository struct {
	db *sqlx.DB
}

func NewPostgresGuildRepository(db *sqlx.DB) GuildRepository {
	return &postgresGuildRepository{db: db}
}

func (r *postgresGuildRepository) FindBySlug(ctx context.Context, slug string) (*model.Guild, error) {
	return r.findOne(ctx, `SELECT `+guildColumns+` FROM guilds WHERE slug = $1`, slug)
}

func (r *postgresGuildRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Guild, error) {
	return r.findOne(ctx, `SELECT `+guildColumns+` FROM guilds WHERE id = $1`, id)
}

func (r *postgresGuildRepository) findOne(ctx context.Context, query string, arg any) (*model.Guild, error) {
	var guild model.Guild
	err := r.db.GetContext(ctx, &guild, query, arg)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &guild, nil
}

// MemberRole returns an empty role when the user is not a member.
func (r *postgresGuildRepository) MemberRole(ctx context.Context, guildID, userID uuid.UUID) (model.GuildRole, error) {
	var role string
	query := `SELECT role FROM guild_members WHERE guild_id = $1 AND user_id = $2`
	err := r.db.GetContext(ctx, &role, query, guildID, userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return "", err
	}

	return model.GuildRole(role), nil
}
