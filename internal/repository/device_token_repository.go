package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type DeviceTokenRepository interface {
	Register(ctx context.Context, userID uuid.UUID, token string) error
	ListForUsers(ctx context.Context, userIDs []uuid.UUID) ([]string, error)
}

type postgresDeviceTokenRepository struct {
	db *sqlx.DB
}

func NewPostgresDeviceTokenRepository(db *sqlx.DB) DeviceTokenRepository {
	return &postgresDeviceTokenRepository{db: db}
}

// Register upserts on the token, so a device that changes hands follows its
// latest owner.
func (r *postgresDeviceTokenRepository) Register(ctx context.Context, userID uuid.UUID, token string) error {
	query := `
		INSERT INTO user_device_tokens (user_id, device_token)
		VALUES ($1, $2)
		ON CONFLICT (device_token) DO UPDATE SET user_id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, token)
	return err
}

func (r *postgresDeviceTokenRepository) ListForUsers(ctx context.Context, userIDs []uuid.UUID) ([]string, error) {
	tokens := []string{}
	if len(userIDs) == 0 {
		return tokens, nil
	}

	query, args, err := sqlx.In(`SELECT device_token FROM user_device_tokens WHERE user_id IN (?) ORDER BY created_at`, userIDs)
	if err != nil {
		return nil, err
	}

	err = r.db.SelectContext(ctx, &tokens, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return tokens, err
}
