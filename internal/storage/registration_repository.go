package storage

import (
	"context"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/jackc/pgx/v5"
)

// RegistrationRepository handles player registrations per community
type RegistrationRepository struct {
	db *PostgresDB
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db *PostgresDB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Upsert registers or re-links a community member's player ID
func (r *RegistrationRepository) Upsert(ctx context.Context, reg *models.PlayerRegistration) error {
	query := `
		INSERT INTO player_registrations (community_id, discord_user_id, player_id, channel_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (community_id, discord_user_id)
		DO UPDATE SET player_id = EXCLUDED.player_id, channel_id = EXCLUDED.channel_id
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		reg.CommunityID,
		reg.DiscordUserID,
		reg.PlayerID,
		reg.ChannelID,
	).Scan(&reg.CreatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("upsert registration", err)
	}
	return nil
}

// Delete removes a registration
func (r *RegistrationRepository) Delete(ctx context.Context, communityID, discordUserID string) error {
	query := `DELETE FROM player_registrations WHERE community_id = $1 AND discord_user_id = $2`

	result, err := r.db.Pool().Exec(ctx, query, communityID, discordUserID)
	if err != nil {
		return apperrors.NewDatabaseError("delete registration", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("registration", discordUserID)
	}
	return nil
}

// ListByCommunity returns all registrations of a community ordered by player ID
func (r *RegistrationRepository) ListByCommunity(ctx context.Context, communityID string) ([]*models.PlayerRegistration, error) {
	query := `
		SELECT community_id, discord_user_id, player_id, channel_id, created_at
		FROM player_registrations
		WHERE community_id = $1
		ORDER BY player_id, discord_user_id
	`

	rows, err := r.db.Pool().Query(ctx, query, communityID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list registrations", err)
	}

	regs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[models.PlayerRegistration])
	if err != nil {
		return nil, apperrors.NewDatabaseError("list registrations", err)
	}
	return regs, nil
}
