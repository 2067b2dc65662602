package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"studyrooms-backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.RoomMessage) error {
	query := `INSERT INTO room_messages (room_id, community_id, user_id, content)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query, m.RoomID, m.CommunityID, m.UserID, m.Content).Scan(&m.ID, &m.CreatedAt)
}

// Recent returns up to limit messages for the room, newest first.
func (r *MessageRepo) Recent(ctx context.Context, room models.RoomRef, limit int) ([]models.RoomMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.room_id, m.community_id, m.user_id, COALESCE(u.full_name, ''), m.content, m.created_at
		FROM room_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1 AND m.community_id = $2
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3`, room.RoomID, room.CommunityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.RoomMessage
	for rows.Next() {
		var m models.RoomMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.CommunityID, &m.UserID, &m.UserName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
