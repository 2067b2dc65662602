package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyrooms-backend/internal/models"
)

type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) RoomExists(ctx context.Context, room models.RoomRef) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1 AND community_id = $2)",
		room.RoomID, room.CommunityID,
	).Scan(&exists)
	return exists, err
}

func (r *MembershipRepo) IsCurrentMember(ctx context.Context, userID uuid.UUID, room models.RoomRef) (bool, error) {
	var member bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM room_members
			WHERE room_id = $1 AND community_id = $2 AND user_id = $3 AND status = 'current'
		)`, room.RoomID, room.CommunityID, userID,
	).Scan(&member)
	return member, err
}

// Acquire makes m current unless the user already holds another current
// room in the community and is not one of its managers. In that case
// nothing is written and the held room is returned. Calls for the same
// user and community are serialized, so the rule holds under concurrency.
func (r *MembershipRepo) Acquire(ctx context.Context, m *models.RoomMembership) (*models.RoomRef, error) {
	var (
		joinedAt *time.Time
		heldRoom *int64
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		lockKey := fmt.Sprintf("room_members:%s:%d", m.UserID, m.CommunityID)
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", lockKey); err != nil {
			return err
		}
		return tx.QueryRow(ctx, acquireMembershipSQL,
			m.RoomID, m.CommunityID, m.UserID, models.MembershipCurrent, models.CommunityRoleManager,
		).Scan(&joinedAt, &heldRoom)
	})
	if err != nil {
		return nil, err
	}
	if heldRoom != nil {
		return &models.RoomRef{RoomID: *heldRoom, CommunityID: m.CommunityID}, nil
	}
	if joinedAt == nil {
		return nil, errors.New("membership upsert returned no row")
	}
	m.Status = models.MembershipCurrent
	m.JoinedAt = *joinedAt
	return nil, nil
}

const acquireMembershipSQL = `
	WITH blocking AS (
		SELECT rm.room_id
		FROM room_members rm
		WHERE rm.user_id = $3::uuid
		  AND rm.community_id = $2::bigint
		  AND rm.status = $4::text
		  AND rm.room_id <> $1::bigint
		  AND NOT EXISTS (
			SELECT 1 FROM community_members cm
			WHERE cm.community_id = $2::bigint AND cm.user_id = $3::uuid AND cm.role = $5::text
		  )
		ORDER BY rm.joined_at
		LIMIT 1
	), upserted AS (
		INSERT INTO room_members (room_id, community_id, user_id, status)
		SELECT $1::bigint, $2::bigint, $3::uuid, $4::text
		WHERE NOT EXISTS (SELECT 1 FROM blocking)
		ON CONFLICT (room_id, community_id, user_id)
		DO UPDATE SET status = EXCLUDED.status,
			joined_at = CASE WHEN room_members.status = EXCLUDED.status THEN room_members.joined_at ELSE NOW() END
		RETURNING joined_at
	)
	SELECT (SELECT joined_at FROM upserted), (SELECT room_id FROM blocking)`

// Release marks the membership former. Releasing a room the user does not
// currently hold changes nothing.
func (r *MembershipRepo) Release(ctx context.Context, userID uuid.UUID, room models.RoomRef) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE room_members SET status = $4
		WHERE room_id = $1 AND community_id = $2 AND user_id = $3 AND status = $5`,
		room.RoomID, room.CommunityID, userID, models.MembershipFormer, models.MembershipCurrent)
	return err
}

func (r *MembershipRepo) ListMembers(ctx context.Context, room models.RoomRef) ([]models.RoomMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rm.user_id, COALESCE(u.full_name, ''), rm.joined_at
		FROM room_members rm
		LEFT JOIN users u ON u.id = rm.user_id
		WHERE rm.room_id = $1 AND rm.community_id = $2 AND rm.status = 'current'
		ORDER BY rm.joined_at`, room.RoomID, room.CommunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.RoomMember{}
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.UserID, &m.UserName, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
