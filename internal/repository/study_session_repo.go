package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyrooms-backend/internal/models"
)

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

const sessionColumns = `s.session_name, s.user_id, COALESCE(u.full_name, ''), s.subject_name, s.task_title,
	s.status, s.elapsed_seconds, s.created_at, s.updated_at, s.ended_at`

func scanSession(row pgx.Row, s *models.StudySession) error {
	return row.Scan(
		&s.SessionName, &s.UserID, &s.UserName, &s.SubjectName, &s.TaskTitle,
		&s.Status, &s.ElapsedSeconds, &s.CreatedAt, &s.UpdatedAt, &s.EndedAt,
	)
}

// Create writes the session row and its room link in a single statement.
func (r *StudySessionRepo) Create(ctx context.Context, s *models.StudySession, room models.RoomRef) error {
	s.Status = models.SessionActive
	s.ElapsedSeconds = 0

	return r.pool.QueryRow(ctx, `
		WITH created AS (
			INSERT INTO study_sessions (session_name, user_id, subject_name, task_title, status, elapsed_seconds, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'active', 0, $5, $5)
			RETURNING session_name, user_id, created_at, updated_at
		), linked AS (
			INSERT INTO room_sessions (room_id, community_id, user_id, session_name)
			SELECT $6, $7, user_id, session_name FROM created
		)
		SELECT created_at, updated_at FROM created`,
		s.SessionName, s.UserID, s.SubjectName, s.TaskTitle, s.CreatedAt, room.RoomID, room.CommunityID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// UpdateElapsed records progress for an open session, paused or not.
// Elapsed time never decreases. Returns false when no open session matched.
func (r *StudySessionRepo) UpdateElapsed(ctx context.Context, sessionName string, userID uuid.UUID, elapsed int) (int, bool, error) {
	var stored int
	err := r.pool.QueryRow(ctx, `
		UPDATE study_sessions
		SET elapsed_seconds = GREATEST(elapsed_seconds, $3),
			updated_at = NOW()
		WHERE session_name = $1
		  AND user_id = $2
		  AND status <> 'completed'
		RETURNING elapsed_seconds`, sessionName, userID, elapsed,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stored, true, nil
}

// Transition moves a session from one non-terminal status to another.
// Returns false when the session was not in the expected status.
func (r *StudySessionRepo) Transition(ctx context.Context, sessionName string, userID uuid.UUID, from, to models.SessionStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET status = $4, updated_at = NOW()
		WHERE session_name = $1
		  AND user_id = $2
		  AND status = $3`, sessionName, userID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// End completes a session. It returns nil without error when the session
// does not exist for the user or was already completed.
func (r *StudySessionRepo) End(ctx context.Context, sessionName string, userID uuid.UUID, elapsed int) (*models.StudySession, error) {
	s := &models.StudySession{}
	err := scanSession(r.pool.QueryRow(ctx, `
		WITH ended AS (
			UPDATE study_sessions
			SET status = 'completed',
				elapsed_seconds = GREATEST(elapsed_seconds, $3),
				ended_at = NOW(),
				updated_at = NOW()
			WHERE session_name = $1
			  AND user_id = $2
			  AND status <> 'completed'
			RETURNING *
		)
		SELECT `+sessionColumns+`
		FROM ended s
		LEFT JOIN users u ON u.id = s.user_id`, sessionName, userID, elapsed), s)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StudySessionRepo) ActiveInRoom(ctx context.Context, room models.RoomRef) ([]models.StudySession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM room_sessions rs
		JOIN study_sessions s ON s.session_name = rs.session_name
		LEFT JOIN users u ON u.id = s.user_id
		WHERE rs.room_id = $1 AND rs.community_id = $2 AND s.status = 'active'
		ORDER BY s.created_at`, room.RoomID, room.CommunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.StudySession{}
	for rows.Next() {
		var s models.StudySession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListStale returns open sessions whose last update is older than before.
func (r *StudySessionRepo) ListStale(ctx context.Context, before time.Time) ([]models.SessionRoom, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.session_name, s.user_id, rs.room_id, rs.community_id
		FROM study_sessions s
		JOIN room_sessions rs ON rs.session_name = s.session_name
		WHERE s.status <> 'completed'
		  AND s.updated_at < $1
		ORDER BY s.updated_at`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []models.SessionRoom
	for rows.Next() {
		var sr models.SessionRoom
		if err := rows.Scan(&sr.SessionName, &sr.UserID, &sr.Room.RoomID, &sr.Room.CommunityID); err != nil {
			return nil, err
		}
		stale = append(stale, sr)
	}
	return stale, rows.Err()
}
