package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyrooms-backend/internal/models"
)

// SubjectRepo reads the subjects and tasks owned by the CRUD service.
type SubjectRepo struct {
	pool *pgxpool.Pool
}

func NewSubjectRepo(pool *pgxpool.Pool) *SubjectRepo {
	return &SubjectRepo{pool: pool}
}

func (r *SubjectRepo) GetSubject(ctx context.Context, userID uuid.UUID, name string) (*models.Subject, error) {
	s := &models.Subject{}
	err := r.pool.QueryRow(ctx,
		"SELECT user_id, name, created_at FROM subjects WHERE user_id = $1 AND name = $2",
		userID, name,
	).Scan(&s.UserID, &s.Name, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubjectRepo) GetTask(ctx context.Context, userID uuid.UUID, subjectName, title string) (*models.Task, error) {
	t := &models.Task{}
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, subject_name, title, status, created_at
		FROM tasks
		WHERE user_id = $1 AND subject_name = $2 AND title = $3`,
		userID, subjectName, title,
	).Scan(&t.UserID, &t.SubjectName, &t.Title, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// StartTask promotes a "Not Started" task to "In Progress". Tasks in any
// other status are left alone.
func (r *SubjectRepo) StartTask(ctx context.Context, userID uuid.UUID, subjectName, title string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $5
		WHERE user_id = $1 AND subject_name = $2 AND title = $3 AND status = $4`,
		userID, subjectName, title, models.TaskNotStarted, models.TaskInProgress)
	return err
}
