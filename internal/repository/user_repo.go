package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyrooms-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := r.pool.QueryRow(ctx, "SELECT id, full_name, created_at FROM users WHERE id = $1", id).
		Scan(&user.ID, &user.FullName, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}
