package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is what the connection gate binds to a live connection.
type Identity struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
}
