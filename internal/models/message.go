package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomMessage is immutable once inserted.
type RoomMessage struct {
	ID          int64     `json:"messageId"`
	RoomID      int64     `json:"roomId"`
	CommunityID int64     `json:"communityId"`
	UserID      uuid.UUID `json:"userId"`
	UserName    string    `json:"userName"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}
