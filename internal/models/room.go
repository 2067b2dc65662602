package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MembershipCurrent = "current"
	MembershipFormer  = "former"

	CommunityRoleManager = "manager"
)

// RoomRef identifies a room. Room ids are only unique within a community.
type RoomRef struct {
	RoomID      int64 `json:"roomId"`
	CommunityID int64 `json:"communityId"`
}

func (r RoomRef) String() string {
	return fmt.Sprintf("%d/%d", r.CommunityID, r.RoomID)
}

// RoomMembership is the durable "belongs to this room" row.
type RoomMembership struct {
	RoomID      int64     `json:"roomId"`
	CommunityID int64     `json:"communityId"`
	UserID      uuid.UUID `json:"userId"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func (m *RoomMembership) Room() RoomRef {
	return RoomRef{RoomID: m.RoomID, CommunityID: m.CommunityID}
}

// RoomMember is a current member as shown in a room snapshot.
type RoomMember struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}

type RoomSnapshot struct {
	Members        []RoomMember   `json:"members"`
	ActiveSessions []StudySession `json:"activeSessions"`
}
