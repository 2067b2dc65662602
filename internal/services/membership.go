package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"studyrooms-backend/internal/models"
)

// membershipStore.Acquire checks the single-room rule and writes in one
// atomic step. It returns the blocking room when the user already holds
// another current room in the community.
type membershipStore interface {
	RoomExists(ctx context.Context, room models.RoomRef) (bool, error)
	IsCurrentMember(ctx context.Context, userID uuid.UUID, room models.RoomRef) (bool, error)
	Acquire(ctx context.Context, m *models.RoomMembership) (*models.RoomRef, error)
	Release(ctx context.Context, userID uuid.UUID, room models.RoomRef) error
}

// MembershipService owns the durable join path. A non-manager holds at
// most one current room membership per community.
type MembershipService struct {
	repo membershipStore
}

func NewMembershipService(repo membershipStore) *MembershipService {
	return &MembershipService{repo: repo}
}

func validateRoom(room models.RoomRef) error {
	fields := make(map[string]string)
	if room.RoomID <= 0 {
		fields["roomId"] = "Room ID must be a positive integer"
	}
	if room.CommunityID <= 0 {
		fields["communityId"] = "Community ID must be a positive integer"
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "Invalid room reference", Fields: fields}
	}
	return nil
}

func (s *MembershipService) Acquire(ctx context.Context, userID uuid.UUID, room models.RoomRef) (*models.RoomMembership, error) {
	if err := validateRoom(room); err != nil {
		return nil, err
	}

	exists, err := s.repo.RoomExists(ctx, room)
	if err != nil {
		return nil, Persistence("check room", err)
	}
	if !exists {
		return nil, &NotFoundError{Message: "Room not found"}
	}

	membership := &models.RoomMembership{
		RoomID:      room.RoomID,
		CommunityID: room.CommunityID,
		UserID:      userID,
	}
	held, err := s.repo.Acquire(ctx, membership)
	if err != nil {
		return nil, Persistence("acquire membership", err)
	}
	if held != nil {
		return nil, &ConflictError{
			Message: fmt.Sprintf("You are already a member of room %d in this community. Leave it before joining another room.", held.RoomID),
			Held:    held,
		}
	}
	return membership, nil
}

// Release marks the membership former. Releasing a room the user does not
// belong to is not an error.
func (s *MembershipService) Release(ctx context.Context, userID uuid.UUID, room models.RoomRef) error {
	if err := validateRoom(room); err != nil {
		return err
	}
	return Persistence("release membership", s.repo.Release(ctx, userID, room))
}

// RequireMember fails with a MembershipError unless the user currently
// belongs to the room.
func (s *MembershipService) RequireMember(ctx context.Context, userID uuid.UUID, room models.RoomRef) error {
	if err := validateRoom(room); err != nil {
		return err
	}
	ok, err := s.repo.IsCurrentMember(ctx, userID, room)
	if err != nil {
		return Persistence("check membership", err)
	}
	if !ok {
		return &MembershipError{Message: "You are not a member of this room"}
	}
	return nil
}
