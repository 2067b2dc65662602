package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"studyrooms-backend/internal/middleware"
	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

type membershipService interface {
	Acquire(ctx context.Context, userID uuid.UUID, room models.RoomRef) (*models.RoomMembership, error)
	Release(ctx context.Context, userID uuid.UUID, room models.RoomRef) error
	RequireMember(ctx context.Context, userID uuid.UUID, room models.RoomRef) error
}

type roomSnapshotReader interface {
	ListMembers(ctx context.Context, room models.RoomRef) ([]models.RoomMember, error)
}

type activeSessionReader interface {
	ActiveInRoom(ctx context.Context, room models.RoomRef) ([]models.StudySession, error)
}

// RoomHandler serves the durable join path and room snapshots.
type RoomHandler struct {
	memberships membershipService
	rooms       roomSnapshotReader
	sessions    activeSessionReader
}

func NewRoomHandler(memberships membershipService, rooms roomSnapshotReader, sessions activeSessionReader) *RoomHandler {
	return &RoomHandler{memberships: memberships, rooms: rooms, sessions: sessions}
}

func roomFromURL(r *http.Request) (models.RoomRef, error) {
	fields := make(map[string]string)

	communityID, err := strconv.ParseInt(chi.URLParam(r, "communityId"), 10, 64)
	if err != nil || communityID <= 0 {
		fields["communityId"] = "Community ID must be a positive integer"
	}
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomId"), 10, 64)
	if err != nil || roomID <= 0 {
		fields["roomId"] = "Room ID must be a positive integer"
	}

	if len(fields) > 0 {
		return models.RoomRef{}, &services.ValidationError{Message: "Invalid room reference", Fields: fields}
	}
	return models.RoomRef{RoomID: roomID, CommunityID: communityID}, nil
}

func (h *RoomHandler) AcquireMembership(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	room, err := roomFromURL(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	membership, err := h.memberships.Acquire(r.Context(), userID, room)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID.String()).
		Int64("room_id", room.RoomID).
		Int64("community_id", room.CommunityID).
		Msg("Room membership acquired")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"membership": membership,
	})
}

func (h *RoomHandler) ReleaseMembership(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	room, err := roomFromURL(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.memberships.Release(r.Context(), userID, room); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Membership released"})
}

// GetRoom returns the current members and active sessions. Members only.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	room, err := roomFromURL(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.memberships.RequireMember(r.Context(), userID, room); err != nil {
		handleServiceError(w, r, err)
		return
	}

	members, err := h.rooms.ListMembers(r.Context(), room)
	if err != nil {
		handleServiceError(w, r, services.Persistence("list room members", err))
		return
	}
	active, err := h.sessions.ActiveInRoom(r.Context(), room)
	if err != nil {
		handleServiceError(w, r, services.Persistence("list active sessions", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":      room.RoomID,
		"community_id": room.CommunityID,
		"snapshot":     models.RoomSnapshot{Members: members, ActiveSessions: active},
	})
}
