package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studyrooms-backend/internal/middleware"
	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

type stubMembershipRepo struct {
	rooms    map[models.RoomRef]bool
	managers map[uuid.UUID]bool
	current  map[uuid.UUID][]models.RoomRef
	listErr  error
}

func (s *stubMembershipRepo) RoomExists(ctx context.Context, room models.RoomRef) (bool, error) {
	return s.rooms[room], nil
}

func (s *stubMembershipRepo) IsCurrentMember(ctx context.Context, userID uuid.UUID, room models.RoomRef) (bool, error) {
	for _, held := range s.current[userID] {
		if held == room {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubMembershipRepo) Acquire(ctx context.Context, m *models.RoomMembership) (*models.RoomRef, error) {
	if !s.managers[m.UserID] {
		for _, held := range s.current[m.UserID] {
			if held.CommunityID == m.CommunityID && held != m.Room() {
				ref := held
				return &ref, nil
			}
		}
	}
	m.Status = models.MembershipCurrent
	m.JoinedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, held := range s.current[m.UserID] {
		if held == m.Room() {
			return nil, nil
		}
	}
	s.current[m.UserID] = append(s.current[m.UserID], m.Room())
	return nil, nil
}

func (s *stubMembershipRepo) Release(ctx context.Context, userID uuid.UUID, room models.RoomRef) error {
	kept := s.current[userID][:0]
	for _, held := range s.current[userID] {
		if held != room {
			kept = append(kept, held)
		}
	}
	s.current[userID] = kept
	return nil
}

func (s *stubMembershipRepo) ListMembers(ctx context.Context, room models.RoomRef) ([]models.RoomMember, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.RoomMember
	for userID, rooms := range s.current {
		for _, held := range rooms {
			if held == room {
				out = append(out, models.RoomMember{UserID: userID, UserName: "member"})
			}
		}
	}
	return out, nil
}

type stubActiveSessions struct {
	sessions []models.StudySession
}

func (s *stubActiveSessions) ActiveInRoom(ctx context.Context, room models.RoomRef) ([]models.StudySession, error) {
	return s.sessions, nil
}

var (
	room101 = models.RoomRef{RoomID: 101, CommunityID: 5}
	room202 = models.RoomRef{RoomID: 202, CommunityID: 5}
)

func newRoomHandler() (*RoomHandler, *stubMembershipRepo) {
	repo := &stubMembershipRepo{
		rooms:    map[models.RoomRef]bool{room101: true, room202: true},
		managers: map[uuid.UUID]bool{},
		current:  map[uuid.UUID][]models.RoomRef{},
	}
	return NewRoomHandler(services.NewMembershipService(repo), repo, &stubActiveSessions{}), repo
}

func roomRequest(method, communityID, roomID string, userID uuid.UUID) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("communityId", communityID)
	rctx.URLParams.Add("roomId", roomID)

	req := httptest.NewRequest(method, "/api/v1/communities/"+communityID+"/rooms/"+roomID+"/membership", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	return req
}

func TestRoomHandler_AcquireMembership(t *testing.T) {
	h, repo := newRoomHandler()
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.AcquireMembership(rr, roomRequest(http.MethodPost, "5", "101", userID))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	if len(repo.current[userID]) != 1 {
		t.Fatalf("expected one current membership, got %v", repo.current[userID])
	}

	var body struct {
		Membership models.RoomMembership `json:"membership"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Membership.RoomID != 101 || body.Membership.Status != models.MembershipCurrent {
		t.Errorf("unexpected membership %+v", body.Membership)
	}
}

func TestRoomHandler_AcquireSecondRoomConflicts(t *testing.T) {
	h, repo := newRoomHandler()
	userID := uuid.New()
	repo.current[userID] = []models.RoomRef{room101}

	rr := httptest.NewRecorder()
	h.AcquireMembership(rr, roomRequest(http.MethodPost, "5", "202", userID))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}

	var body struct {
		Error    models.APIError `json:"error"`
		HeldRoom *models.RoomRef `json:"held_room"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "CONFLICT" || !strings.Contains(body.Error.Message, "101") {
		t.Errorf("expected conflict naming room 101, got %+v", body.Error)
	}
	if body.HeldRoom == nil || *body.HeldRoom != room101 {
		t.Errorf("expected held room 101, got %v", body.HeldRoom)
	}
	if len(repo.current[userID]) != 1 {
		t.Errorf("membership should not change on conflict")
	}
}

func TestRoomHandler_ManagerHoldsTwoRooms(t *testing.T) {
	h, repo := newRoomHandler()
	managerID := uuid.New()
	repo.managers[managerID] = true

	for _, roomID := range []string{"101", "202"} {
		rr := httptest.NewRecorder()
		h.AcquireMembership(rr, roomRequest(http.MethodPost, "5", roomID, managerID))
		if rr.Code != http.StatusCreated {
			t.Fatalf("room %s: expected status %d, got %d", roomID, http.StatusCreated, rr.Code)
		}
	}
	if len(repo.current[managerID]) != 2 {
		t.Errorf("expected two memberships, got %v", repo.current[managerID])
	}
}

func TestRoomHandler_BadRoomReference(t *testing.T) {
	tests := []struct {
		name        string
		communityID string
		roomID      string
		wantStatus  int
	}{
		{"non-numeric room", "5", "abc", http.StatusBadRequest},
		{"zero community", "0", "101", http.StatusBadRequest},
		{"unknown room", "5", "999", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newRoomHandler()
			rr := httptest.NewRecorder()
			h.AcquireMembership(rr, roomRequest(http.MethodPost, tc.communityID, tc.roomID, uuid.New()))
			if rr.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
		})
	}
}

func TestRoomHandler_ReleaseThenAcquireOther(t *testing.T) {
	h, repo := newRoomHandler()
	userID := uuid.New()
	repo.current[userID] = []models.RoomRef{room101}

	rr := httptest.NewRecorder()
	h.ReleaseMembership(rr, roomRequest(http.MethodDelete, "5", "101", userID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.AcquireMembership(rr, roomRequest(http.MethodPost, "5", "202", userID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d after release, got %d", http.StatusCreated, rr.Code)
	}
}

func TestRoomHandler_GetRoom(t *testing.T) {
	h, repo := newRoomHandler()
	memberID := uuid.New()
	repo.current[memberID] = []models.RoomRef{room101}

	rr := httptest.NewRecorder()
	h.GetRoom(rr, roomRequest(http.MethodGet, "5", "101", uuid.New()))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d for non-member, got %d", http.StatusForbidden, rr.Code)
	}

	rr = httptest.NewRecorder()
	h.GetRoom(rr, roomRequest(http.MethodGet, "5", "101", memberID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var body struct {
		Snapshot models.RoomSnapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Snapshot.Members) != 1 || body.Snapshot.Members[0].UserID != memberID {
		t.Errorf("unexpected members %+v", body.Snapshot.Members)
	}
}

func TestRoomHandler_GetRoomPersistenceFailure(t *testing.T) {
	h, repo := newRoomHandler()
	memberID := uuid.New()
	repo.current[memberID] = []models.RoomRef{room101}
	repo.listErr = errors.New("connection refused")

	rr := httptest.NewRecorder()
	h.GetRoom(rr, roomRequest(http.MethodGet, "5", "101", memberID))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Error("store error text should not leak to the client")
	}
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{&services.ValidationError{Message: "bad"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{&services.AuthenticationError{Message: "no"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{&services.MembershipError{Message: "no"}, http.StatusForbidden, "FORBIDDEN"},
		{&services.NotFoundError{Message: "gone"}, http.StatusNotFound, "NOT_FOUND"},
		{&services.ConflictError{Message: "held"}, http.StatusConflict, "CONFLICT"},
		{services.Persistence("op", errors.New("boom")), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-1")
		handleServiceError(rr, req, tc.err)

		if rr.Code != tc.want {
			t.Errorf("%T: expected status %d, got %d", tc.err, tc.want, rr.Code)
		}
		var body models.ErrorResponse
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Error.Code != tc.code || body.Error.RequestID != "req-1" {
			t.Errorf("%T: unexpected error body %+v", tc.err, body.Error)
		}
	}
}
