//go:build integration

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/
package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyrooms-backend/internal/database"
	"studyrooms-backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		os.Exit(0)
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, url)
	if err != nil {
		panic(err)
	}
	if err := database.RunMigrations(ctx, pool, "../../migrations"); err != nil {
		panic(err)
	}
	testPool = pool

	code := m.Run()
	pool.Close()
	os.Exit(code)
}

// seedCommunity creates a community with rooms 101 and 202 and returns its id.
func seedCommunity(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	if err := testPool.QueryRow(ctx,
		"INSERT INTO communities (name) VALUES ($1) RETURNING id", "test "+uuid.NewString(),
	).Scan(&id); err != nil {
		t.Fatalf("seed community: %v", err)
	}
	for _, room := range []int64{101, 202} {
		if _, err := testPool.Exec(ctx,
			"INSERT INTO rooms (id, community_id, name) VALUES ($1, $2, $3)", room, id, "room"); err != nil {
			t.Fatalf("seed room %d: %v", room, err)
		}
	}
	return id
}

func seedUser(t *testing.T, communityID int64, role string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	if _, err := testPool.Exec(ctx, "INSERT INTO users (id, full_name) VALUES ($1, $2)", id, "Alice"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := testPool.Exec(ctx,
		"INSERT INTO community_members (community_id, user_id, role) VALUES ($1, $2, $3)", communityID, id, role); err != nil {
		t.Fatalf("seed community member: %v", err)
	}
	return id
}

func countCurrent(t *testing.T, userID uuid.UUID, communityID int64) int {
	t.Helper()
	var n int
	if err := testPool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM room_members WHERE user_id = $1 AND community_id = $2 AND status = 'current'",
		userID, communityID).Scan(&n); err != nil {
		t.Fatalf("count memberships: %v", err)
	}
	return n
}

func TestMembershipRepo_ConcurrentAcquireKeepsOneRoom(t *testing.T) {
	community := seedCommunity(t)
	user := seedUser(t, community, "member")
	repo := NewMembershipRepo(testPool)

	rooms := []int64{101, 202, 101, 202, 101, 202}
	held := make([]*models.RoomRef, len(rooms))
	errs := make([]error, len(rooms))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, room := range rooms {
		wg.Add(1)
		go func(i int, room int64) {
			defer wg.Done()
			<-start
			held[i], errs[i] = repo.Acquire(context.Background(), &models.RoomMembership{
				RoomID: room, CommunityID: community, UserID: user,
			})
		}(i, room)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	if got := countCurrent(t, user, community); got != 1 {
		t.Fatalf("expected one current membership, got %d", got)
	}
	blocked := 0
	for _, h := range held {
		if h != nil {
			blocked++
		}
	}
	if blocked != 3 {
		t.Errorf("expected the three requests for the other room to be blocked, got %d", blocked)
	}
}

func TestMembershipRepo_ManagerAndRelease(t *testing.T) {
	community := seedCommunity(t)
	manager := seedUser(t, community, models.CommunityRoleManager)
	member := seedUser(t, community, "member")
	repo := NewMembershipRepo(testPool)
	ctx := context.Background()

	for _, room := range []int64{101, 202} {
		held, err := repo.Acquire(ctx, &models.RoomMembership{RoomID: room, CommunityID: community, UserID: manager})
		if err != nil || held != nil {
			t.Fatalf("manager acquire of %d: held=%v err=%v", room, held, err)
		}
	}
	if got := countCurrent(t, manager, community); got != 2 {
		t.Errorf("expected manager to hold two rooms, got %d", got)
	}

	room101 := models.RoomRef{RoomID: 101, CommunityID: community}
	if held, err := repo.Acquire(ctx, &models.RoomMembership{RoomID: 101, CommunityID: community, UserID: member}); err != nil || held != nil {
		t.Fatalf("member acquire: held=%v err=%v", held, err)
	}
	held, err := repo.Acquire(ctx, &models.RoomMembership{RoomID: 202, CommunityID: community, UserID: member})
	if err != nil || held == nil || *held != room101 {
		t.Fatalf("expected block naming room 101, got held=%v err=%v", held, err)
	}

	if err := repo.Release(ctx, member, room101); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := repo.IsCurrentMember(ctx, member, room101); ok {
		t.Error("expected released membership to no longer be current")
	}
	if held, err := repo.Acquire(ctx, &models.RoomMembership{RoomID: 202, CommunityID: community, UserID: member}); err != nil || held != nil {
		t.Fatalf("acquire after release: held=%v err=%v", held, err)
	}
}

func TestStudySessionRepo_Lifecycle(t *testing.T) {
	community := seedCommunity(t)
	user := seedUser(t, community, "member")
	repo := NewStudySessionRepo(testPool)
	ctx := context.Background()
	room := models.RoomRef{RoomID: 101, CommunityID: community}

	s := &models.StudySession{
		SessionName: "session_" + uuid.NewString(),
		UserID:      user,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(ctx, s, room); err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := repo.ActiveInRoom(ctx, room)
	if err != nil || len(active) != 1 || active[0].SessionName != s.SessionName {
		t.Fatalf("expected session linked to room, got %v err=%v", active, err)
	}

	if stored, ok, err := repo.UpdateElapsed(ctx, s.SessionName, user, 120); err != nil || !ok || stored != 120 {
		t.Fatalf("update 120: stored=%d ok=%v err=%v", stored, ok, err)
	}
	if stored, _, _ := repo.UpdateElapsed(ctx, s.SessionName, user, 60); stored != 120 {
		t.Errorf("expected elapsed to stay at 120, got %d", stored)
	}

	if moved, err := repo.Transition(ctx, s.SessionName, user, models.SessionActive, models.SessionPaused); err != nil || !moved {
		t.Fatalf("pause: moved=%v err=%v", moved, err)
	}
	if moved, _ := repo.Transition(ctx, s.SessionName, user, models.SessionActive, models.SessionPaused); moved {
		t.Error("expected second pause to be rejected")
	}
	if stored, ok, _ := repo.UpdateElapsed(ctx, s.SessionName, user, 200); !ok || stored != 200 {
		t.Errorf("expected update while paused to record 200, got %d ok=%v", stored, ok)
	}

	ended, err := repo.End(ctx, s.SessionName, user, 150)
	if err != nil || ended == nil {
		t.Fatalf("end: %v %v", ended, err)
	}
	if ended.Status != models.SessionCompleted || ended.ElapsedSeconds != 200 || ended.UserName != "Alice" {
		t.Errorf("unexpected ended row %+v", ended)
	}
	if again, err := repo.End(ctx, s.SessionName, user, 999); err != nil || again != nil {
		t.Errorf("expected second end to be a no-op, got %v err=%v", again, err)
	}
	if _, ok, _ := repo.UpdateElapsed(ctx, s.SessionName, user, 999); ok {
		t.Error("expected update of a completed session to match nothing")
	}
	if other, _ := repo.End(ctx, s.SessionName, uuid.New(), 0); other != nil {
		t.Error("expected end by another user to match nothing")
	}
}

func TestStudySessionRepo_ListStale(t *testing.T) {
	community := seedCommunity(t)
	user := seedUser(t, community, "member")
	repo := NewStudySessionRepo(testPool)
	ctx := context.Background()
	room := models.RoomRef{RoomID: 202, CommunityID: community}

	old := &models.StudySession{
		SessionName: "session_" + uuid.NewString(),
		UserID:      user,
		CreatedAt:   time.Now().Add(-3 * time.Hour).UTC(),
	}
	if err := repo.Create(ctx, old, room); err != nil {
		t.Fatalf("create: %v", err)
	}

	stale, err := repo.ListStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	found := false
	for _, sr := range stale {
		if sr.SessionName == old.SessionName {
			found = sr.Room == room && sr.UserID == user
		}
	}
	if !found {
		t.Errorf("expected %s in stale list with its room, got %v", old.SessionName, stale)
	}
}
