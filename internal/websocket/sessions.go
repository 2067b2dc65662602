package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"studyrooms-backend/internal/metrics"
	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

const (
	causeExplicit   = "explicit"
	causeLeft       = "left"
	causeDisconnect = "disconnect"
	causeReaped     = "reaped"
)

func sessionName(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("session_%s_%d", userID, now.UnixNano())
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (h *Hub) handleStart(ctx context.Context, c *Conn, ev *StartSession) error {
	room := ev.ref()
	uid := c.identity.UserID

	if !c.subscribedTo(room) {
		return &services.MembershipError{Message: "Join the room before starting a session"}
	}
	if c.session != nil {
		return &services.ValidationError{Message: "You already have a session in progress"}
	}

	subject := trimOptional(ev.SubjectName)
	task := trimOptional(ev.TaskTitle)
	if task != nil && subject == nil {
		return &services.ValidationError{
			Message: "A task requires a subject",
			Fields:  map[string]string{"taskTitle": "requires subjectName"},
		}
	}

	if subject != nil {
		if _, err := h.stores.Subjects.GetSubject(ctx, uid, *subject); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &services.ValidationError{
					Message: "Subject not found",
					Fields:  map[string]string{"subjectName": "not found"},
				}
			}
			return services.Persistence("look up subject", err)
		}
	}

	if task != nil {
		t, err := h.stores.Subjects.GetTask(ctx, uid, *subject, *task)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &services.ValidationError{
					Message: "Task not found",
					Fields:  map[string]string{"taskTitle": "not found"},
				}
			}
			return services.Persistence("look up task", err)
		}
		// Promotion is not coupled to the session insert below.
		if t.Status == models.TaskNotStarted {
			if err := h.stores.Subjects.StartTask(ctx, uid, *subject, *task); err != nil {
				h.fail(c, EventStartSession, services.Persistence("start task", err))
			}
		}
	}

	now := h.opts.Now()
	session := &models.StudySession{
		SessionName: sessionName(uid, now),
		UserID:      uid,
		UserName:    c.identity.UserName,
		SubjectName: subject,
		TaskTitle:   task,
		CreatedAt:   now,
	}
	if err := h.stores.Sessions.Create(ctx, session, room); err != nil {
		return services.Persistence("create session", err)
	}
	c.session = &trackedSession{name: session.SessionName, room: room, status: models.SessionActive}

	h.broadcaster.EmitToRoom(room, EventSessionStarted, SessionStarted{
		SessionName: session.SessionName,
		UserID:      uid,
		UserName:    c.identity.UserName,
		SubjectName: subject,
		TaskTitle:   task,
		ElapsedTime: 0,
		Status:      models.SessionActive,
	}, nil)

	log.Info().
		Str("user_id", uid.String()).
		Str("session", session.SessionName).
		Str("room", room.String()).
		Msg("Study session started")
	return nil
}

func (h *Hub) handleUpdate(ctx context.Context, c *Conn, ev *UpdateSession) error {
	if !c.tracks(ev.SessionName) {
		return nil
	}

	stored, ok, err := h.stores.Sessions.UpdateElapsed(ctx, ev.SessionName, c.identity.UserID, ev.ElapsedTime)
	if err != nil {
		return services.Persistence("update session", err)
	}
	if !ok {
		return nil
	}

	h.broadcaster.EmitToRoom(c.session.room, EventSessionUpdated, SessionUpdated{
		SessionName: ev.SessionName,
		UserID:      c.identity.UserID,
		ElapsedTime: stored,
	}, nil)
	return nil
}

func (h *Hub) handlePause(ctx context.Context, c *Conn, ev *PauseSession) error {
	return h.transition(ctx, c, ev.SessionName, models.SessionActive, models.SessionPaused, EventSessionPaused)
}

func (h *Hub) handleResume(ctx context.Context, c *Conn, ev *ResumeSession) error {
	return h.transition(ctx, c, ev.SessionName, models.SessionPaused, models.SessionActive, EventSessionResumed)
}

func (h *Hub) transition(ctx context.Context, c *Conn, name string, from, to models.SessionStatus, eventType string) error {
	if !c.tracks(name) || c.session.status != from || !from.CanTransition(to) {
		return nil
	}

	moved, err := h.stores.Sessions.Transition(ctx, name, c.identity.UserID, from, to)
	if err != nil {
		return services.Persistence("change session status", err)
	}
	if !moved {
		return nil
	}
	c.session.status = to

	h.broadcaster.EmitToRoom(c.session.room, eventType, SessionStatusChanged{
		SessionName: name,
		UserID:      c.identity.UserID,
	}, nil)
	return nil
}

// handleEnd completes the tracked session. Ending a session that is not
// tracked, or was already completed, emits nothing.
func (h *Hub) handleEnd(ctx context.Context, c *Conn, ev *EndSession) error {
	if !c.tracks(ev.SessionName) || !c.session.status.CanTransition(models.SessionCompleted) {
		return nil
	}

	room := c.session.room
	ended, err := h.stores.Sessions.End(ctx, ev.SessionName, c.identity.UserID, ev.ElapsedTime)
	if err != nil {
		return services.Persistence("end session", err)
	}
	c.session = nil
	if ended == nil {
		return nil
	}

	metrics.SessionsEnded.WithLabelValues(causeExplicit).Inc()
	h.emitEnded(room, ended, c.identity.UserName, false)
	return nil
}

// completeTracked force-completes the connection's session. The tracking
// reference is cleared even when the write fails; the reaper picks up
// whatever is left open.
func (h *Hub) completeTracked(ctx context.Context, c *Conn, disconnected bool, cause string) error {
	tracked := c.session
	c.session = nil

	ended, err := h.stores.Sessions.End(ctx, tracked.name, c.identity.UserID, 0)
	if err != nil {
		return services.Persistence("complete session", err)
	}
	if ended == nil {
		return nil
	}

	metrics.SessionsEnded.WithLabelValues(cause).Inc()
	h.emitEnded(tracked.room, ended, c.identity.UserName, disconnected)
	return nil
}

func (h *Hub) emitEnded(room models.RoomRef, s *models.StudySession, userName string, disconnected bool) {
	if userName == "" {
		userName = s.UserName
	}
	h.broadcaster.EmitToRoom(room, EventSessionEnded, SessionEnded{
		SessionName:  s.SessionName,
		UserID:       s.UserID,
		UserName:     userName,
		ElapsedTime:  s.ElapsedSeconds,
		Disconnected: disconnected,
	}, nil)
}

// reapStale completes open sessions idle since before that no connection
// of this process is tracking. It runs on the hub loop.
func (h *Hub) reapStale(ctx context.Context, before time.Time) (int, error) {
	stale, err := h.stores.Sessions.ListStale(ctx, before)
	if err != nil {
		return 0, services.Persistence("list stale sessions", err)
	}

	tracked := make(map[string]struct{})
	for c := range h.conns {
		if c.session != nil {
			tracked[c.session.name] = struct{}{}
		}
	}

	reaped := 0
	for _, sr := range stale {
		if _, live := tracked[sr.SessionName]; live {
			continue
		}
		ended, err := h.stores.Sessions.End(ctx, sr.SessionName, sr.UserID, 0)
		if err != nil {
			log.Error().Err(err).Str("session", sr.SessionName).Msg("Failed to reap session")
			continue
		}
		if ended == nil {
			continue
		}
		reaped++
		metrics.SessionsEnded.WithLabelValues(causeReaped).Inc()
		h.emitEnded(sr.Room, ended, "", true)
	}
	return reaped, nil
}
