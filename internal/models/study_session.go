package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// CanTransition reports whether a session may move from s to next.
// completed is terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionActive:
		return next == SessionPaused || next == SessionCompleted
	case SessionPaused:
		return next == SessionActive || next == SessionCompleted
	default:
		return false
	}
}

type StudySession struct {
	SessionName    string        `json:"sessionName"`
	UserID         uuid.UUID     `json:"userId"`
	UserName       string        `json:"userName,omitempty"`
	SubjectName    *string       `json:"subjectName"`
	TaskTitle      *string       `json:"taskTitle"`
	Status         SessionStatus `json:"status"`
	ElapsedSeconds int           `json:"elapsedTime"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
}

// SessionRoom links a session to the room it was started in.
type SessionRoom struct {
	SessionName string
	UserID      uuid.UUID
	Room        RoomRef
}
