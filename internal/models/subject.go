package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TaskNotStarted = "Not Started"
	TaskInProgress = "In Progress"
)

type Subject struct {
	UserID    uuid.UUID `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Task struct {
	UserID      uuid.UUID `json:"userId"`
	SubjectName string    `json:"subjectName"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}
