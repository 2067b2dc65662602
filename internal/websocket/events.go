package websocket

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

// Inbound event names.
const (
	EventJoinRoom      = "join_room"
	EventLeaveRoom     = "leave_room"
	EventStartSession  = "start_session"
	EventUpdateSession = "update_session"
	EventPauseSession  = "pause_session"
	EventResumeSession = "resume_session"
	EventEndSession    = "end_session"
	EventSendMessage   = "send_message"
	EventGetMessages   = "get_messages"
	EventPing          = "ping"
)

// Outbound event names.
const (
	EventRoomState      = "room_state"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventSessionStarted = "session_started"
	EventSessionUpdated = "session_updated"
	EventSessionPaused  = "session_paused"
	EventSessionResumed = "session_resumed"
	EventSessionEnded   = "session_ended"
	EventNewMessage     = "new_message"
	EventMessageHistory = "message_history"
	EventError          = "error"
	EventPong           = "pong"
)

// envelope is the wire frame in both directions: {"type": ..., "data": ...}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// inboundEvent is implemented by every inbound payload type. The set is
// closed: decodeInbound only produces the types registered in inboundTypes.
type inboundEvent interface {
	eventName() string
}

type RoomTarget struct {
	RoomID      int64 `json:"roomId" validate:"required,gt=0"`
	CommunityID int64 `json:"communityId" validate:"required,gt=0"`
}

func (t RoomTarget) ref() models.RoomRef {
	return models.RoomRef{RoomID: t.RoomID, CommunityID: t.CommunityID}
}

type JoinRoom struct {
	RoomTarget
}

type LeaveRoom struct {
	RoomTarget
}

type StartSession struct {
	RoomTarget
	SubjectName *string `json:"subjectName" validate:"omitempty,max=200"`
	TaskTitle   *string `json:"taskTitle" validate:"omitempty,max=200"`
}

type UpdateSession struct {
	SessionName string `json:"sessionName" validate:"required,max=200"`
	ElapsedTime int    `json:"elapsedTime" validate:"gte=0,max=2147483647"`
}

type PauseSession struct {
	SessionName string `json:"sessionName" validate:"required,max=200"`
}

type ResumeSession struct {
	SessionName string `json:"sessionName" validate:"required,max=200"`
}

type EndSession struct {
	SessionName string `json:"sessionName" validate:"required,max=200"`
	ElapsedTime int    `json:"elapsedTime" validate:"gte=0,max=2147483647"`
}

type SendMessage struct {
	RoomTarget
	Content string `json:"content" validate:"max=2000"`
}

type GetMessages struct {
	RoomTarget
	Limit int `json:"limit"`
}

type Ping struct{}

func (*JoinRoom) eventName() string      { return EventJoinRoom }
func (*LeaveRoom) eventName() string     { return EventLeaveRoom }
func (*StartSession) eventName() string  { return EventStartSession }
func (*UpdateSession) eventName() string { return EventUpdateSession }
func (*PauseSession) eventName() string  { return EventPauseSession }
func (*ResumeSession) eventName() string { return EventResumeSession }
func (*EndSession) eventName() string    { return EventEndSession }
func (*SendMessage) eventName() string   { return EventSendMessage }
func (*GetMessages) eventName() string   { return EventGetMessages }
func (*Ping) eventName() string          { return EventPing }

var inboundTypes = map[string]func() inboundEvent{
	EventJoinRoom:      func() inboundEvent { return &JoinRoom{} },
	EventLeaveRoom:     func() inboundEvent { return &LeaveRoom{} },
	EventStartSession:  func() inboundEvent { return &StartSession{} },
	EventUpdateSession: func() inboundEvent { return &UpdateSession{} },
	EventPauseSession:  func() inboundEvent { return &PauseSession{} },
	EventResumeSession: func() inboundEvent { return &ResumeSession{} },
	EventEndSession:    func() inboundEvent { return &EndSession{} },
	EventSendMessage:   func() inboundEvent { return &SendMessage{} },
	EventGetMessages:   func() inboundEvent { return &GetMessages{} },
	EventPing:          func() inboundEvent { return &Ping{} },
}

// Outbound payloads.

type RoomState struct {
	RoomID         int64                 `json:"roomId"`
	CommunityID    int64                 `json:"communityId"`
	Members        []models.RoomMember   `json:"members"`
	ActiveSessions []models.StudySession `json:"activeSessions"`
}

type UserPresence struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
}

type SessionStarted struct {
	SessionName string               `json:"sessionName"`
	UserID      uuid.UUID            `json:"userId"`
	UserName    string               `json:"userName"`
	SubjectName *string              `json:"subjectName"`
	TaskTitle   *string              `json:"taskTitle"`
	ElapsedTime int                  `json:"elapsedTime"`
	Status      models.SessionStatus `json:"status"`
}

type SessionUpdated struct {
	SessionName string    `json:"sessionName"`
	UserID      uuid.UUID `json:"userId"`
	ElapsedTime int       `json:"elapsedTime"`
}

type SessionStatusChanged struct {
	SessionName string    `json:"sessionName"`
	UserID      uuid.UUID `json:"userId"`
}

type SessionEnded struct {
	SessionName  string    `json:"sessionName"`
	UserID       uuid.UUID `json:"userId"`
	UserName     string    `json:"userName"`
	ElapsedTime  int       `json:"elapsedTime"`
	Disconnected bool      `json:"disconnected"`
}

type NewMessage struct {
	MessageID int64     `json:"messageId"`
	UserID    uuid.UUID `json:"userId"`
	UserName  string    `json:"userName"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessagePayload(m models.RoomMessage) NewMessage {
	return NewMessage{
		MessageID: m.ID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// decodeInbound parses a frame into its typed event and validates it.
// All failures are *services.ValidationError.
func decodeInbound(data []byte) (inboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &services.ValidationError{Message: "Malformed message"}
	}

	factory, ok := inboundTypes[env.Type]
	if !ok {
		return nil, &services.ValidationError{Message: "Unknown event type"}
	}

	ev := factory()
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, &services.ValidationError{Message: "Invalid payload for " + env.Type}
		}
	}

	if err := payloadValidator().Struct(ev); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, &services.ValidationError{Message: "Invalid payload for " + env.Type}
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return nil, &services.ValidationError{Message: "Invalid payload for " + env.Type, Fields: fields}
	}

	return ev, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

func encodeOutbound(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Type: eventType, Data: data})
}
