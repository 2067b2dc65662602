package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"studyrooms-backend/internal/metrics"
	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

// ErrHubStopped is returned to callers once the hub loop has exited.
var ErrHubStopped = errors.New("room hub stopped")

const shutdownTimeout = 10 * time.Second

type MembershipChecker interface {
	RequireMember(ctx context.Context, userID uuid.UUID, room models.RoomRef) error
}

type RoomStore interface {
	ListMembers(ctx context.Context, room models.RoomRef) ([]models.RoomMember, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *models.StudySession, room models.RoomRef) error
	UpdateElapsed(ctx context.Context, sessionName string, userID uuid.UUID, elapsed int) (int, bool, error)
	Transition(ctx context.Context, sessionName string, userID uuid.UUID, from, to models.SessionStatus) (bool, error)
	End(ctx context.Context, sessionName string, userID uuid.UUID, elapsed int) (*models.StudySession, error)
	ActiveInRoom(ctx context.Context, room models.RoomRef) ([]models.StudySession, error)
	ListStale(ctx context.Context, before time.Time) ([]models.SessionRoom, error)
}

type SubjectStore interface {
	GetSubject(ctx context.Context, userID uuid.UUID, name string) (*models.Subject, error)
	GetTask(ctx context.Context, userID uuid.UUID, subjectName, title string) (*models.Task, error)
	StartTask(ctx context.Context, userID uuid.UUID, subjectName, title string) error
}

type MessageStore interface {
	Insert(ctx context.Context, m *models.RoomMessage) error
	Recent(ctx context.Context, room models.RoomRef, limit int) ([]models.RoomMessage, error)
}

// Stores are the durable collaborators of the hub.
type Stores struct {
	Membership MembershipChecker
	Rooms      RoomStore
	Sessions   SessionStore
	Subjects   SubjectStore
	Messages   MessageStore
}

type Options struct {
	AllowedOrigin   string
	SendBuffer      int
	MaxMessageBytes int64
	EventsPerSecond float64
	HistoryDefault  int
	HistoryMax      int
	Now             func() time.Time
}

type inbound struct {
	conn  *Conn
	event inboundEvent
}

type reapResult struct {
	reaped int
	err    error
}

type reapRequest struct {
	before time.Time
	result chan reapResult
}

type handlerFunc func(ctx context.Context, c *Conn, ev inboundEvent) error

func handle[T inboundEvent](fn func(context.Context, *Conn, T) error) handlerFunc {
	return func(ctx context.Context, c *Conn, ev inboundEvent) error {
		typed, ok := ev.(T)
		if !ok {
			return &services.ValidationError{Message: "Unexpected payload for " + ev.eventName()}
		}
		return fn(ctx, c, typed)
	}
}

// Hub runs the coordination loop. Connection state, the presence registry
// and every handler are only touched from the goroutine running Run.
type Hub struct {
	gate        *Gate
	stores      Stores
	presence    *Presence
	broadcaster *Broadcaster
	opts        Options
	upgrader    websocket.Upgrader
	handlers    map[string]handlerFunc

	conns      map[*Conn]struct{}
	register   chan *Conn
	unregister chan *Conn
	inbound    chan inbound
	reap       chan reapRequest
	quit       chan struct{}
}

func NewHub(gate *Gate, stores Stores, mirror Mirror, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.HistoryDefault <= 0 {
		opts.HistoryDefault = 50
	}
	if opts.HistoryMax < opts.HistoryDefault {
		opts.HistoryMax = opts.HistoryDefault
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	presence := NewPresence()
	h := &Hub{
		gate:        gate,
		stores:      stores,
		presence:    presence,
		broadcaster: NewBroadcaster(presence, mirror),
		opts:        opts,
		conns:       make(map[*Conn]struct{}),
		register:    make(chan *Conn),
		unregister:  make(chan *Conn),
		inbound:     make(chan inbound),
		reap:        make(chan reapRequest),
		quit:        make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	h.handlers = map[string]handlerFunc{
		EventJoinRoom:      handle(h.handleJoin),
		EventLeaveRoom:     handle(h.handleLeave),
		EventStartSession:  handle(h.handleStart),
		EventUpdateSession: handle(h.handleUpdate),
		EventPauseSession:  handle(h.handlePause),
		EventResumeSession: handle(h.handleResume),
		EventEndSession:    handle(h.handleEnd),
		EventSendMessage:   handle(h.handleSend),
		EventGetMessages:   handle(h.handleHistory),
		EventPing:          handle(h.handlePing),
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	return origin == h.opts.AllowedOrigin
}

// Run processes one event at a time until ctx is cancelled. On exit every
// connection is disconnected so tracked sessions are completed.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("Room hub started")
	defer close(h.quit)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			log.Info().Msg("Room hub stopped")
			return
		case c := <-h.register:
			h.attach(c)
		case c := <-h.unregister:
			h.disconnect(ctx, c)
		case msg := <-h.inbound:
			if _, ok := h.conns[msg.conn]; ok {
				h.dispatch(ctx, msg.conn, msg.event)
			}
		case req := <-h.reap:
			n, err := h.reapStale(ctx, req.before)
			req.result <- reapResult{reaped: n, err: err}
		}
	}
}

// ReapStale asks the loop to complete stale untracked sessions.
func (h *Hub) ReapStale(ctx context.Context, before time.Time) (int, error) {
	req := reapRequest{before: before, result: make(chan reapResult, 1)}
	select {
	case h.reap <- req:
	case <-h.quit:
		return 0, ErrHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.reaped, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.gate.Authenticate(r)
	if err != nil {
		var authErr *services.AuthenticationError
		if errors.As(err, &authErr) {
			log.Debug().Str("reason", authErr.Message).Str("remote_addr", r.RemoteAddr).Msg("Websocket connection refused")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("Websocket authentication failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := newConn(identity, ws, h.opts.SendBuffer, h.opts.EventsPerSecond)
	c.maxBytes = h.opts.MaxMessageBytes

	select {
	case h.register <- c:
	case <-h.quit:
		_ = ws.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

func (h *Hub) attach(c *Conn) {
	h.conns[c] = struct{}{}
	metrics.WSConnections.Inc()
	log.Info().
		Str("conn_id", c.id.String()).
		Str("user_id", c.identity.UserID.String()).
		Int("connections", len(h.conns)).
		Msg("WebSocket connected")
}

// disconnect completes any tracked session before announcing the departure.
func (h *Hub) disconnect(ctx context.Context, c *Conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}

	if c.session != nil {
		if err := h.completeTracked(ctx, c, true, causeDisconnect); err != nil {
			h.logFailure(c, "disconnect", err)
		}
	}
	if c.room != nil {
		room := *c.room
		h.presence.Remove(room, c)
		c.room = nil
		h.broadcaster.EmitToRoom(room, EventUserLeft, UserPresence{UserID: c.identity.UserID, UserName: c.identity.UserName}, c)
	}

	delete(h.conns, c)
	metrics.WSConnections.Dec()
	c.close()

	log.Info().
		Str("conn_id", c.id.String()).
		Str("user_id", c.identity.UserID.String()).
		Msg("WebSocket disconnected")
}

func (h *Hub) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for c := range h.conns {
		h.disconnect(ctx, c)
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Conn, ev inboundEvent) {
	name := ev.eventName()
	handler, ok := h.handlers[name]
	if !ok {
		h.fail(c, name, &services.ValidationError{Message: "Unknown event type"})
		return
	}

	metrics.EventsReceived.WithLabelValues(name).Inc()
	if err := handler(ctx, c, ev); err != nil {
		h.fail(c, name, err)
	}
}

func (h *Hub) handlePing(_ context.Context, c *Conn, _ *Ping) error {
	c.sendEvent(EventPong, struct{}{})
	return nil
}

// fail logs err and reports it to the originating connection only.
func (h *Hub) fail(c *Conn, event string, err error) {
	h.logFailure(c, event, err)
	metrics.EventErrors.WithLabelValues(event, errorKind(err)).Inc()
	c.sendEvent(EventError, ErrorPayload{Message: services.PublicMessage(err)})
}

func (h *Hub) logFailure(c *Conn, event string, err error) {
	entry := log.Warn()
	var persistErr *services.PersistenceError
	if errors.As(err, &persistErr) {
		entry = log.Error()
	}
	entry = entry.Err(err).
		Str("event", event).
		Str("user_id", c.identity.UserID.String())
	if c.room != nil {
		entry = entry.Int64("room_id", c.room.RoomID).Int64("community_id", c.room.CommunityID)
	}
	entry.Msg("Room event failed")
}

func errorKind(err error) string {
	var (
		membershipErr *services.MembershipError
		validationErr *services.ValidationError
		conflictErr   *services.ConflictError
		notFoundErr   *services.NotFoundError
		persistErr    *services.PersistenceError
	)
	switch {
	case errors.As(err, &membershipErr):
		return "membership"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &persistErr):
		return "persistence"
	default:
		return "internal"
	}
}
