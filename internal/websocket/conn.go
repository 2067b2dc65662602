package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"studyrooms-backend/internal/metrics"
	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// trackedSession is the session a connection may drive. Its room is the
// room the session was started in.
type trackedSession struct {
	name   string
	room   models.RoomRef
	status models.SessionStatus
}

// Conn is one authenticated live connection. The send channel is never
// closed; done signals the write pump to stop.
type Conn struct {
	id       uuid.UUID
	identity models.Identity
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	limiter  *rate.Limiter
	maxBytes int64

	// Owned by the hub loop.
	room    *models.RoomRef
	session *trackedSession
}

func newConn(identity models.Identity, ws *websocket.Conn, buffer int, eventsPerSecond float64) *Conn {
	if buffer <= 0 {
		buffer = 256
	}
	limit, burst := rate.Inf, 1
	if eventsPerSecond > 0 {
		limit = rate.Limit(eventsPerSecond)
		burst = int(eventsPerSecond * 2)
		if burst < 1 {
			burst = 1
		}
	}
	return &Conn{
		id:       uuid.New(),
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(limit, burst),
	}
}

func (c *Conn) tracks(sessionName string) bool {
	return c.session != nil && c.session.name == sessionName
}

func (c *Conn) subscribedTo(room models.RoomRef) bool {
	return c.room != nil && *c.room == room
}

// enqueue hands a frame to the write pump without blocking. Frames are
// dropped when the buffer is full or the connection is closing.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		metrics.BroadcastsDropped.Inc()
		log.Warn().
			Str("conn_id", c.id.String()).
			Str("user_id", c.identity.UserID.String()).
			Msg("Send buffer full, dropping frame")
		return false
	}
}

func (c *Conn) sendEvent(eventType string, data interface{}) {
	frame, err := encodeOutbound(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to encode event")
		return
	}
	c.enqueue(frame)
}

// close signals the write pump, which flushes what is queued and then
// closes the socket.
func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump decodes inbound frames and forwards them to the hub loop.
func (c *Conn) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.quit:
		}
		c.close()
	}()

	if c.maxBytes > 0 {
		c.ws.SetReadLimit(c.maxBytes)
	}
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", c.identity.UserID.String()).Msg("Unexpected websocket close")
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.EventsRateLimited.Inc()
			c.sendEvent(EventError, ErrorPayload{Message: "Too many events, slow down"})
			continue
		}

		ev, err := decodeInbound(data)
		if err != nil {
			c.sendEvent(EventError, ErrorPayload{Message: services.PublicMessage(err)})
			continue
		}

		select {
		case h.inbound <- inbound{conn: c, event: ev}:
		case <-h.quit:
			return
		case <-c.done:
			return
		}
	}
}

// writePump drains the send buffer onto the socket and keeps it alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.writeFrame(frame); err != nil {
				return
			}

		case <-c.done:
			for _, frame := range c.pending() {
				if err := c.writeFrame(frame); err != nil {
					return
				}
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeFrame(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Debug().Err(err).Str("user_id", c.identity.UserID.String()).Msg("Websocket write failed")
		return err
	}
	return nil
}

// pending takes whatever is still buffered without waiting for more.
func (c *Conn) pending() [][]byte {
	var frames [][]byte
	for {
		select {
		case frame := <-c.send:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}
