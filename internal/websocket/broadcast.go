package websocket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"studyrooms-backend/internal/metrics"
	"studyrooms-backend/internal/models"
)

// Mirror receives a copy of every frame emitted to a room.
type Mirror interface {
	Publish(room models.RoomRef, frame []byte)
}

// Broadcaster fans events out to the subscribers of a room channel. A
// frame is encoded once per emit and delivered in emit order.
type Broadcaster struct {
	presence *Presence
	mirror   Mirror
}

func NewBroadcaster(presence *Presence, mirror Mirror) *Broadcaster {
	return &Broadcaster{presence: presence, mirror: mirror}
}

// EmitToRoom delivers the event to every subscriber of room except exclude,
// which may be nil.
func (b *Broadcaster) EmitToRoom(room models.RoomRef, eventType string, data interface{}, exclude *Conn) {
	frame, err := encodeOutbound(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Str("room", room.String()).Msg("Failed to encode room event")
		return
	}

	for _, c := range b.presence.Subscribers(room) {
		if c == exclude {
			continue
		}
		c.enqueue(frame)
	}

	if b.mirror != nil {
		b.mirror.Publish(room, frame)
	}
}

// RoomChannel is the Redis channel a room's events are mirrored on.
func RoomChannel(room models.RoomRef) string {
	return fmt.Sprintf("room_events:%d:%d", room.CommunityID, room.RoomID)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type mirrored struct {
	channel string
	frame   []byte
}

// RedisMirror republishes room events on Redis for other services. Publish
// never blocks the hub loop; frames are dropped when the queue is full.
type RedisMirror struct {
	client publisher
	queue  chan mirrored
}

func NewRedisMirror(client publisher, buffer int) *RedisMirror {
	if buffer <= 0 {
		buffer = 1024
	}
	return &RedisMirror{client: client, queue: make(chan mirrored, buffer)}
}

func (m *RedisMirror) Publish(room models.RoomRef, frame []byte) {
	select {
	case m.queue <- mirrored{channel: RoomChannel(room), frame: frame}:
	default:
		metrics.MirrorPublishErrors.Inc()
	}
}

// Run publishes queued frames until ctx is cancelled, then flushes what
// is still queued.
func (m *RedisMirror) Run(ctx context.Context) {
	log.Info().Msg("Room event mirror started")
	for {
		select {
		case <-ctx.Done():
			m.flush()
			log.Info().Msg("Room event mirror stopped")
			return
		case msg := <-m.queue:
			m.publish(ctx, msg)
		}
	}
}

func (m *RedisMirror) flush() {
	for {
		select {
		case msg := <-m.queue:
			m.publish(context.Background(), msg)
		default:
			return
		}
	}
}

func (m *RedisMirror) publish(ctx context.Context, msg mirrored) {
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.Publish(pubCtx, msg.channel, msg.frame).Err(); err != nil {
		metrics.MirrorPublishErrors.Inc()
		log.Warn().Err(err).Str("channel", msg.channel).Msg("Failed to mirror room event")
	}
}
