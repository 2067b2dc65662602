package websocket

import (
	"context"

	"github.com/rs/zerolog/log"

	"studyrooms-backend/internal/metrics"
	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

// Presence is the room channel registry. It is only touched from the hub
// loop and takes no locks.
type Presence struct {
	rooms map[models.RoomRef]map[*Conn]struct{}
}

func NewPresence() *Presence {
	return &Presence{rooms: make(map[models.RoomRef]map[*Conn]struct{})}
}

func (p *Presence) Add(room models.RoomRef, c *Conn) {
	subs, ok := p.rooms[room]
	if !ok {
		subs = make(map[*Conn]struct{})
		p.rooms[room] = subs
	}
	if _, dup := subs[c]; dup {
		return
	}
	subs[c] = struct{}{}
	metrics.RoomSubscriptions.Inc()
}

// Remove reports whether c was subscribed to room.
func (p *Presence) Remove(room models.RoomRef, c *Conn) bool {
	subs, ok := p.rooms[room]
	if !ok {
		return false
	}
	if _, ok := subs[c]; !ok {
		return false
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(p.rooms, room)
	}
	metrics.RoomSubscriptions.Dec()
	return true
}

func (p *Presence) Subscribers(room models.RoomRef) []*Conn {
	subs := p.rooms[room]
	out := make([]*Conn, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

func (p *Presence) Count(room models.RoomRef) int {
	return len(p.rooms[room])
}

func (h *Hub) handleJoin(ctx context.Context, c *Conn, ev *JoinRoom) error {
	room := ev.ref()
	uid := c.identity.UserID

	if err := h.stores.Membership.RequireMember(ctx, uid, room); err != nil {
		return err
	}

	members, err := h.stores.Rooms.ListMembers(ctx, room)
	if err != nil {
		return services.Persistence("list room members", err)
	}
	active, err := h.stores.Sessions.ActiveInRoom(ctx, room)
	if err != nil {
		return services.Persistence("list active sessions", err)
	}

	state := RoomState{
		RoomID:         room.RoomID,
		CommunityID:    room.CommunityID,
		Members:        members,
		ActiveSessions: active,
	}

	if c.subscribedTo(room) {
		c.sendEvent(EventRoomState, state)
		return nil
	}
	if c.room != nil {
		h.leaveCurrent(ctx, c)
	}

	h.presence.Add(room, c)
	c.room = &room

	c.sendEvent(EventRoomState, state)
	h.broadcaster.EmitToRoom(room, EventUserJoined, UserPresence{UserID: uid, UserName: c.identity.UserName}, c)

	log.Info().
		Str("user_id", uid.String()).
		Int64("room_id", room.RoomID).
		Int64("community_id", room.CommunityID).
		Msg("Joined room channel")
	return nil
}

// handleLeave is a no-op unless the connection is subscribed to the named room.
func (h *Hub) handleLeave(ctx context.Context, c *Conn, ev *LeaveRoom) error {
	if !c.subscribedTo(ev.ref()) {
		return nil
	}
	h.leaveCurrent(ctx, c)
	return nil
}

// leaveCurrent unsubscribes c from its room. A session still tracked on
// the connection is completed first.
func (h *Hub) leaveCurrent(ctx context.Context, c *Conn) {
	if c.session != nil {
		if err := h.completeTracked(ctx, c, false, causeLeft); err != nil {
			h.logFailure(c, EventLeaveRoom, err)
		}
	}

	room := *c.room
	h.presence.Remove(room, c)
	c.room = nil
	h.broadcaster.EmitToRoom(room, EventUserLeft, UserPresence{UserID: c.identity.UserID, UserName: c.identity.UserName}, c)
}
