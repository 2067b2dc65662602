package websocket

import (
	"context"
	"strings"

	"studyrooms-backend/internal/models"
	"studyrooms-backend/internal/services"
)

// handleSend ignores whitespace-only content without writing or emitting.
func (h *Hub) handleSend(ctx context.Context, c *Conn, ev *SendMessage) error {
	if strings.TrimSpace(ev.Content) == "" {
		return nil
	}

	room := ev.ref()
	if !c.subscribedTo(room) {
		return &services.MembershipError{Message: "Join the room before sending messages"}
	}

	msg := &models.RoomMessage{
		RoomID:      room.RoomID,
		CommunityID: room.CommunityID,
		UserID:      c.identity.UserID,
		UserName:    c.identity.UserName,
		Content:     ev.Content,
	}
	if err := h.stores.Messages.Insert(ctx, msg); err != nil {
		return services.Persistence("insert message", err)
	}

	h.broadcaster.EmitToRoom(room, EventNewMessage, newMessagePayload(*msg), nil)
	return nil
}

func (h *Hub) historyLimit(requested int) int {
	if requested <= 0 {
		return h.opts.HistoryDefault
	}
	if requested > h.opts.HistoryMax {
		return h.opts.HistoryMax
	}
	return requested
}

// handleHistory replies to the requester only, oldest message first.
func (h *Hub) handleHistory(ctx context.Context, c *Conn, ev *GetMessages) error {
	room := ev.ref()
	if !c.subscribedTo(room) {
		return &services.MembershipError{Message: "Join the room before reading messages"}
	}

	recent, err := h.stores.Messages.Recent(ctx, room, h.historyLimit(ev.Limit))
	if err != nil {
		return services.Persistence("read messages", err)
	}

	history := make([]NewMessage, len(recent))
	for i, m := range recent {
		history[len(recent)-1-i] = newMessagePayload(m)
	}
	c.sendEvent(EventMessageHistory, history)
	return nil
}
