package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// AnnounceRoom sends room.created to the room's current members.
// An unknown room yields core.ErrNotFound.
func (o *Orchestrator) AnnounceRoom(ctx context.Context, id domain.RoomID) error {
	room, err := o.Store.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	members, err := o.Store.GetRoomMembers(ctx, id)
	if err != nil {
		return fmt.Errorf("room members: %w", err)
	}
	log.Info().Str("module", "orch").Int64("room_id", int64(id)).Int("members", len(members)).Msg("room announced")
	return o.publish(ctx, core.EventRoomCreated, room, members)
}

// AnnounceUser broadcasts user.created to every connection.
func (o *Orchestrator) AnnounceUser(ctx context.Context, u domain.User) error {
	env, err := core.NewEnvelope(core.EventUserCreated, u)
	if err != nil {
		return err
	}
	return o.Bus.Publish(ctx, env)
}

// AnnounceMessageChange relays an edit or deletion of a stored message to
// everyone who can see it. content, when set, replaces the stored text in the payload.
func (o *Orchestrator) AnnounceMessageChange(ctx context.Context, event string, id domain.MessageID, content *string) error {
	if event != core.EventMessageUpdate && event != core.EventMessageDelete {
		return fmt.Errorf("unsupported message change %q", event)
	}
	m, err := o.Store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if content != nil {
		m.Content = *content
	}
	to, err := o.messageRecipients(ctx, m)
	if err != nil {
		return err
	}
	return o.publish(ctx, event, core.NewMessageReceivePayload(m), to)
}
