package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

func (o *Orchestrator) sendMessage(ctx context.Context, c *Client, cmd core.SendMessage) error {
	if cmd.RoomID != nil {
		ok, err := o.Store.AreRoomMembers(ctx, *cmd.RoomID, c.UserID)
		if err != nil {
			return fmt.Errorf("check room membership: %w", err)
		}
		if !ok {
			log.Warn().Str("module", "orch").Stringer("user_id", c.UserID).Int64("room_id", int64(*cmd.RoomID)).Msg("send to foreign room dropped")
			return nil
		}
	}

	saved, err := o.Store.SaveMessage(ctx, domain.Message{
		Content:    cmd.Content,
		SenderID:   c.UserID,
		ReceiverID: cmd.ReceiverID,
		RoomID:     cmd.RoomID,
		Type:       domain.InferMessageType(cmd.Content, cmd.MessageType),
		Status:     domain.StatusSent,
	})
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	to, err := o.messageRecipients(ctx, saved)
	if err != nil {
		return err
	}
	if err := o.publish(ctx, core.EventMessageReceive, core.NewMessageReceivePayload(saved), to); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	ack, err := core.NewEnvelope(core.EventMessageAck, core.MessageAckPayload{
		MessageID: saved.ID,
		Status:    saved.Status,
		Timestamp: saved.Timestamp,
	})
	if err != nil {
		return err
	}
	o.reply(c, ack)
	return nil
}

// messageRecipients returns both parties of a direct message, or the current
// members of the message's room as stored right now.
func (o *Orchestrator) messageRecipients(ctx context.Context, m domain.Message) ([]domain.UserID, error) {
	if m.RoomID != nil {
		members, err := o.Store.GetRoomMembers(ctx, *m.RoomID)
		if err != nil {
			return nil, fmt.Errorf("room members: %w", err)
		}
		return members, nil
	}
	if m.ReceiverID == nil {
		return []domain.UserID{m.SenderID}, nil
	}
	return []domain.UserID{m.SenderID, *m.ReceiverID}, nil
}

// receipt records delivered/read and notifies the message's sender.
func (o *Orchestrator) receipt(ctx context.Context, c *Client, cmd core.MessageReceipt) error {
	msg, err := o.Store.GetMessage(ctx, cmd.MessageID)
	if errors.Is(err, core.ErrNotFound) {
		log.Debug().Str("module", "orch").Int64("message_id", int64(cmd.MessageID)).Msg("receipt for unknown message")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	ok, err := o.canAcknowledge(ctx, c.UserID, msg)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn().Str("module", "orch").Stringer("user_id", c.UserID).Int64("message_id", int64(msg.ID)).Msg("receipt from non-recipient dropped")
		return nil
	}
	if cmd.SenderID != 0 && cmd.SenderID != msg.SenderID {
		log.Debug().Str("module", "orch").Stringer("claimed", cmd.SenderID).Stringer("stored", msg.SenderID).Msg("receipt sender mismatch")
	}

	status := domain.StatusDelivered
	if cmd.Event == core.EventMessageRead {
		status = domain.StatusRead
	}
	if _, err := o.Store.UpdateMessageStatus(ctx, msg.ID, status); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}

	now := o.clock().Now().UTC()
	to := []domain.UserID{msg.SenderID}
	if status == domain.StatusRead {
		return o.publish(ctx, core.EventMessageReadReceipt, core.ReadReceiptPayload{
			MessageID:  msg.ID,
			ReaderID:   c.UserID,
			ReceiverID: msg.SenderID,
			Timestamp:  now,
		}, to)
	}
	return o.publish(ctx, core.EventMessageDeliveryReceipt, core.DeliveryReceiptPayload{
		MessageID:  msg.ID,
		ReceiverID: msg.SenderID,
		Timestamp:  now,
	}, to)
}

func (o *Orchestrator) canAcknowledge(ctx context.Context, uid domain.UserID, m domain.Message) (bool, error) {
	if uid == m.SenderID {
		return false, nil
	}
	if m.RoomID != nil {
		ok, err := o.Store.AreRoomMembers(ctx, *m.RoomID, uid)
		if err != nil {
			return false, fmt.Errorf("check room membership: %w", err)
		}
		return ok, nil
	}
	return m.ReceiverID != nil && *m.ReceiverID == uid, nil
}

func (o *Orchestrator) typing(ctx context.Context, c *Client, cmd core.Typing) error {
	return o.publish(ctx, cmd.Event, core.TypingPayload{SenderID: c.UserID, ReceiverID: cmd.ReceiverID}, []domain.UserID{cmd.ReceiverID})
}
