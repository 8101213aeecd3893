package core

import (
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

const (
	EventMessageSend            = "message.send"
	EventMessageReceive         = "message.receive"
	EventMessageAck             = "message.ack"
	EventMessageDelivered       = "message.delivered"
	EventMessageDeliveryReceipt = "message.delivery_receipt"
	EventMessageRead            = "message.read"
	EventMessageReadReceipt     = "message.read_receipt"
	EventMessageUpdate          = "message.update"
	EventMessageDelete          = "message.delete"
	EventTypingStart            = "typing.start"
	EventTypingStop             = "typing.stop"
	EventCallInvite             = "call.invite"
	EventCallAccept             = "call.accept"
	EventCallReject             = "call.reject"
	EventCallBusy               = "call.busy"
	EventCallHangup             = "call.hangup"
	EventCallError              = "call.error"
	EventPresenceUpdate         = "presence.update"
	EventRoomCreated            = "room.created"
	EventUserCreated            = "user.created"
	EventError                  = "error"
)

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

type MessageReceivePayload struct {
	ID          domain.MessageID   `json:"id"`
	Content     string             `json:"content"`
	SenderID    domain.UserID      `json:"sender_id"`
	ReceiverID  *domain.UserID     `json:"receiver_id"`
	RoomID      *domain.RoomID     `json:"room_id"`
	MessageType domain.MessageType `json:"message_type"`
	Timestamp   time.Time          `json:"timestamp"`
}

func NewMessageReceivePayload(m domain.Message) MessageReceivePayload {
	return MessageReceivePayload{
		ID:          m.ID,
		Content:     m.Content,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		RoomID:      m.RoomID,
		MessageType: m.Type,
		Timestamp:   m.Timestamp,
	}
}

type MessageAckPayload struct {
	MessageID domain.MessageID     `json:"message_id"`
	Status    domain.MessageStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

type DeliveryReceiptPayload struct {
	MessageID  domain.MessageID `json:"message_id"`
	ReceiverID domain.UserID    `json:"receiver_id"`
	Timestamp  time.Time        `json:"timestamp"`
}

type ReadReceiptPayload struct {
	MessageID  domain.MessageID `json:"message_id"`
	ReaderID   domain.UserID    `json:"reader_id"`
	ReceiverID domain.UserID    `json:"receiver_id"`
	Timestamp  time.Time        `json:"timestamp"`
}

type TypingPayload struct {
	SenderID   domain.UserID `json:"sender_id"`
	ReceiverID domain.UserID `json:"receiver_id"`
}

type CallErrorPayload struct {
	Message      string `json:"message"`
	ContextEvent string `json:"context_event"`
	CallID       string `json:"call_id,omitempty"`
}

type PresencePayload struct {
	UserID domain.UserID `json:"user_id"`
	Status string        `json:"status"`
}

type ErrorPayload struct {
	Message      string `json:"message"`
	ContextEvent string `json:"context_event,omitempty"`
}
