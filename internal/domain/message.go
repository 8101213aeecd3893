package domain

import (
	"strings"
	"time"
)

type MessageID int64

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

// uploadPrefix marks content that points at an uploaded file.
const uploadPrefix = "/static/"

// InferMessageType picks the stored type from the content and the client hint.
func InferMessageType(content, requested string) MessageType {
	if strings.HasPrefix(content, uploadPrefix) || MessageType(requested) == MessageImage {
		return MessageImage
	}
	return MessageText
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is forward progress.
// Receipts never downgrade a message (read stays read after a late delivered).
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.rank() > s.rank()
}

// Message is either direct (ReceiverID set) or room-scoped (RoomID set).
type Message struct {
	ID         MessageID
	Content    string
	SenderID   UserID
	ReceiverID *UserID
	RoomID     *RoomID
	Type       MessageType
	Timestamp  time.Time
	IsRead     bool
	Status     MessageStatus
}

func (m Message) IsDirect() bool { return m.RoomID == nil && m.ReceiverID != nil }

// WithStatus returns a copy with status applied, if it advances.
func (m Message) WithStatus(next MessageStatus) Message {
	if !m.Status.Advances(next) {
		return m
	}
	m.Status = next
	if next == StatusRead {
		m.IsRead = true
	}
	return m
}
