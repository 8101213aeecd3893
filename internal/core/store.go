package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrStaleState is returned by a compare-and-swap whose expected status no
	// longer matches the stored one.
	ErrStaleState = errors.New("stale state")
)

// MessageStore is the message side of the persistence collaborator.
type MessageStore interface {
	// SaveMessage assigns ID and Timestamp and returns the stored message.
	SaveMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error)
	// UpdateMessageStatus only moves status forward; see domain.MessageStatus.Advances.
	UpdateMessageStatus(ctx context.Context, id domain.MessageID, status domain.MessageStatus) (domain.Message, error)
	HasPriorDirectMessage(ctx context.Context, a, b domain.UserID) (bool, error)
}

// RoomStore is the authoritative membership source.
type RoomStore interface {
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	GetRoomMembers(ctx context.Context, id domain.RoomID) ([]domain.UserID, error)
	// AreRoomMembers reports whether every user in users is a member of id.
	AreRoomMembers(ctx context.Context, id domain.RoomID, users ...domain.UserID) (bool, error)
}

type CallStore interface {
	GetCallSession(ctx context.Context, callID string) (domain.CallSession, error)
	// CreateCallSession fails with ErrAlreadyExists when callID is taken.
	CreateCallSession(ctx context.Context, session domain.CallSession) error
	// UpdateCallSession atomically moves callID from expected to next, stamping at.
	// Returns ErrStaleState when the stored status is not expected.
	UpdateCallSession(ctx context.Context, callID string, expected, next domain.CallStatus, at time.Time) (domain.CallSession, error)
}

type Store interface {
	MessageStore
	RoomStore
	CallStore
}
