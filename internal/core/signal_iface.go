package core

import "errors"

var (
	// ErrBackpressure means the outbound queue is full; the frame is dropped.
	ErrBackpressure = errors.New("backpressure")
	// ErrConnectionClosed means the handle is stale and will never accept frames again.
	ErrConnectionClosed = errors.New("connection closed")
)

// Frame is a serialized outbound event.
type Frame []byte

// SignalConnection abstracts the client messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
