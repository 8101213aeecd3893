package domain

import (
	"errors"
	"time"
)

var ErrIllegalTransition = errors.New("illegal call transition")

type CallStatus string

const (
	CallRinging  CallStatus = "ringing"
	CallActive   CallStatus = "active"
	CallRejected CallStatus = "rejected"
	CallBusy     CallStatus = "busy"
	CallEnded    CallStatus = "ended"
)

var callTransitions = map[CallStatus][]CallStatus{
	CallRinging: {CallActive, CallRejected, CallBusy, CallEnded},
	CallActive:  {CallEnded},
}

// Terminal statuses accept no further transitions.
func (s CallStatus) Terminal() bool {
	return s == CallRejected || s == CallBusy || s == CallEnded
}

func (s CallStatus) CanTransition(to CallStatus) bool {
	for _, next := range callTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CallSession is the persisted record of one call between two users.
type CallSession struct {
	ID        string
	RoomID    *RoomID
	CallerID  UserID
	CalleeID  UserID
	Status    CallStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

func (c CallSession) IsParticipant(uid UserID) bool {
	return uid == c.CallerID || uid == c.CalleeID
}

// Peer returns the participant on the other side of uid.
func (c CallSession) Peer(uid UserID) (UserID, bool) {
	switch uid {
	case c.CallerID:
		return c.CalleeID, true
	case c.CalleeID:
		return c.CallerID, true
	}
	return 0, false
}

// Transition applies to and stamps started/ended times.
func (c CallSession) Transition(to CallStatus, at time.Time) (CallSession, error) {
	if !c.Status.CanTransition(to) {
		return c, ErrIllegalTransition
	}
	c.Status = to
	if to == CallActive {
		c.StartedAt = &at
	} else {
		c.EndedAt = &at
	}
	return c, nil
}
