package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to CallStatus
		ok       bool
	}{
		{CallRinging, CallActive, true},
		{CallRinging, CallRejected, true},
		{CallRinging, CallBusy, true},
		{CallRinging, CallEnded, true},
		{CallActive, CallEnded, true},
		{CallActive, CallRejected, false},
		{CallActive, CallActive, false},
		{CallEnded, CallActive, false},
		{CallRejected, CallEnded, false},
		{CallBusy, CallActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCallTerminal(t *testing.T) {
	assert.False(t, CallRinging.Terminal())
	assert.False(t, CallActive.Terminal())
	assert.True(t, CallRejected.Terminal())
	assert.True(t, CallBusy.Terminal())
	assert.True(t, CallEnded.Terminal())
}

func TestCallSessionTransitionStampsTimes(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := CallSession{ID: "c1", CallerID: 1, CalleeID: 2, Status: CallRinging}

	active, err := s.Transition(CallActive, at)
	require.NoError(t, err)
	require.NotNil(t, active.StartedAt)
	assert.Equal(t, at, *active.StartedAt)
	assert.Nil(t, active.EndedAt)

	ended, err := active.Transition(CallEnded, at.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)

	_, err = ended.Transition(CallActive, at)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCallSessionPeer(t *testing.T) {
	s := CallSession{CallerID: 1, CalleeID: 2}

	peer, ok := s.Peer(1)
	assert.True(t, ok)
	assert.Equal(t, UserID(2), peer)

	peer, ok = s.Peer(2)
	assert.True(t, ok)
	assert.Equal(t, UserID(1), peer)

	_, ok = s.Peer(3)
	assert.False(t, ok)
	assert.False(t, s.IsParticipant(3))
}

func TestMessageStatusNeverDowngrades(t *testing.T) {
	m := Message{Status: StatusSent}
	m = m.WithStatus(StatusRead)
	assert.Equal(t, StatusRead, m.Status)
	assert.True(t, m.IsRead)

	m = m.WithStatus(StatusDelivered)
	assert.Equal(t, StatusRead, m.Status)
}

func TestInferMessageType(t *testing.T) {
	assert.Equal(t, MessageImage, InferMessageType("/static/uploads/a.png", ""))
	assert.Equal(t, MessageImage, InferMessageType("look", "image"))
	assert.Equal(t, MessageText, InferMessageType("hello", ""))
	assert.Equal(t, MessageText, InferMessageType("hello", "video"))
}

func TestParseUserID(t *testing.T) {
	id, err := ParseUserID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, UserID(42), id)

	_, err = ParseUserID("abc")
	assert.ErrorIs(t, err, ErrInvalidUserID)
	_, err = ParseUserID("0")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}
