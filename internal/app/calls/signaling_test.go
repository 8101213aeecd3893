package calls_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/app/calls"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/storage/memory"
)

type fixture struct {
	ctx   context.Context
	clock *clock.Mock
	store *memory.Store
	svc   *calls.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock()
	store := memory.New(clk)
	return &fixture{ctx: context.Background(), clock: clk, store: store, svc: calls.NewService(store, clk, nil)}
}

func (f *fixture) dm(t *testing.T, from, to domain.UserID) {
	t.Helper()
	_, err := f.store.SaveMessage(f.ctx, domain.Message{Content: "hi", SenderID: from, ReceiverID: &to})
	require.NoError(t, err)
}

func invite(callee domain.UserID, callID string) core.CallInvite {
	payload := map[string]json.RawMessage{"to_user_id": json.RawMessage(callee.String()), "sdp": json.RawMessage(`"offer"`)}
	if callID != "" {
		payload["call_id"] = json.RawMessage(`"` + callID + `"`)
	}
	return core.CallInvite{CalleeID: callee, CallID: callID, Payload: payload}
}

func respond(event, callID string) core.CallResponse {
	return core.CallResponse{Event: event, CallID: callID, Payload: map[string]json.RawMessage{"call_id": json.RawMessage(`"` + callID + `"`)}}
}

func data(t *testing.T, env core.Envelope) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestCanInitiateCall(t *testing.T) {
	f := newFixture(t)

	ok, err := f.svc.CanInitiateCall(f.ctx, 1, 2, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	f.dm(t, 2, 1)
	ok, err = f.svc.CanInitiateCall(f.ctx, 1, 2, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	room, err := f.store.CreateRoom(f.ctx, "r", true, 1)
	require.NoError(t, err)
	ok, err = f.svc.CanInitiateCall(f.ctx, 1, 3, &room.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.store.AddRoomMember(f.ctx, room.ID, 3))
	ok, err = f.svc.CanInitiateCall(f.ctx, 1, 3, &room.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvite_NotAllowedWithoutRelationship(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Invite(f.ctx, nil, 1, invite(2, ""))
	var callErr *calls.Error
	require.ErrorAs(t, err, &callErr)
	assert.ErrorIs(t, err, calls.ErrNotAllowed)
	assert.Equal(t, "Not allowed to call this user", callErr.Message)
	assert.Equal(t, core.EventCallInvite, callErr.ContextEvent)
}

func TestInvite_CreatesRingingSessionForCallee(t *testing.T) {
	f := newFixture(t)
	f.dm(t, 1, 2)

	env, err := f.svc.Invite(f.ctx, nil, 1, invite(2, ""))
	require.NoError(t, err)
	assert.Equal(t, core.EventCallInvite, env.Event)
	assert.Equal(t, []domain.UserID{2}, env.RecipientIDs)

	d := data(t, env)
	assert.Equal(t, float64(1), d["from_user_id"])
	assert.Equal(t, "offer", d["sdp"])
	callID, _ := d["call_id"].(string)
	require.NotEmpty(t, callID)

	session, err := f.store.GetCallSession(f.ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallRinging, session.Status)
	assert.Equal(t, domain.UserID(1), session.CallerID)
}

func TestInvite_DuplicateCallID(t *testing.T) {
	f := newFixture(t)
	f.dm(t, 1, 2)

	_, err := f.svc.Invite(f.ctx, nil, 1, invite(2, "abc"))
	require.NoError(t, err)
	_, err = f.svc.Respond(f.ctx, 2, respond(core.EventCallAccept, "abc"))
	require.NoError(t, err)

	_, err = f.svc.Invite(f.ctx, nil, 1, invite(2, "abc"))
	assert.ErrorIs(t, err, calls.ErrDuplicate)
	var callErr *calls.Error
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "abc", callErr.CallID)

	session, err := f.store.GetCallSession(f.ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.CallActive, session.Status, "replay does not overwrite")
}

func TestInvite_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.dm(t, 1, 2)
	th := calls.NewThrottle(f.clock, 3, 30*time.Second)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Invite(f.ctx, th, 1, invite(2, ""))
		require.NoError(t, err)
		f.clock.Add(2 * time.Second)
	}
	_, err := f.svc.Invite(f.ctx, th, 1, invite(2, ""))
	assert.ErrorIs(t, err, calls.ErrRateLimited)

	f.clock.Add(31 * time.Second)
	_, err = f.svc.Invite(f.ctx, th, 1, invite(2, ""))
	assert.NoError(t, err)
}

func TestRespond_Transitions(t *testing.T) {
	f := newFixture(t)
	f.dm(t, 1, 2)
	_, err := f.svc.Invite(f.ctx, nil, 1, invite(2, "c1"))
	require.NoError(t, err)

	f.clock.Add(time.Second)
	env, err := f.svc.Respond(f.ctx, 2, respond(core.EventCallAccept, "c1"))
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{1}, env.RecipientIDs)
	assert.Equal(t, float64(2), data(t, env)["from_user_id"])

	session, err := f.store.GetCallSession(f.ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallActive, session.Status)
	require.NotNil(t, session.StartedAt)

	env, err = f.svc.Respond(f.ctx, 1, respond(core.EventCallHangup, "c1"))
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{2}, env.RecipientIDs)

	_, err = f.svc.Respond(f.ctx, 2, respond(core.EventCallAccept, "c1"))
	assert.ErrorIs(t, err, calls.ErrInvalidState, "ended is terminal")
}

func TestRespond_Rejections(t *testing.T) {
	f := newFixture(t)
	f.dm(t, 1, 2)
	_, err := f.svc.Invite(f.ctx, nil, 1, invite(2, "c1"))
	require.NoError(t, err)

	_, err = f.svc.Respond(f.ctx, 2, respond(core.EventCallAccept, "nope"))
	assert.ErrorIs(t, err, calls.ErrUnknownCall)

	_, err = f.svc.Respond(f.ctx, 3, respond(core.EventCallAccept, "c1"))
	assert.ErrorIs(t, err, calls.ErrNotParticipant)

	session, err := f.store.GetCallSession(f.ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallRinging, session.Status)

	_, err = f.svc.Respond(f.ctx, 2, respond("call.ping", "c1"))
	assert.ErrorIs(t, err, calls.ErrUnsupported)
}

func TestError_Envelope(t *testing.T) {
	err := calls.Reject(core.EventCallInvite, "Missing call recipient")
	env, encErr := err.Envelope(7)
	require.NoError(t, encErr)
	assert.Equal(t, core.EventCallError, env.Event)
	assert.Equal(t, []domain.UserID{7}, env.RecipientIDs)
	assert.JSONEq(t, `{"message":"Missing call recipient","context_event":"call.invite"}`, string(env.Data))
}
