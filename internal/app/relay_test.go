package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/apptest"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

func connectAll(t *testing.T, reg *app.Registry, ids ...domain.UserID) map[domain.UserID]*apptest.Conn {
	t.Helper()
	out := make(map[domain.UserID]*apptest.Conn, len(ids))
	for _, id := range ids {
		c := apptest.NewConn()
		reg.Connect(context.Background(), id, c)
		out[id] = c
	}
	return out
}

func TestDeliver_ExplicitRecipients(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	conns := connectAll(t, reg, 1, 2, 3)

	reg.Deliver(frame(t, core.EventRoomCreated, domain.Room{ID: 5, Name: "r"}, 1, 3, 3, 42))

	assert.Equal(t, 1, conns[1].Count(core.EventRoomCreated))
	assert.Zero(t, conns[2].Count(core.EventRoomCreated))
	assert.Equal(t, 1, conns[3].Count(core.EventRoomCreated), "duplicate recipients get one frame")
}

func TestDeliver_DirectInference(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	conns := connectAll(t, reg, 1, 2, 3)
	to := domain.UserID(2)

	reg.Deliver(frame(t, core.EventMessageReceive, core.MessageReceivePayload{ID: 1, Content: "hi", SenderID: 1, ReceiverID: &to}))

	assert.Zero(t, conns[1].Count(core.EventMessageReceive))
	assert.Equal(t, 1, conns[2].Count(core.EventMessageReceive))
	assert.Zero(t, conns[3].Count(core.EventMessageReceive))
}

func TestDeliver_RoomEventWithoutRecipientsGoesNowhere(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	conns := connectAll(t, reg, 1, 2)
	room := domain.RoomID(7)

	reg.Deliver(frame(t, core.EventMessageReceive, core.MessageReceivePayload{ID: 1, Content: "hi", SenderID: 1, RoomID: &room}))

	for _, c := range conns {
		assert.Zero(t, c.Count(core.EventMessageReceive))
	}
}

func TestDeliver_UpdateReachesBothParties(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	conns := connectAll(t, reg, 1, 2, 3)

	reg.Deliver(frame(t, core.EventMessageUpdate, map[string]any{"id": 1, "sender_id": 1, "receiver_id": 2}))

	assert.Equal(t, 1, conns[1].Count(core.EventMessageUpdate))
	assert.Equal(t, 1, conns[2].Count(core.EventMessageUpdate))
	assert.Zero(t, conns[3].Count(core.EventMessageUpdate))
}

func TestDeliver_AddressedOnlyEvents(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	conns := connectAll(t, reg, 1, 2)

	reg.Deliver(frame(t, core.EventCallInvite, map[string]any{"to_user_id": 2, "call_id": "c"}))
	reg.Deliver(frame(t, core.EventMessageReadReceipt, core.ReadReceiptPayload{MessageID: 1, ReaderID: 2, ReceiverID: 2}))

	for _, c := range conns {
		assert.Empty(t, c.Frames())
	}
}

func TestDeliver_BroadcastEvents(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	conns := connectAll(t, reg, 1, 2)

	reg.Deliver(frame(t, core.EventUserCreated, map[string]any{"id": 9}))

	for _, c := range conns {
		assert.Equal(t, 1, c.Count(core.EventUserCreated))
	}
}

func TestDeliver_MalformedIsIgnored(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	conns := connectAll(t, reg, 1)

	reg.Deliver(core.Frame(`not json`))
	reg.Deliver(core.Frame(`{"data":{}}`))

	assert.Empty(t, conns[1].Frames())
}
