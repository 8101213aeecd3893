// Package orch routes decoded client events to persistence, call signaling and the bus.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/calls"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// Store is the persistence the router reads and writes directly.
type Store interface {
	core.MessageStore
	core.RoomStore
}

type Orchestrator struct {
	Registry *app.Registry
	Bus      app.Publisher
	Store    Store
	Calls    *calls.Service
	Clock    clock.Clock

	InviteLimit  int
	InviteWindow time.Duration
}

// Client is one authenticated connection as seen by the router.
// Its frames must be handed to OnFrame one at a time.
type Client struct {
	UserID  domain.UserID
	Conn    core.SignalConnection
	invites *calls.Throttle
}

func (o *Orchestrator) clock() clock.Clock {
	if o.Clock == nil {
		return clock.New()
	}
	return o.Clock
}

// Connect registers conn for uid and returns its routing handle.
func (o *Orchestrator) Connect(ctx context.Context, uid domain.UserID, conn core.SignalConnection) *Client {
	c := &Client{
		UserID:  uid,
		Conn:    conn,
		invites: calls.NewThrottle(o.clock(), o.InviteLimit, o.InviteWindow),
	}
	o.Registry.Connect(ctx, uid, conn)
	return c
}

func (o *Orchestrator) Disconnect(ctx context.Context, c *Client) {
	o.Registry.Disconnect(ctx, c.UserID, c.Conn)
}

// OnFrame decodes and handles one inbound frame from c.
func (o *Orchestrator) OnFrame(ctx context.Context, c *Client, frame core.Frame) {
	in, err := core.DecodeInbound(frame)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Stringer("user_id", c.UserID).Msg("malformed frame")
		o.replyRaw(c, map[string]string{"error": "Invalid JSON format"})
		return
	}
	cmd, err := core.Parse(in)
	if errors.Is(err, core.ErrMalformedFrame) {
		log.Debug().Err(err).Str("module", "orch").Stringer("user_id", c.UserID).Msg("malformed payload")
		o.replyRaw(c, map[string]string{"error": "Invalid JSON format"})
		return
	}
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) && core.IsCallEvent(in.Event) {
			o.replyCallError(c, calls.Reject(in.Event, verr.Reason))
			return
		}
		log.Debug().Err(err).Str("module", "orch").Stringer("user_id", c.UserID).Msg("invalid event dropped")
		return
	}

	// Persistence and publish run to completion even if the socket goes away.
	ctx = context.WithoutCancel(ctx)

	switch cmd := cmd.(type) {
	case core.SendMessage:
		err = o.sendMessage(ctx, c, cmd)
	case core.MessageReceipt:
		err = o.receipt(ctx, c, cmd)
	case core.Typing:
		err = o.typing(ctx, c, cmd)
	case core.CallInvite:
		err = o.callInvite(ctx, c, cmd)
	case core.CallResponse:
		err = o.callRespond(ctx, c, cmd)
	case core.Unrecognized:
		o.unrecognized(c, cmd)
	}
	if err != nil {
		var callErr *calls.Error
		if errors.As(err, &callErr) {
			o.replyCallError(c, callErr)
			return
		}
		log.Error().Err(err).Str("module", "orch").Str("event", in.Event).Stringer("user_id", c.UserID).Msg("handler failed")
	}
}

func (o *Orchestrator) unrecognized(c *Client, cmd core.Unrecognized) {
	if core.IsCallEvent(cmd.Event) {
		o.replyCallError(c, &calls.Error{Err: calls.ErrUnsupported, Message: "Unsupported call event", ContextEvent: cmd.Event})
		return
	}
	env, err := core.NewEnvelope(core.EventError, core.ErrorPayload{Message: "Unsupported event", ContextEvent: cmd.Event})
	if err != nil {
		return
	}
	o.reply(c, env)
}

// publish sends to explicit recipients; an empty list publishes nothing.
func (o *Orchestrator) publish(ctx context.Context, event string, data any, to []domain.UserID) error {
	if len(to) == 0 {
		log.Debug().Str("module", "orch").Str("event", event).Msg("no recipients")
		return nil
	}
	env, err := core.NewEnvelope(event, data, to...)
	if err != nil {
		return err
	}
	return o.Bus.Publish(ctx, env)
}

// reply writes straight to the originating connection, bypassing the bus.
func (o *Orchestrator) reply(c *Client, env core.Envelope) {
	frame, err := env.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode reply")
		return
	}
	if err := c.Conn.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Stringer("user_id", c.UserID).Str("event", env.Event).Msg("reply dropped")
	}
}

func (o *Orchestrator) replyRaw(c *Client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Conn.TrySend(b)
}

func (o *Orchestrator) replyCallError(c *Client, callErr *calls.Error) {
	env, err := callErr.Envelope(c.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode call.error")
		return
	}
	log.Info().Str("module", "orch").Stringer("user_id", c.UserID).Str("event", callErr.ContextEvent).Str("reason", callErr.Message).Msg("call rejected")
	o.reply(c, env)
}
