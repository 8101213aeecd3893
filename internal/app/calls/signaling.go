// Package calls runs the call state machine on top of the persisted CallSession.
package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/metrics"
)

// Store is what signaling needs from persistence.
type Store interface {
	core.CallStore
	AreRoomMembers(ctx context.Context, id domain.RoomID, users ...domain.UserID) (bool, error)
	HasPriorDirectMessage(ctx context.Context, a, b domain.UserID) (bool, error)
}

var responseStatus = map[string]domain.CallStatus{
	core.EventCallAccept: domain.CallActive,
	core.EventCallReject: domain.CallRejected,
	core.EventCallBusy:   domain.CallBusy,
	core.EventCallHangup: domain.CallEnded,
}

type Service struct {
	store   Store
	clock   clock.Clock
	metrics *metrics.Metrics
	newID   func() string
}

func NewService(store Store, clk clock.Clock, m *metrics.Metrics) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{store: store, clock: clk, metrics: m, newID: uuid.NewString}
}

// CanInitiateCall is true when both users share roomID, or, without a room,
// when a direct message exists between them in either direction.
func (s *Service) CanInitiateCall(ctx context.Context, caller, callee domain.UserID, roomID *domain.RoomID) (bool, error) {
	if roomID != nil {
		return s.store.AreRoomMembers(ctx, *roomID, caller, callee)
	}
	return s.store.HasPriorDirectMessage(ctx, caller, callee)
}

// Invite creates a ringing session and returns the envelope for the callee.
// A *Error result is meant for the caller; any other error is internal.
func (s *Service) Invite(ctx context.Context, throttle *Throttle, caller domain.UserID, cmd core.CallInvite) (core.Envelope, error) {
	if throttle != nil && !throttle.Allow() {
		return core.Envelope{}, s.reject(cmd.EventName(), "", ErrRateLimited)
	}
	ok, err := s.CanInitiateCall(ctx, caller, cmd.CalleeID, cmd.RoomID)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("check call permission: %w", err)
	}
	if !ok {
		return core.Envelope{}, s.reject(cmd.EventName(), "", ErrNotAllowed)
	}

	callID := cmd.CallID
	if callID == "" {
		callID = s.newID()
	}
	session := domain.CallSession{
		ID:        callID,
		RoomID:    cmd.RoomID,
		CallerID:  caller,
		CalleeID:  cmd.CalleeID,
		Status:    domain.CallRinging,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.CreateCallSession(ctx, session); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			return core.Envelope{}, s.reject(cmd.EventName(), callID, ErrDuplicate)
		}
		return core.Envelope{}, fmt.Errorf("create call session: %w", err)
	}
	s.metrics.CallTransition(string(domain.CallRinging))
	log.Info().Str("module", "calls").Str("call_id", callID).Stringer("caller", caller).Stringer("callee", cmd.CalleeID).Msg("ringing")

	return outgoing(cmd.EventName(), cmd.Payload, callID, caller, cmd.CalleeID)
}

// Respond applies accept, reject, busy or hangup and returns the envelope for the peer.
func (s *Service) Respond(ctx context.Context, user domain.UserID, cmd core.CallResponse) (core.Envelope, error) {
	event := cmd.EventName()
	next, ok := responseStatus[event]
	if !ok {
		return core.Envelope{}, s.reject(event, cmd.CallID, ErrUnsupported)
	}
	session, err := s.store.GetCallSession(ctx, cmd.CallID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Envelope{}, s.reject(event, cmd.CallID, ErrUnknownCall)
	}
	if err != nil {
		return core.Envelope{}, fmt.Errorf("load call session: %w", err)
	}
	peer, ok := session.Peer(user)
	if !ok {
		return core.Envelope{}, s.reject(event, cmd.CallID, ErrNotParticipant)
	}
	if !session.Status.CanTransition(next) {
		return core.Envelope{}, s.reject(event, cmd.CallID, ErrInvalidState)
	}

	updated, err := s.store.UpdateCallSession(ctx, cmd.CallID, session.Status, next, s.clock.Now().UTC())
	switch {
	case errors.Is(err, core.ErrStaleState), errors.Is(err, domain.ErrIllegalTransition):
		return core.Envelope{}, s.reject(event, cmd.CallID, ErrInvalidState)
	case errors.Is(err, core.ErrNotFound):
		return core.Envelope{}, s.reject(event, cmd.CallID, ErrUnknownCall)
	case err != nil:
		return core.Envelope{}, fmt.Errorf("update call session: %w", err)
	}
	s.metrics.CallTransition(string(updated.Status))
	log.Info().Str("module", "calls").Str("call_id", cmd.CallID).Str("status", string(updated.Status)).Stringer("by", user).Msg("call transition")

	return outgoing(event, cmd.Payload, cmd.CallID, user, peer)
}

func (s *Service) reject(event, callID string, cause error) *Error {
	s.metrics.CallRejected(rejections[cause].reason)
	return newError(cause, event, callID)
}

// outgoing echoes the client payload with call_id and from_user_id set.
func outgoing(event string, payload map[string]json.RawMessage, callID string, from, to domain.UserID) (core.Envelope, error) {
	data := make(map[string]json.RawMessage, len(payload)+2)
	for k, v := range payload {
		data[k] = v
	}
	id, err := json.Marshal(callID)
	if err != nil {
		return core.Envelope{}, err
	}
	data["call_id"] = id
	data["from_user_id"] = json.RawMessage(from.String())
	return core.NewEnvelope(event, data, to)
}
