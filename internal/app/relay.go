package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// directedEvents are addressed by their payload when published without recipients.
var directedEvents = map[string]bool{
	core.EventMessageReceive: true,
	core.EventMessageUpdate:  true,
	core.EventMessageDelete:  true,
	core.EventTypingStart:    true,
	core.EventTypingStop:     true,
	core.EventRoomCreated:    true,
}

// addressedOnly events go nowhere unless recipients are explicit.
// Receipt payloads name the reader, not the target.
func addressedOnly(event string) bool {
	return core.IsCallEvent(event) ||
		event == core.EventMessageDeliveryReceipt ||
		event == core.EventMessageReadReceipt ||
		event == core.EventMessageAck ||
		event == core.EventError
}

// ResolveLocal picks the users an envelope is meant for.
// broadcast is true only for events that address everyone (presence, user.created).
// Room-scoped envelopes without explicit recipients resolve to nobody.
func ResolveLocal(env core.Envelope) (targets []domain.UserID, broadcast bool) {
	if len(env.RecipientIDs) > 0 {
		return dedupe(env.RecipientIDs), false
	}
	if addressedOnly(env.Event) {
		return nil, false
	}
	if !directedEvents[env.Event] {
		return nil, true
	}

	var hint struct {
		ReceiverID *domain.UserID `json:"receiver_id"`
		SenderID   *domain.UserID `json:"sender_id"`
		RoomID     *domain.RoomID `json:"room_id"`
	}
	_ = json.Unmarshal(env.Data, &hint)
	if hint.RoomID != nil {
		log.Warn().Str("module", "app.relay").Str("event", env.Event).Msg("room event without recipients dropped")
		return nil, false
	}
	if hint.ReceiverID != nil {
		targets = append(targets, *hint.ReceiverID)
	}
	if hint.SenderID != nil && (env.Event == core.EventMessageUpdate || env.Event == core.EventMessageDelete) {
		targets = append(targets, *hint.SenderID)
	}
	return dedupe(targets), false
}

// Deliver hands a serialized envelope to the matching local connections.
// Both bus backings call it, so delivery is identical for either.
func (r *Registry) Deliver(frame core.Frame) {
	env, err := core.DecodeEnvelope(frame)
	if err != nil {
		r.metrics.Dropped("malformed")
		log.Warn().Err(err).Str("module", "app.relay").Msg("undecodable envelope")
		return
	}
	targets, broadcast := ResolveLocal(env)
	if broadcast {
		n := r.BroadcastLocal(frame, nil)
		log.Debug().Str("module", "app.relay").Str("event", env.Event).Int("sent_to", n).Msg("broadcast")
		return
	}
	for _, uid := range targets {
		err := r.SendLocal(uid, frame)
		if err != nil && !errors.Is(err, ErrNotConnected) {
			log.Debug().Err(err).Str("module", "app.relay").Str("event", env.Event).Stringer("user_id", uid).Msg("recipient unreachable")
		}
	}
}

func dedupe(ids []domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(ids))
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
