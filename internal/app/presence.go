package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// Publisher is the write side of the event bus.
type Publisher interface {
	Publish(ctx context.Context, env core.Envelope) error
}

// PresenceNotifier broadcasts presence.update on connect and disconnect.
type PresenceNotifier struct {
	pub Publisher
}

func NewPresenceNotifier(pub Publisher) *PresenceNotifier {
	return &PresenceNotifier{pub: pub}
}

func (n *PresenceNotifier) UserOnline(ctx context.Context, uid domain.UserID) {
	n.emit(ctx, uid, core.PresenceOnline)
}

func (n *PresenceNotifier) UserOffline(ctx context.Context, uid domain.UserID) {
	n.emit(ctx, uid, core.PresenceOffline)
}

func (n *PresenceNotifier) emit(ctx context.Context, uid domain.UserID, status string) {
	env, err := core.NewEnvelope(core.EventPresenceUpdate, core.PresencePayload{UserID: uid, Status: status})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode presence")
		return
	}
	if err := n.pub.Publish(ctx, env); err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Stringer("user_id", uid).Str("status", status).Msg("presence publish failed")
	}
}
