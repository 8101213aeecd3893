package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/metrics"
)

var ErrNotConnected = errors.New("recipient not connected")

// PresenceListener is told about every registration change.
type PresenceListener interface {
	UserOnline(ctx context.Context, uid domain.UserID)
	UserOffline(ctx context.Context, uid domain.UserID)
}

// Registry maps each user to its single live connection on this process.
// A second connect for the same user replaces the handle without closing the old one.
type Registry struct {
	mu       sync.RWMutex
	conns    map[domain.UserID]core.SignalConnection
	policy   Policy
	presence PresenceListener
	metrics  *metrics.Metrics
}

func NewRegistry(policy Policy, m *metrics.Metrics) *Registry {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Registry{
		conns:   make(map[domain.UserID]core.SignalConnection),
		policy:  policy,
		metrics: m,
	}
}

// SetPresence wires the presence side effect. Call it before serving connections.
func (r *Registry) SetPresence(p PresenceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = p
}

func (r *Registry) Connect(ctx context.Context, uid domain.UserID, conn core.SignalConnection) {
	r.mu.Lock()
	_, replaced := r.conns[uid]
	r.conns[uid] = conn
	presence := r.presence
	r.mu.Unlock()

	if !replaced {
		r.metrics.ConnectionOpened()
	}
	log.Info().Str("module", "app.registry").Stringer("user_id", uid).Bool("replaced", replaced).Msg("connected")
	if presence != nil {
		presence.UserOnline(ctx, uid)
	}
}

// Disconnect removes uid if it is still bound to conn (any handle when conn is nil).
// It reports whether an entry was removed; only a removal emits presence offline,
// so repeated calls are harmless.
func (r *Registry) Disconnect(ctx context.Context, uid domain.UserID, conn core.SignalConnection) bool {
	r.mu.Lock()
	cur, ok := r.conns[uid]
	if !ok || (conn != nil && cur != conn) {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, uid)
	presence := r.presence
	r.mu.Unlock()

	r.metrics.ConnectionClosed()
	log.Info().Str("module", "app.registry").Stringer("user_id", uid).Msg("disconnected")
	if presence != nil {
		presence.UserOffline(ctx, uid)
	}
	return true
}

func (r *Registry) Connected(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[uid]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SendLocal hands frame to uid's connection without blocking.
// ErrNotConnected means uid has no connection on this process.
func (r *Registry) SendLocal(uid domain.UserID, frame core.Frame) error {
	r.mu.RLock()
	conn, ok := r.conns[uid]
	r.mu.RUnlock()
	if !ok {
		r.metrics.Dropped("not_connected")
		return ErrNotConnected
	}
	if err := r.send(uid, conn, frame); err != nil {
		return fmt.Errorf("send to user %d: %w", uid, err)
	}
	return nil
}

// BroadcastLocal sends frame to every connection accepted by filter (all when nil)
// and returns how many accepted it.
func (r *Registry) BroadcastLocal(frame core.Frame, filter func(domain.UserID) bool) int {
	type snap struct {
		uid  domain.UserID
		conn core.SignalConnection
	}
	r.mu.RLock()
	targets := make([]snap, 0, len(r.conns))
	for uid, conn := range r.conns {
		if filter == nil || filter(uid) {
			targets = append(targets, snap{uid, conn})
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, t := range targets {
		if r.send(t.uid, t.conn, frame) == nil {
			sent++
		}
	}
	return sent
}

func (r *Registry) send(uid domain.UserID, conn core.SignalConnection, frame core.Frame) error {
	err := conn.TrySend(frame)
	if err == nil {
		r.metrics.Delivered()
		return nil
	}
	switch r.policy.OnSendFailure(uid, err) {
	case DropConnection:
		r.metrics.Dropped("closed")
		log.Warn().Err(err).Str("module", "app.registry").Stringer("user_id", uid).Msg("stale connection removed")
		r.Disconnect(context.Background(), uid, conn)
	case DropFrame:
		r.metrics.Dropped("backpressure")
		log.Warn().Err(err).Str("module", "app.registry").Stringer("user_id", uid).Msg("frame dropped")
	}
	return err
}
