package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/metrics"
)

const DefaultChannel = "chat:events"

type Redis struct {
	client  redis.UniversalClient
	channel string
	out     Deliverer
	metrics *metrics.Metrics

	mu  sync.Mutex
	sub *redis.PubSub
}

func NewRedis(client redis.UniversalClient, channel string, out Deliverer, m *metrics.Metrics) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, out: out, metrics: m}
}

// Subscribe confirms the subscription. Call it before accepting clients so
// nothing published by this process is missed.
func (r *Redis) Subscribe(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.sub = sub
	return nil
}

func (r *Redis) Publish(ctx context.Context, env core.Envelope) error {
	frame, err := env.Frame()
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, []byte(frame)).Err(); err != nil {
		r.metrics.BusFallback()
		log.Warn().Err(err).Str("module", "bus.redis").Str("event", env.Event).Msg("publish failed, delivering locally")
		r.out.Deliver(frame)
		return nil
	}
	r.metrics.Published(env.Event, BackingRedis)
	return nil
}

func (r *Redis) Run(ctx context.Context) error {
	if err := r.Subscribe(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	ch := r.sub.Channel()
	r.mu.Unlock()

	log.Info().Str("module", "bus.redis").Str("channel", r.channel).Msg("listening")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			r.out.Deliver(core.Frame(msg.Payload))
		}
	}
}

func (r *Redis) Backing() string { return BackingRedis }

func (r *Redis) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()
	var errs []error
	if sub != nil {
		errs = append(errs, sub.Close())
	}
	errs = append(errs, r.client.Close())
	return errors.Join(errs...)
}
