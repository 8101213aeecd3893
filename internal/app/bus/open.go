package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/metrics"
)

type Options struct {
	// RedisURL selects the distributed backing; empty means local only.
	RedisURL    string
	Channel     string
	DialTimeout time.Duration
}

// Open returns a Redis bus when the server answers, and a Local bus otherwise.
// Only an unparsable URL is an error.
func Open(ctx context.Context, opts Options, out Deliverer, m *metrics.Metrics) (Bus, error) {
	if opts.RedisURL == "" {
		log.Info().Str("module", "bus").Msg("no redis url, using local bus")
		return NewLocal(out, m), nil
	}
	ropts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout > 0 {
		ropts.DialTimeout = opts.DialTimeout
	}
	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, dialBudget(opts.DialTimeout))
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Warn().Err(err).Str("module", "bus").Str("addr", ropts.Addr).Msg("redis unavailable, using local bus")
		return NewLocal(out, m), nil
	}

	r := NewRedis(client, opts.Channel, out, m)
	if err := r.Subscribe(pingCtx); err != nil {
		_ = r.Close()
		log.Warn().Err(err).Str("module", "bus").Msg("redis subscribe failed, using local bus")
		return NewLocal(out, m), nil
	}
	log.Info().Str("module", "bus").Str("addr", ropts.Addr).Str("channel", r.channel).Msg("using redis bus")
	return r, nil
}

func dialBudget(d time.Duration) time.Duration {
	if d <= 0 {
		return 3 * time.Second
	}
	return d
}
