// Package bus carries published envelopes to every process's local connections.
//
// Local delivers in-process. Redis round-trips through a pub/sub channel so
// every instance, the publisher included, delivers exactly once from the
// subscription. Both end in the same Deliverer, so fanout is identical.
package bus

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
)

const (
	BackingLocal = "local"
	BackingRedis = "redis"
)

// Deliverer hands a serialized envelope to local connections.
type Deliverer interface {
	Deliver(frame core.Frame)
}

type Bus interface {
	// Publish never fails because the distributed backing is down;
	// it degrades to local delivery instead.
	Publish(ctx context.Context, env core.Envelope) error
	// Run consumes the distributed backing until ctx is done.
	Run(ctx context.Context) error
	Backing() string
	Close() error
}
