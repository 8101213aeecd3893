package bus

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/metrics"
)

type Local struct {
	out     Deliverer
	metrics *metrics.Metrics
}

func NewLocal(out Deliverer, m *metrics.Metrics) *Local {
	return &Local{out: out, metrics: m}
}

func (l *Local) Publish(_ context.Context, env core.Envelope) error {
	frame, err := env.Frame()
	if err != nil {
		return err
	}
	l.metrics.Published(env.Event, BackingLocal)
	l.out.Deliver(frame)
	return nil
}

func (l *Local) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (l *Local) Backing() string { return BackingLocal }

func (l *Local) Close() error { return nil }
