package bus_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/apptest"
	"github.com/dkeye/Relay/internal/app/bus"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/metrics"
)

type recorder struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (r *recorder) Deliver(f core.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// unreachable points at a port nothing listens on.
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
}

func redisOrSkip(t *testing.T) string {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return "redis://localhost:6379/0"
}

func envelope(t *testing.T, event string, data any, to ...domain.UserID) core.Envelope {
	t.Helper()
	env, err := core.NewEnvelope(event, data, to...)
	require.NoError(t, err)
	return env
}

func TestLocal_DeliversSynchronously(t *testing.T) {
	out := &recorder{}
	b := bus.NewLocal(out, nil)

	require.NoError(t, b.Publish(context.Background(), envelope(t, core.EventUserCreated, map[string]int{"id": 1})))
	assert.Equal(t, 1, out.len())
	assert.Equal(t, bus.BackingLocal, b.Backing())
}

func TestRedis_PublishFailureFallsBackLocally(t *testing.T) {
	reg := prometheus.NewRegistry()
	out := &recorder{}
	b := bus.NewRedis(unreachable(), "", out, metrics.New(reg))
	t.Cleanup(func() { _ = b.Close() })

	err := b.Publish(context.Background(), envelope(t, core.EventPresenceUpdate, core.PresencePayload{UserID: 1, Status: core.PresenceOnline}))
	require.NoError(t, err)
	assert.Equal(t, 1, out.len())

	expected := `
# HELP relay_bus_fallbacks_total Publishes delivered locally because the broker was unreachable.
# TYPE relay_bus_fallbacks_total counter
relay_bus_fallbacks_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "relay_bus_fallbacks_total"))
}

func TestOpen_FallsBackWhenRedisIsDown(t *testing.T) {
	b, err := bus.Open(context.Background(), bus.Options{
		RedisURL:    "redis://127.0.0.1:1/0",
		DialTimeout: 200 * time.Millisecond,
	}, &recorder{}, nil)
	require.NoError(t, err)
	assert.Equal(t, bus.BackingLocal, b.Backing())
}

func TestOpen_RejectsBadURL(t *testing.T) {
	_, err := bus.Open(context.Background(), bus.Options{RedisURL: "http://nope"}, &recorder{}, nil)
	assert.Error(t, err)
}

func TestOpen_EmptyURLIsLocal(t *testing.T) {
	b, err := bus.Open(context.Background(), bus.Options{}, &recorder{}, nil)
	require.NoError(t, err)
	assert.Equal(t, bus.BackingLocal, b.Backing())
}

// Same envelope, same connections: both backings must reach the same users.
func TestFanoutEquivalence(t *testing.T) {
	url := redisOrSkip(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setup := func() (*app.Registry, map[domain.UserID]*apptest.Conn) {
		reg := app.NewRegistry(nil, nil)
		conns := map[domain.UserID]*apptest.Conn{}
		for _, id := range []domain.UserID{1, 2, 3} {
			conns[id] = apptest.NewConn()
			reg.Connect(ctx, id, conns[id])
		}
		return reg, conns
	}

	localReg, localConns := setup()
	local := bus.NewLocal(localReg, nil)

	redisReg, redisConns := setup()
	distributed, err := bus.Open(ctx, bus.Options{RedisURL: url, Channel: "test:relay:" + t.Name()}, redisReg, nil)
	require.NoError(t, err)
	require.Equal(t, bus.BackingRedis, distributed.Backing())
	t.Cleanup(func() { _ = distributed.Close() })
	go func() { _ = distributed.Run(ctx) }()

	to := domain.UserID(2)
	envs := []core.Envelope{
		envelope(t, core.EventRoomCreated, domain.Room{ID: 1, Name: "r"}, 1, 3),
		envelope(t, core.EventMessageReceive, core.MessageReceivePayload{ID: 1, Content: "hi", SenderID: 1, ReceiverID: &to}),
		envelope(t, core.EventUserCreated, map[string]int{"id": 4}),
	}
	for _, env := range envs {
		require.NoError(t, local.Publish(ctx, env))
		require.NoError(t, distributed.Publish(ctx, env))
	}

	for id, lc := range localConns {
		rc := redisConns[id]
		assert.Eventually(t, func() bool { return len(rc.Frames()) == len(lc.Frames()) }, 2*time.Second, 20*time.Millisecond, "user %d", id)
		assert.Equal(t, lc.Events(), rc.Events(), "user %d", id)
	}
}
