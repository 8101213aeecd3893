package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/adapters/rtc"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/apptest"
	"github.com/dkeye/Relay/internal/app/bus"
	"github.com/dkeye/Relay/internal/app/calls"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/metrics"
	"github.com/dkeye/Relay/internal/storage/memory"
)

type routerFixture struct {
	engine *gin.Engine
	store  *memory.Store
	orch   *orch.Orchestrator
	gate   *auth.HMACGate
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Mode: "test", ReadLimit: 200000, PingPeriod: time.Minute, SendBuffer: 8, InternalToken: "hook"}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	store := memory.New(nil)
	reg := app.NewRegistry(nil, m)
	b := bus.NewLocal(reg, m)
	o := &orch.Orchestrator{Registry: reg, Bus: b, Store: store, Calls: calls.NewService(store, nil, m)}
	gate, err := auth.NewHMACGate("secret")
	require.NoError(t, err)

	engine := SetupRouter(context.Background(), cfg, Deps{
		Orch:     o,
		Gate:     gate,
		Backing:  b.Backing(),
		Gatherer: promReg,
		WebRTC:   rtc.DefaultWebRTCConfig(),
	})
	return &routerFixture{engine: engine, store: store, orch: o, gate: gate}
}

func (f *routerFixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","bus":"local","connections":0}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	f.orch.Registry.Connect(context.Background(), 1, apptest.NewConn())

	w := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relay_connections 1")
}

func TestICEServers(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodGet, "/api/v1/webrtc/ice-servers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := f.gate.Issue(1, time.Minute)
	require.NoError(t, err)
	w = f.do(http.MethodGet, "/api/v1/webrtc/ice-servers", "", map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"ice_servers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, body.ICEServers[0].URLs)
}

func TestInternalEvents(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	room, err := f.store.CreateRoom(ctx, "team", true, 1)
	require.NoError(t, err)
	member, outsider := apptest.NewConn(), apptest.NewConn()
	f.orch.Registry.Connect(ctx, 1, member)
	f.orch.Registry.Connect(ctx, 2, outsider)
	hook := map[string]string{"X-Internal-Token": "hook"}

	w := f.do(http.MethodPost, "/internal/events", `{"event":"user.created","data":{"id":3}}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/internal/events", `{"event":"room.created","data":{"room_id":404}}`, hook)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := fmt.Sprintf(`{"event":"room.created","data":{"room_id":%d}}`, room.ID)
	w = f.do(http.MethodPost, "/internal/events", body, hook)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, member.Count(core.EventRoomCreated))
	assert.Zero(t, outsider.Count(core.EventRoomCreated))

	w = f.do(http.MethodPost, "/internal/events", `{"event":"user.created","data":{"id":3,"full_name":"Eve"}}`, hook)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, outsider.Count(core.EventUserCreated))

	w = f.do(http.MethodPost, "/internal/events", `{"event":"message.delete","data":{"id":77}}`, hook)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/internal/events", `{"event":"call.invite","data":{}}`, hook)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
