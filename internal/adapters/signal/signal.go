package signal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/core"
)

type ChatWSController struct {
	Orch       *orch.Orchestrator
	Gate       auth.Gate
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewChatWSController(o *orch.Orchestrator, gate auth.Gate) *ChatWSController {
	return &ChatWSController{
		Orch:       o,
		Gate:       gate,
		ReadLimit:  200000,
		PingPeriod: 54 * time.Second,
		SendBuffer: 64,
	}
}

// WsSignalConn queues outbound frames for the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// credential reads ?token= first, then an Authorization bearer.
func credential(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// HandleChat upgrades, authenticates and serves one client until it goes away.
// ctx is the server lifetime; cancelling it closes the socket.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	uid, err := ctl.Gate.VerifyConnectionCredential(c.Request.Context(), credential(c.Request))
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("remote", c.ClientIP()).Msg("handshake rejected")
		closeWith(ws, websocket.ClosePolicyViolation, "Invalid token")
		return
	}

	ws.SetReadLimit(ctl.ReadLimit)
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.SendBuffer),
	}
	log.Info().Str("module", "signal").Stringer("user_id", uid).Msg("new WS connection")

	client := ctl.Orch.Connect(ctx, uid, conn)
	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, client, conn)
}
