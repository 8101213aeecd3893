package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app/orch"
)

const writeWait = 5 * time.Second

func (ctl *ChatWSController) pongWait() time.Duration {
	return ctl.PingPeriod * 10 / 9
}

func (ctl *ChatWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			closeWith(c.conn, websocket.CloseGoingAway, "server shutting down")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump hands frames to the orchestrator strictly in arrival order.
func (ctl *ChatWSController) readPump(ctx context.Context, client *orch.Client, c *WsSignalConn) {
	defer func() {
		ctl.Orch.Disconnect(context.WithoutCancel(ctx), client)
		c.Close()
		log.Info().Str("module", "signal").Stringer("user_id", client.UserID).Msg("readPump closing")
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logReadError(err, client)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
		ctl.Orch.OnFrame(ctx, client, data)
	}
}

func logReadError(err error, client *orch.Client) {
	evt := log.Debug()
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		evt = log.Warn()
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		evt = log.Warn()
	}
	evt.Err(err).Str("module", "signal").Stringer("user_id", client.UserID).Msg("readPump read error")
}
