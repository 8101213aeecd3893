package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

// closeWith sends a close frame with code and drops the socket.
// Oversized frames need no call here: the read limit makes gorilla send 1009 itself.
func closeWith(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = ws.Close()
}
