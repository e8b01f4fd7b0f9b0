package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // agents are not browsers; origin checks add no protection here
	},
}

// wsConn adapts a *websocket.Conn's message framing onto the Conn
// interface: each inbound text message is delivered through an io.Pipe as
// a single NDJSON line, and each outbound line (already newline-terminated
// by FrameWriter) is sent as one text message with the newline stripped.
type wsConn struct {
	ws    *websocket.Conn
	pipeR *io.PipeReader
	pipeW *io.PipeWriter
}

func newWSConn(ws *websocket.Conn) *wsConn {
	r, w := io.Pipe()
	c := &wsConn{ws: ws, pipeR: r, pipeW: w}
	go c.pump()
	return c
}

func (c *wsConn) pump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.pipeW.CloseWithError(err)
			return
		}
		data = append(data, '\n')
		if _, err := c.pipeW.Write(data); err != nil {
			return
		}
	}
}

func (c *wsConn) Read(p []byte) (int, error) { return c.pipeR.Read(p) }

func (c *wsConn) Write(p []byte) (int, error) {
	msg := p
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.pipeR.Close()
	return c.ws.Close()
}

// ServeWS upgrades r to a WebSocket and runs the dispatcher's read loop
// over it. Suitable as an http.HandlerFunc.
func ServeWS(ctx context.Context, d *Dispatcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "error", err)
			return
		}
		conn := newWSConn(ws)
		d.ServeLogged(ctx, conn, logger)
	}
}
