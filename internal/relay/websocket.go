package relay

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

type wsConn struct {
	conn net.Conn
}

func (c wsConn) WriteText(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return wsutil.WriteServerText(c.conn, data)
}

func (c wsConn) Close() error {
	return c.conn.Close()
}

// Handler upgrades the request to a WebSocket and registers the connection.
// Inbound frames are only read to notice the client going away.
func Handler(registry *Registry, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		client := registry.Add(wsConn{conn: conn})
		logger.Debug("client connected", zap.String("remote", r.RemoteAddr))
		go func() {
			defer registry.Remove(client)
			drain(conn)
		}()
	}
}

// drain discards client frames until a close frame or a read error.
func drain(conn net.Conn) {
	for {
		hdr, err := ws.ReadHeader(conn)
		if err != nil {
			return
		}
		if _, err := io.CopyN(io.Discard, conn, hdr.Length); err != nil {
			return
		}
		if hdr.OpCode == ws.OpClose {
			return
		}
	}
}
