package realtime

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsClient struct {
	peer *Peer
	conn *websocket.Conn
	srv  *Server
}

// ServeWS upgrades GET /socket/ws and runs the connection until it closes.
func (s *Server) ServeWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{
		peer: s.connect(c.Request, TransportWebSocket),
		conn: conn,
		srv:  s,
	}
	go client.writePump()
	client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.srv.disconnect(c.peer)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.logger.Debug("websocket read", zap.String("conn_id", c.peer.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			c.srv.logger.Warn("malformed socket frame", zap.String("conn_id", c.peer.ID))
			continue
		}
		c.srv.handle(c.peer, msg)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.peer.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
