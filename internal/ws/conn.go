package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"groupchat/internal/auth"
	"groupchat/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Client 一条在线 WebSocket 连接，绑定到会话解析出的昵称。
// 同一个会话可以同时开多个连接（多标签页）。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	nickname string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 是 WebSocket 接入点。会话校验发生在协议升级之前：
// 没有有效会话的请求直接 401，连接根本不会注册到 hub，
// 也就不可能收发任何事件。绑定在连接存续期内有效，不逐事件复查。
func Serve(h *Hub, db *gorm.DB, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := auth.SessionFromRequest(db, c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), nickname: sess.Nickname}
		h.register <- client

		go client.writePump()
		client.readPump(cfg)
	}
}

// readPump 逐条读取客户端事件并塞进 hub 的事件队列，
// 单条连接的事件顺序由此得到保留。
func (c *Client) readPump(cfg config.Config) {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	// base64 载荷比原始内容大约 1/3，上限按两倍留余量。
	c.conn.SetReadLimit(int64(cfg.MaxUploadMB) << 21)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in InboundEvent
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		c.hub.events <- clientEvent{client: c, in: in}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
