// internal/service/checkout/interfaces/ws_push.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/service/checkout/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// PushHub 维护所有活跃的 WebSocket 连接，把订单通知实时推给在线用户。
// 实现 port.NotificationProducer：用户不在线时直接成功返回，
// Kafka 通道才是通知的可靠主路，这里只是给前端的即时反馈。
type PushHub struct {
	clients    map[string]*pushClient // 使用 UserID 作为 Key
	register   chan *pushClient
	unregister chan *pushClient
	done       chan struct{} // Run 退出后关闭，解除迟到的注册/注销
	lock       sync.RWMutex
}

func NewPushHub() *PushHub {
	return &PushHub{
		clients:    make(map[string]*pushClient),
		register:   make(chan *pushClient),
		unregister: make(chan *pushClient),
		done:       make(chan struct{}),
	}
}

// Run 处理连接注册与注销，直到 ctx 取消。
func (h *PushHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			if old, ok := h.clients[client.userID]; ok {
				close(old.send) // 同一用户的旧连接被新连接顶替
			}
			h.clients[client.userID] = client
			h.lock.Unlock()
			logger.L().Info().Str("user", client.userID).Msg("push client registered")

		case client := <-h.unregister:
			h.lock.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.lock.Unlock()
			logger.L().Info().Str("user", client.userID).Msg("push client unregistered")

		case <-ctx.Done():
			h.lock.Lock()
			for _, client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[string]*pushClient)
			h.lock.Unlock()
			return
		}
	}
}

// SendOrderNotification 把通知推给在线用户；不在线是正常情况，不算失败。
func (h *PushHub) SendOrderNotification(_ context.Context, event *domain.NotificationEvent) error {
	h.lock.RLock()
	client, ok := h.clients[event.UserID]
	h.lock.RUnlock()
	if !ok {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case client.send <- payload:
	default:
		// 发送缓冲满说明连接已经死了，交给 pump 去收尸。
		logger.L().Warn().Str("user", event.UserID).Msg("push buffer full, dropping realtime notification")
	}
	return nil
}

// ServeWS 把 HTTP 请求升级为 WebSocket 并接入 Hub。
func (h *PushHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &pushClient{hub: h, conn: conn, send: make(chan []byte, 256), userID: userID}
	if !h.add(client) {
		conn.Close() // Hub 已停机，升级成功也只能关掉
		return
	}

	go client.writePump()
	go client.readPump()
}

// add 把连接交给 Run 协程；Hub 已停止时返回 false，连接由调用方处置。
func (h *PushHub) add(c *pushClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove 对已停止的 Hub 是空操作，pump 在停机期间退场不会被卡住。
func (h *PushHub) remove(c *pushClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// pushClient 是一个 WebSocket 连接的代表。
type pushClient struct {
	hub    *PushHub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func (c *pushClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *pushClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512) // 客户端只该发心跳
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
