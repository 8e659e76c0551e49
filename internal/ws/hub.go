package ws

import (
	"encoding/json"
	"errors"
	"sync/atomic"

	"groupchat/internal/filestore"
	"groupchat/internal/metrics"
	"groupchat/internal/service"

	"github.com/rs/zerolog/log"
)

// InboundEvent 客户端发来的事件。昵称永远不从载荷里取，
// 由 hub 按连接绑定的会话解析。
type InboundEvent struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Active   bool   `json:"active,omitempty"`
}

// 客户端事件类型。
const (
	EventMessage     = "message"
	EventFile        = "file"
	EventClear       = "clear"
	EventTyping      = "typing"
	EventFileSending = "file_sending"
	EventError       = "error"
)

type clientEvent struct {
	client *Client
	in     InboundEvent
}

// Hub 是广播核心：维护在线连接表，并把所有会改状态的事件串行化，
// 先持久化成功再广播。run 循环是唯一的序列化点，持久化与广播的临界区
// 不会交错，整体清空因此天然与并发写入互斥。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan clientEvent
	online     int32

	messages *service.MessageService
	files    *service.FileService
	history  *service.HistoryService
}

func NewHub(messages *service.MessageService, files *service.FileService, history *service.HistoryService) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan clientEvent, 256),
		messages:   messages,
		files:      files,
		history:    history,
	}
}

// Online 返回当前在线连接数。
func (h *Hub) Online() int { return int(atomic.LoadInt32(&h.online)) }

// Run 处理注册、注销和客户端事件，必须在单独的 goroutine 里运行。
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Inc()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				atomic.StoreInt32(&h.online, int32(len(h.clients)))
				metrics.WsConnections.Dec()
			}
		case evt := <-h.events:
			// 连接可能在事件排队期间被注销，此时事件直接丢弃。
			if _, ok := h.clients[evt.client]; !ok {
				continue
			}
			h.dispatch(evt.client, evt.in)
		}
	}
}

func (h *Hub) dispatch(c *Client, in InboundEvent) {
	switch in.Type {
	case EventMessage:
		h.handleMessage(c, in)
	case EventFile:
		h.handleFile(c, in)
	case EventClear:
		h.handleClear(c)
	case EventTyping, EventFileSending:
		h.handleIndicator(c, in)
	default:
		h.sendError(c, "unknown event type")
	}
}

// handleMessage 持久化消息后广播给包括发送者在内的所有连接。
// 持久化失败时不广播，只通知发送者。
func (h *Hub) handleMessage(c *Client, in InboundEvent) {
	dto, err := h.messages.Create(c.nickname, in.Content)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			h.sendError(c, "message is empty")
			return
		}
		log.Error().Err(err).Str("nickname", c.nickname).Msg("persist message")
		h.sendError(c, "failed to save message")
		return
	}
	metrics.WsMessagesTotal.Inc()
	h.broadcast(marshal(dto), nil)
}

// handleFile 文件先过类型准入再写盘落库，被拒绝时只通知发送者。
func (h *Hub) handleFile(c *Client, in InboundEvent) {
	dto, err := h.files.Create(c.nickname, in.FileName, in.FileData)
	if err != nil {
		var reject *filestore.TypeNotAllowedError
		if errors.As(err, &reject) {
			h.sendError(c, reject.Error())
			return
		}
		log.Error().Err(err).Str("nickname", c.nickname).Str("file_name", in.FileName).Msg("persist file")
		h.sendError(c, "failed to save file")
		return
	}
	metrics.WsFilesTotal.Inc()
	h.broadcast(marshal(dto), nil)
}

// handleClear 清空全部历史。事务提交成功后才广播清空通知。
func (h *Hub) handleClear(c *Client) {
	if err := h.history.ClearAll(); err != nil {
		log.Error().Err(err).Str("nickname", c.nickname).Msg("clear history")
		h.sendError(c, "failed to clear history")
		return
	}
	metrics.WsClearsTotal.Inc()
	h.broadcast(marshal(map[string]any{"type": EventClear}), nil)
}

// handleIndicator 输入中/发送文件中指示，不持久化，发送者自己不收。
func (h *Hub) handleIndicator(c *Client, in InboundEvent) {
	evt := map[string]any{"type": in.Type, "nickname": c.nickname, "active": in.Active}
	h.broadcast(marshal(evt), c)
}

// broadcast 按 run 循环的顺序把消息发给所有连接，except 不为 nil 时跳过它。
// 发送缓冲已满的慢连接直接断开，避免拖慢其他人。
func (h *Hub) broadcast(msg []byte, except *Client) {
	if msg == nil {
		return
	}
	for c := range h.clients {
		if c == except {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Dec()
		}
	}
}

// sendError 只向事件的发送者回一个错误事件。
func (h *Hub) sendError(c *Client, reason string) {
	metrics.WsEventErrorsTotal.Inc()
	msg := marshal(map[string]any{"type": EventError, "error": reason})
	select {
	case c.send <- msg:
	default:
	}
}

func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbound event")
		return nil
	}
	return b
}
