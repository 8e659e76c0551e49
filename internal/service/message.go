package service

import (
	"strings"
	"time"

	"groupchat/internal/models"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

// MessageService 封装消息相关的业务逻辑。
type MessageService struct {
	db        *gorm.DB
	sanitizer *bluemonday.Policy
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db, sanitizer: bluemonday.StrictPolicy()}
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	Nickname  string    `json:"nickname"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Create 持久化一条消息。昵称由调用方从会话解析，正文先过 HTML 清洗。
func (s *MessageService) Create(nickname, content string) (*MessageDTO, error) {
	content = strings.TrimSpace(s.sanitizer.Sanitize(content))
	if content == "" {
		return nil, ErrEmptyMessage
	}
	msg := models.Message{Nickname: nickname, Content: content}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &MessageDTO{Type: "message", ID: msg.ID, Nickname: msg.Nickname, Content: msg.Content, CreatedAt: msg.CreatedAt}, nil
}

// ListAll 返回全部消息，按创建时间升序，同一时刻按 id 升序。
func (s *MessageService) ListAll() ([]MessageDTO, error) {
	var msgs []models.Message
	if err := s.db.Order("created_at asc, id asc").Find(&msgs).Error; err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{Type: "message", ID: m.ID, Nickname: m.Nickname, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return out, nil
}
