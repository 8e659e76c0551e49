package models

import "time"

// Message 聊天消息，创建后不可变，只能被整体清空删除。
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	Nickname  string    `gorm:"size:64;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_msg_created_at"`
}

// FileRecord 文件元数据，文件内容存储在磁盘上，数据库只保存路径。
type FileRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Nickname   string    `gorm:"size:64;not null"`
	FileName   string    `gorm:"size:255;not null"`
	StoredPath string    `gorm:"size:512;not null"`
	MimeType   string    `gorm:"size:128;not null"`
	Size       int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index:idx_file_created_at"`
}

// Session 登录会话，token 通过 cookie 下发，登出时标记 RevokedAt。
type Session struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	Username  string    `gorm:"size:64;not null"`
	Nickname  string    `gorm:"size:64;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
