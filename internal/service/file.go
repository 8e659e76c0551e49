package service

import (
	"errors"
	"fmt"
	"time"

	"groupchat/internal/filestore"
	"groupchat/internal/models"

	"gorm.io/gorm"
)

// FileService 封装文件上传相关的业务逻辑：准入、写盘、落库。
type FileService struct {
	db    *gorm.DB
	store *filestore.Store
}

func NewFileService(db *gorm.DB, store *filestore.Store) *FileService {
	return &FileService{db: db, store: store}
}

// FileDTO 是对外输出的文件数据，URL 指向下载端点。
type FileDTO struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	Nickname  string    `json:"nickname"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

func fileURL(id uint) string {
	return fmt.Sprintf("/api/v1/files/%d/download", id)
}

// Create 处理一次上传：类型准入失败返回 TypeNotAllowedError，
// 写盘成功后才写元数据，保证不会出现指向不存在内容的记录。
func (s *FileService) Create(nickname, fileName, payload string) (*FileDTO, error) {
	storedPath, mimeType, size, err := s.store.Save(fileName, payload)
	if err != nil {
		return nil, err
	}
	rec := models.FileRecord{Nickname: nickname, FileName: fileName, StoredPath: storedPath, MimeType: mimeType, Size: size}
	if err := s.db.Create(&rec).Error; err != nil {
		// 落库失败时回收已写入的内容，避免孤儿文件。
		s.store.Remove([]string{storedPath})
		return nil, err
	}
	return s.toDTO(&rec), nil
}

// ListAll 返回全部文件元数据，按创建时间升序。
func (s *FileService) ListAll() ([]FileDTO, error) {
	var recs []models.FileRecord
	if err := s.db.Order("created_at asc, id asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]FileDTO, 0, len(recs))
	for i := range recs {
		out = append(out, *s.toDTO(&recs[i]))
	}
	return out, nil
}

// Get 按 id 查询一条文件记录，供下载端点使用。
func (s *FileService) Get(id uint) (*models.FileRecord, error) {
	var rec models.FileRecord
	if err := s.db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *FileService) toDTO(rec *models.FileRecord) *FileDTO {
	return &FileDTO{
		Type:      "file",
		ID:        rec.ID,
		Nickname:  rec.Nickname,
		FileName:  rec.FileName,
		MimeType:  rec.MimeType,
		Size:      rec.Size,
		URL:       fileURL(rec.ID),
		CreatedAt: rec.CreatedAt,
	}
}
