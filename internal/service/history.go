package service

import (
	"groupchat/internal/filestore"
	"groupchat/internal/models"

	"gorm.io/gorm"
)

// HistoryService 负责清空全部聊天历史。消息和文件必须在同一个事务里
// 删除：任何一步失败整体回滚，不允许出现只清了一半的状态。
type HistoryService struct {
	db    *gorm.DB
	store *filestore.Store
}

func NewHistoryService(db *gorm.DB, store *filestore.Store) *HistoryService {
	return &HistoryService{db: db, store: store}
}

// ClearAll 原子地删除所有消息和文件记录。事务提交后再尽力删除磁盘文件，
// 磁盘清理失败只会留下孤儿文件，不影响日志状态的一致性。
func (s *HistoryService) ClearAll() error {
	var paths []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var recs []models.FileRecord
		if err := tx.Select("stored_path").Find(&recs).Error; err != nil {
			return err
		}
		for _, r := range recs {
			paths = append(paths, r.StoredPath)
		}
		if err := tx.Where("1 = 1").Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.FileRecord{}).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.store.Remove(paths)
	return nil
}
