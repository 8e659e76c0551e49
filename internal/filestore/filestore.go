package filestore

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// allowedTypes 扩展名到 MIME 类型的允许列表。类型完全由文件名推导，
// 表是封闭的，保证同一个文件名在任何机器上得到同样的判定。
var allowedTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".pdf":  "application/pdf",
}

// TypeNotAllowedError 文件类型被拒绝，错误文本直接展示给发送者。
type TypeNotAllowedError struct {
	FileName string
}

func (e *TypeNotAllowedError) Error() string {
	return fmt.Sprintf("file type not allowed: %s", e.FileName)
}

// DetectType 根据文件名扩展名判定 MIME 类型。
func DetectType(fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return "", &TypeNotAllowedError{FileName: fileName}
	}
	mimeType, ok := allowedTypes[ext]
	if !ok {
		return "", &TypeNotAllowedError{FileName: fileName}
	}
	return mimeType, nil
}

// Store 把通过准入检查的文件内容写到上传目录，文件名随机生成。
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// decodePayload 兼容浏览器 FileReader 的 data URL 与裸 base64 两种格式。
func decodePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ";base64,")
		if idx < 0 {
			return nil, fmt.Errorf("unsupported data url encoding")
		}
		payload = payload[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(payload)
}

// Save 先做类型准入，再解码写盘。返回存储路径、MIME 类型和字节数。
// 任何一步失败都不会留下可被引用的文件。
func (s *Store) Save(fileName, payload string) (storedPath, mimeType string, size int64, err error) {
	mimeType, err = DetectType(fileName)
	if err != nil {
		return "", "", 0, err
	}
	data, err := decodePayload(payload)
	if err != nil {
		return "", "", 0, fmt.Errorf("decode payload: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	storedPath = filepath.Join(s.dir, uuid.NewString()+ext)
	if err := os.WriteFile(storedPath, data, 0o644); err != nil {
		_ = os.Remove(storedPath)
		return "", "", 0, fmt.Errorf("write file: %w", err)
	}
	return storedPath, mimeType, int64(len(data)), nil
}

// Open 打开一个已存储的文件，拒绝越出上传目录的路径。
func (s *Store) Open(storedPath string) (*os.File, error) {
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(storedPath)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(absPath, absDir+string(os.PathSeparator)) {
		return nil, fmt.Errorf("path outside upload dir: %s", storedPath)
	}
	return os.Open(absPath)
}

// Remove 清空历史后删除磁盘文件，尽力而为，失败不影响已提交的清空。
func (s *Store) Remove(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
