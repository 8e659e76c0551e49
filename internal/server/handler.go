package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"groupchat/internal/auth"
	"groupchat/internal/config"
	"groupchat/internal/filestore"
	"groupchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	cfg     config.Config
	db      *gorm.DB
	store   *filestore.Store
	msgSvc  *service.MessageService
	fileSvc *service.FileService
}

func NewHandler(cfg config.Config, db *gorm.DB, store *filestore.Store, msgSvc *service.MessageService, fileSvc *service.FileService) *Handler {
	return &Handler{cfg: cfg, db: db, store: store, msgSvc: msgSvc, fileSvc: fileSvc}
}

// Login 校验静态凭据并签发会话 cookie。
// 失败统一返回 success=false，不暴露是哪个字段错了。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}
	nickname, ok := auth.ValidateUser(h.cfg, req.Username, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}
	ttl := time.Duration(h.cfg.SessionTTLHours) * time.Hour
	sess, err := auth.CreateSession(h.db, req.Username, nickname, ttl)
	if err != nil {
		log.Error().Err(err).Str("username", req.Username).Msg("create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.SetCookie(auth.CookieName, sess.Token, int(ttl.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "nickname": nickname})
}

// Logout 撤销当前会话并清除 cookie。已开启的 WebSocket 连接
// 不会被踢掉，下次重连时会因会话失效被拒绝。
func (h *Handler) Logout(c *gin.Context) {
	sess := auth.GetSession(c)
	if sess != nil {
		if err := auth.RevokeSession(h.db, sess.Token); err != nil {
			log.Error().Err(err).Str("username", sess.Username).Msg("revoke session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
			return
		}
	}
	c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListMessages 返回全部消息，按创建时间升序，用于首次加载和重连回放。
func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.msgSvc.ListAll()
	if err != nil {
		log.Error().Err(err).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ListFiles 返回全部文件元数据，按创建时间升序。
func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.fileSvc.ListAll()
	if err != nil {
		log.Error().Err(err).Msg("list files")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// DownloadFile 按记录里保存的路径把文件内容流回客户端。
func (h *Handler) DownloadFile(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	rec, err := h.fileSvc.Get(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		log.Error().Err(err).Int("file_id", id).Msg("get file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get file"})
		return
	}
	f, err := h.store.Open(rec.StoredPath)
	if err != nil {
		log.Error().Err(err).Str("path", rec.StoredPath).Msg("open stored file")
		c.JSON(http.StatusNotFound, gin.H{"error": "file content missing"})
		return
	}
	defer f.Close()
	c.Header("Content-Type", rec.MimeType)
	c.Header("Content-Disposition", `attachment; filename="`+rec.FileName+`"`)
	http.ServeContent(c.Writer, c.Request, rec.FileName, rec.CreatedAt, f)
}
