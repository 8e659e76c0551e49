package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"groupchat/internal/config"
	"groupchat/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CookieName 会话 cookie 的名称，登录后由 HTTP 层下发，WebSocket 握手时复用。
const CookieName = "chat_session"

var ErrSessionInvalid = errors.New("session invalid")

// ValidateUser 在静态凭据表里查找用户，匹配成功返回昵称。
// 使用常数时间比较，且不区分是用户名还是密码错误。
func ValidateUser(cfg config.Config, username, password string) (string, bool) {
	for _, c := range cfg.Credentials {
		userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
		if userOK && passOK {
			return c.Nickname, true
		}
	}
	return "", false
}

func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateSession 为登录成功的用户签发会话并落库。
func CreateSession(db *gorm.DB, username, nickname string, ttl time.Duration) (*models.Session, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	s := models.Session{Token: token, Username: username, Nickname: nickname, ExpiresAt: time.Now().Add(ttl)}
	if err := db.Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// LookupSession 校验 token，已撤销或已过期的会话一律视为无效。
func LookupSession(db *gorm.DB, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}
	var s models.Session
	err := db.Where("token = ? AND revoked_at IS NULL AND expires_at > ?", token, time.Now()).First(&s).Error
	if err != nil {
		return nil, ErrSessionInvalid
	}
	return &s, nil
}

// RevokeSession 登出时标记会话撤销。
func RevokeSession(db *gorm.DB, token string) error {
	now := time.Now()
	return db.Model(&models.Session{}).Where("token = ?", token).Update("revoked_at", &now).Error
}

// SessionFromRequest 从请求 cookie 中解析并校验会话。
func SessionFromRequest(db *gorm.DB, r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	return LookupSession(db, cookie.Value)
}

// Middleware 会话鉴权中间件，校验失败直接 401。
func Middleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := SessionFromRequest(db, c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set("session", sess)
		c.Next()
	}
}

// GetSession 从 gin 上下文取出 Middleware 放入的会话。
func GetSession(c *gin.Context) *models.Session {
	if v, ok := c.Get("session"); ok {
		if s, ok2 := v.(*models.Session); ok2 {
			return s
		}
	}
	return nil
}
