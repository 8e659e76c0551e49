package server

import (
	"net/http"
	"time"

	"groupchat/internal/auth"
	"groupchat/internal/config"
	"groupchat/internal/filestore"
	"groupchat/internal/metrics"
	"groupchat/internal/mw"
	"groupchat/internal/service"
	"groupchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, store *filestore.Store, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，避免登录口被暴力尝试。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	msgSvc := service.NewMessageService(db)
	fileSvc := service.NewFileService(db, store)
	h := NewHandler(cfg, db, store, msgSvc, fileSvc)

	api := r.Group("/api/v1")
	api.POST("/auth/login", h.Login)

	// 需要会话 cookie 的业务接口。
	authed := api.Group("")
	authed.Use(auth.Middleware(db))
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/messages", h.ListMessages)
	authed.GET("/files", h.ListFiles)
	authed.GET("/files/:id/download", h.DownloadFile)

	r.GET("/ws", ws.Serve(hub, db, cfg))

	r.Static("/static", "./web")
	r.GET("/", func(c *gin.Context) { c.File("./web/index.html") })

	return r
}
