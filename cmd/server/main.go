package main

import (
	"groupchat/internal/config"
	"groupchat/internal/db"
	"groupchat/internal/filestore"
	clog "groupchat/internal/log"
	"groupchat/internal/server"
	"groupchat/internal/service"
	"groupchat/internal/ws"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	_ = godotenv.Load()
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	store, err := filestore.New(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("init file store")
	}

	hub := ws.NewHub(
		service.NewMessageService(gdb),
		service.NewFileService(gdb, store),
		service.NewHistoryService(gdb, store),
	)
	go hub.Run()

	r := server.SetupRouter(cfg, gdb, store, hub)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
