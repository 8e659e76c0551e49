package config

import (
	"errors"
	"os"
	"strconv"
)

// Credential 一条静态登录凭据，由环境变量 USER_n/PASSWORD_n/NICKNAME_n 配置。
type Credential struct {
	Username string
	Password string
	Nickname string
}

type Config struct {
	Port            string
	DatabaseDSN     string
	Env             string
	SessionTTLHours int
	UploadDir       string
	MaxUploadMB     int
	Credentials     []Credential
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// loadCredentials 按 n=1,2,... 读取凭据三元组，遇到第一个缺失的 USER_n 停止。
func loadCredentials() []Credential {
	var creds []Credential
	for i := 1; ; i++ {
		n := strconv.Itoa(i)
		user := os.Getenv("USER_" + n)
		if user == "" {
			break
		}
		nick := os.Getenv("NICKNAME_" + n)
		if nick == "" {
			nick = user
		}
		creds = append(creds, Credential{
			Username: user,
			Password: os.Getenv("PASSWORD_" + n),
			Nickname: nick,
		})
	}
	return creds
}

func Load() Config {
	return Config{
		Port:            getenv("APP_PORT", "8080"),
		DatabaseDSN:     getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=groupchat port=5432 sslmode=disable TimeZone=UTC"),
		Env:             getenv("APP_ENV", "dev"),
		SessionTTLHours: getenvInt("SESSION_TTL_HOURS", 24),
		UploadDir:       getenv("UPLOAD_DIR", "./uploads"),
		MaxUploadMB:     getenvInt("MAX_UPLOAD_MB", 32),
		Credentials:     loadCredentials(),
	}
}

// Validate 检查配置是否可用，prod 环境必须配置至少一条凭据。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.UploadDir == "" {
		return errors.New("upload dir is required")
	}
	if cfg.Env != "dev" && len(cfg.Credentials) == 0 {
		return errors.New("at least one USER_n/PASSWORD_n credential is required outside dev")
	}
	return nil
}
