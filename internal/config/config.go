package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableGuestAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt; empty disables admin login

	CORSOrigins []string

	// CatalogPath overrides the embedded level catalog.
	CatalogPath      string
	AutoAdvance      time.Duration
	StreakWindow     time.Duration
	SessionCacheSize int

	// Progress service; empty ProgressURL keeps submissions local.
	ProgressURL          string
	ProgressTokenURL     string
	ProgressClientID     string
	ProgressClientSecret string
	OutboxInterval       time.Duration

	LogLevel string
	LogFile  string
}

// FromEnv reads the environment, after loading an optional .env file from
// the working directory. Variables already set win over .env entries.
func FromEnv() Config {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("AUTH_HMAC_SECRET", "dev-secret-change-me")
	v.SetDefault("ENABLE_GUEST_AUTH", true)
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASS_HASH", "")
	v.SetDefault("CATALOG_PATH", "")
	v.SetDefault("AUTO_ADVANCE_MS", 600)
	v.SetDefault("STREAK_WINDOW_SEC", 10)
	v.SetDefault("SESSION_CACHE_SIZE", 1024)
	v.SetDefault("PROGRESS_URL", "")
	v.SetDefault("PROGRESS_TOKEN_URL", "")
	v.SetDefault("PROGRESS_CLIENT_ID", "")
	v.SetDefault("PROGRESS_CLIENT_SECRET", "")
	v.SetDefault("OUTBOX_INTERVAL_SEC", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	return v
}

func FromViper(v *viper.Viper) Config {
	mode := Mode(strings.ToLower(v.GetString("MODE")))
	if mode != ModeOnline {
		mode = ModeOffline
	}
	defOrigins := "http://localhost:3000,http://localhost:5173"
	if mode == ModeOnline {
		defOrigins = "https://valuejourney.mindengage.ai"
	}
	origins := csv(v.GetString("CORS_ORIGINS"))
	if len(origins) == 0 {
		origins = csv(defOrigins)
	}
	return Config{
		Mode:                 mode,
		HTTPAddr:             v.GetString("HTTP_ADDR"),
		DBDriver:             v.GetString("DB_DRIVER"),
		DBDSN:                v.GetString("DB_DSN"),
		AuthHMACSecret:       v.GetString("AUTH_HMAC_SECRET"),
		EnableGuestAuth:      v.GetBool("ENABLE_GUEST_AUTH"),
		AdminUser:            v.GetString("ADMIN_USER"),
		AdminPassHash:        v.GetString("ADMIN_PASS_HASH"),
		CORSOrigins:          origins,
		CatalogPath:          v.GetString("CATALOG_PATH"),
		AutoAdvance:          time.Duration(v.GetInt("AUTO_ADVANCE_MS")) * time.Millisecond,
		StreakWindow:         time.Duration(v.GetInt("STREAK_WINDOW_SEC")) * time.Second,
		SessionCacheSize:     v.GetInt("SESSION_CACHE_SIZE"),
		ProgressURL:          v.GetString("PROGRESS_URL"),
		ProgressTokenURL:     v.GetString("PROGRESS_TOKEN_URL"),
		ProgressClientID:     v.GetString("PROGRESS_CLIENT_ID"),
		ProgressClientSecret: v.GetString("PROGRESS_CLIENT_SECRET"),
		OutboxInterval:       time.Duration(v.GetInt("OUTBOX_INTERVAL_SEC")) * time.Second,
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFile:              v.GetString("LOG_FILE"),
	}
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
