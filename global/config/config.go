package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ankit-kumarpr/lastchat/logger"
)

// AppConfig is the process-wide configuration, populated from the
// environment. A .env file in the working directory is honored for local
// runs; real deployments set the variables directly.
type AppConfig struct {
	NodeID   int64
	HTTPAddr string

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NatsURL empty means single-gateway mode: no cross-node relay.
	NatsURL string

	JWTSecret []byte
	JWTTTL    time.Duration

	// Relay tuning.
	SendQueueSize  int
	WriteWait      time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	MaxFrameBytes  int64
	HistoryPageMax int64
}

var Global AppConfig

// Load reads .env (if present) and the environment into Global.
func Load() {
	if err := godotenv.Load(); err == nil {
		logger.Infof("[config] loaded .env")
	}

	Global = AppConfig{
		NodeID:   envInt64("LASTCHAT_NODE_ID", 1),
		HTTPAddr: envStr("LASTCHAT_HTTP_ADDR", ":4000"),

		MongoURI:      envStr("LASTCHAT_MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: envStr("LASTCHAT_MONGO_DB", "lastchat"),

		RedisAddr:     envStr("LASTCHAT_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: envStr("LASTCHAT_REDIS_PASSWORD", ""),
		RedisDB:       int(envInt64("LASTCHAT_REDIS_DB", 0)),

		NatsURL: envStr("LASTCHAT_NATS_URL", ""),

		JWTSecret: []byte(envStr("LASTCHAT_JWT_SECRET", "dev-secret-change-me")),
		JWTTTL:    envDuration("LASTCHAT_JWT_TTL", 2*time.Hour),

		SendQueueSize:  int(envInt64("LASTCHAT_SEND_QUEUE", 256)),
		WriteWait:      envDuration("LASTCHAT_WRITE_WAIT", 10*time.Second),
		PingInterval:   envDuration("LASTCHAT_PING_INTERVAL", 25*time.Second),
		PongWait:       envDuration("LASTCHAT_PONG_WAIT", 60*time.Second),
		MaxFrameBytes:  envInt64("LASTCHAT_MAX_FRAME_BYTES", 64<<10),
		HistoryPageMax: envInt64("LASTCHAT_HISTORY_PAGE_MAX", 200),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warnf("[config] bad %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warnf("[config] bad %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
