package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Call
	FeeBypassWindow time.Duration // 支払い後に通話料金が免除される期間

	// Signaling
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSSendQueueSize   int           // 接続ごとの送信キュー長（溢れた分は破棄）
	WSWriteTimeout    time.Duration // 1メッセージの書き込みタイムアウト
	WSPongTimeout     time.Duration // pong未受信で接続を切断するまでの時間
	WSPingInterval    time.Duration // pingの送信間隔
	WSMaxMessageSize  int64         // 1メッセージの最大サイズ（シグナリングペイロード上限）

	// Rate Limit
	RateLimitGeneral   int // API全般のレート（req/min/クライアント）
	RateLimitAdmission int // 通話開始のレート（req/min/クライアント）

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む（開発用、無くてもエラーにしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_URL")
	}

	// Optional fields with defaults
	cfg.FeeBypassWindow = getEnvDuration("FEE_BYPASS_WINDOW", 24*time.Hour)
	cfg.WSReadBufferSize = getEnvInt("WS_READ_BUFFER_SIZE", 1024)
	cfg.WSWriteBufferSize = getEnvInt("WS_WRITE_BUFFER_SIZE", 1024)
	cfg.WSSendQueueSize = getEnvInt("WS_SEND_QUEUE_SIZE", 64)
	cfg.WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second)
	cfg.WSPongTimeout = getEnvDuration("WS_PONG_TIMEOUT", 60*time.Second)
	cfg.WSPingInterval = getEnvDuration("WS_PING_INTERVAL", 54*time.Second)
	cfg.WSMaxMessageSize = getEnvInt64("WS_MAX_MESSAGE_SIZE", 65536)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAdmission = getEnvInt("RATE_LIMIT_ADMISSION", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
