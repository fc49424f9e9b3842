package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig PostgreSQL 配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config cardiolens-data 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// Vendor 厂家云端 API（睡眠日志 / 运动日志 / 日汇总）
	Vendor struct {
		BaseURL   string // 厂家 HTTP API 地址
		APIKey    string // API Key
		APISecret string // API Secret
		Timeout   time.Duration
	}

	// Ingest 分钟样本摄入管线
	Ingest struct {
		Topic         string // 设备上报 MQTT 主题，如 "cardiolens/+/intraday"
		Stream        string // Redis Streams 输出流，如 "cardiolens:samples:stream"
		ConsumerGroup string // Streams 消费者组
		ConsumerName  string // Streams 消费者名（空则自动生成）
		BatchSize     int    // 每次 XREADGROUP 的消息数
	}

	// Analysis RHR 估算引擎参数（空/0 使用引擎默认值）
	Analysis struct {
		NightPoolPolicy  string // "all" 或 "pre-midnight"
		CooldownMinutes  int
		NoiseFloorBPM    int
		WindowMinutes    int
		WindowMinSamples int
	}

	// HTTP 查询 API
	HTTP struct {
		ListenAddr   string
		MaxRangeDays int // range 查询的最大天数
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置（带默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "cardiolens")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "cardiolens-data")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Vendor.BaseURL = getEnv("VENDOR_BASE_URL", "https://api.fitwear.example.com")
	cfg.Vendor.APIKey = getEnv("VENDOR_API_KEY", "")
	cfg.Vendor.APISecret = getEnv("VENDOR_API_SECRET", "")
	cfg.Vendor.Timeout = time.Duration(getEnvInt("VENDOR_TIMEOUT_SECONDS", 30)) * time.Second

	cfg.Ingest.Topic = getEnv("INGEST_MQTT_TOPIC", "cardiolens/+/intraday")
	cfg.Ingest.Stream = getEnv("INGEST_STREAM", "cardiolens:samples:stream")
	cfg.Ingest.ConsumerGroup = getEnv("INGEST_CONSUMER_GROUP", "cardiolens-data")
	cfg.Ingest.ConsumerName = getEnv("INGEST_CONSUMER_NAME", "")
	cfg.Ingest.BatchSize = getEnvInt("INGEST_BATCH_SIZE", 10)

	cfg.Analysis.NightPoolPolicy = getEnv("ANALYSIS_NIGHT_POOL_POLICY", "all")
	cfg.Analysis.CooldownMinutes = getEnvInt("ANALYSIS_COOLDOWN_MINUTES", 0)
	cfg.Analysis.NoiseFloorBPM = getEnvInt("ANALYSIS_NOISE_FLOOR_BPM", 0)
	cfg.Analysis.WindowMinutes = getEnvInt("ANALYSIS_WINDOW_MINUTES", 0)
	cfg.Analysis.WindowMinSamples = getEnvInt("ANALYSIS_WINDOW_MIN_SAMPLES", 0)

	cfg.HTTP.ListenAddr = getEnv("HTTP_LISTEN_ADDR", ":8086")
	cfg.HTTP.MaxRangeDays = getEnvInt("HTTP_MAX_RANGE_DAYS", 92)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Analysis.NightPoolPolicy != "all" && cfg.Analysis.NightPoolPolicy != "pre-midnight" {
		return nil, fmt.Errorf("invalid ANALYSIS_NIGHT_POOL_POLICY: %s", cfg.Analysis.NightPoolPolicy)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
