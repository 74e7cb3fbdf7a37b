// internal/config/config.go
//
// 集中讀取服務設定。啟動時先嘗試載入 .env，再從環境變數取值；
// 每個取值都會以 debug 等級記錄來源（環境變數或預設值）。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/carol-yiyun/transfer-ledger/internal/logger"
)

// 儲存後端
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env             string
	HTTPAddr        string
	StoreDriver     string
	DatabaseURL     string
	SnapshotPath    string
	RedisAddr       string
	BalanceCacheTTL time.Duration
	TransferTimeout time.Duration
	HistoryLimit    int
	OTelEnabled     bool
	OTelEndpoint    string
	OTelInsecure    bool
	CORSOrigins     []string
}

// Load 讀取 .env（不存在時僅警告）並組出 Config。
func Load(log *logger.Logger) Config {
	if err := godotenv.Load(); err != nil && log != nil {
		log.Warn("No .env file found, relying on system environment variables")
	}

	driver := strings.ToLower(GetEnv("STORE_DRIVER", DriverMemory, log))
	switch driver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		if log != nil {
			log.Warn("Unknown STORE_DRIVER, falling back to memory", "driver", driver)
		}
		driver = DriverMemory
	}

	return Config{
		Env:             GetEnv("APP_ENV", "development", log),
		HTTPAddr:        GetEnv("HTTP_ADDR", ":8080", log),
		StoreDriver:     driver,
		DatabaseURL:     GetEnv("DATABASE_URL", "", log),
		SnapshotPath:    GetEnv("SNAPSHOT_PATH", "data.json", log),
		RedisAddr:       GetEnv("REDIS_ADDR", "", log),
		BalanceCacheTTL: GetEnvAsDuration("BALANCE_CACHE_TTL", 30*time.Second, log),
		TransferTimeout: GetEnvAsDuration("TRANSFER_TIMEOUT", 5*time.Second, log),
		HistoryLimit:    GetEnvAsInt("HISTORY_LIMIT", 50, log),
		OTelEnabled:     GetEnvAsBool("OTEL_ENABLED", false, log),
		OTelEndpoint:    GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		OTelInsecure:    GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
		CORSOrigins:     GetEnvAsList("CORS_ALLOWED_ORIGINS", nil, log),
	}
}

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("Environment variable found, using environment", "environment", val)
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(strings.TrimSpace(valStr))
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as int, using default", "providedVal", valStr, "defaultVal", defaultVal, "error", err)
		}
		return defaultVal
	}
	return i
}

// GetEnvAsDuration 接受 time.ParseDuration 格式（例如 "5s"）；純數字視為秒。
func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	valStr = strings.TrimSpace(valStr)
	if secs, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(valStr)
	if err != nil || d <= 0 {
		if log != nil {
			log.Warn("Environment variable could not be parsed as duration, using default", "providedVal", valStr, "defaultVal", defaultVal)
		}
		return defaultVal
	}
	return d
}

func GetEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(valStr))
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as bool, using default", "env_var", key, "providedVal", valStr)
		}
		return defaultVal
	}
	return b
}

// GetEnvAsList 以逗號分隔取值，忽略空白項目。
func GetEnvAsList(key string, defaultVal []string, log *logger.Logger) []string {
	raw := GetEnv(key, "", log)
	if strings.TrimSpace(raw) == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
