package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Logger       LoggerConfig
	Store        StoreConfig
	API          APIConfig
	Connectivity ConnectivityConfig
	Scanner      ScannerConfig
	Sync         SyncConfig
	Redis        RedisConfig
}

type ServerConfig struct {
	AppEnv   string
	HTTPPort string
	GRPCPort string

	// Cashier scope for cart lines and request headers.
	UserID     string
	MerchantID string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type StoreConfig struct {
	Path string
}

type APIConfig struct {
	BaseURL        string
	LookupTimeout  time.Duration
	RequestTimeout time.Duration
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	// GRPCTarget switches the health probe to the grpc health service when set.
	GRPCTarget string
}

type ScannerConfig struct {
	Mode             string
	ScannerID        string
	AutoAdd          bool
	StructuredPrefix string
	Cooldown         time.Duration
	CacheTTL         time.Duration
	LookupAttempts   int
}

type SyncConfig struct {
	AutoInterval time.Duration
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			HTTPPort: getEnv("HTTP_PORT", ":8090"),
			GRPCPort: getEnv("GRPC_PORT", ":8092"),

			UserID:     getEnv("POS_USER_ID", ""),
			MerchantID: getEnv("POS_MERCHANT_ID", ""),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Store: StoreConfig{
			Path: getEnv("STORE_PATH", "data/pharmapp.db"),
		},
		API: APIConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://localhost:8000"),
			LookupTimeout:  getEnvDuration("API_LOOKUP_TIMEOUT", 10*time.Second),
			RequestTimeout: getEnvDuration("API_REQUEST_TIMEOUT", 30*time.Second),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: getEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 30*time.Second),
			ProbeTimeout:  getEnvDuration("CONNECTIVITY_PROBE_TIMEOUT", 5*time.Second),
			GRPCTarget:    getEnv("CONNECTIVITY_GRPC_TARGET", ""),
		},
		Scanner: ScannerConfig{
			Mode:             getEnv("SCANNER_MODE", "retail"),
			ScannerID:        getEnv("SCANNER_ID", "barcode-scanner"),
			AutoAdd:          getEnvBool("SCANNER_AUTO_ADD", true),
			StructuredPrefix: getEnv("SCANNER_STRUCTURED_PREFIX", "PHARM"),
			Cooldown:         getEnvDuration("SCANNER_COOLDOWN", 500*time.Millisecond),
			CacheTTL:         getEnvDuration("SCANNER_CACHE_TTL", 30*time.Second),
			LookupAttempts:   getEnvInt("SCANNER_LOOKUP_ATTEMPTS", 1),
		},
		Sync: SyncConfig{
			AutoInterval: getEnvDuration("SYNC_AUTO_INTERVAL", 5*time.Minute),
			MaxRetries:   getEnvInt("SYNC_MAX_RETRIES", 3),
			RetryInitial: getEnvDuration("SYNC_RETRY_INITIAL", time.Second),
			RetryMax:     getEnvDuration("SYNC_RETRY_MAX", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
