package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	OTLPEndpoint string

	// PayrollBatchSize is the fixed number of outbound payments per payroll run.
	PayrollBatchSize int

	Facilitator FacilitatorConfig
	Treasury    TreasuryConfig
	Rail        RailConfig
	Callback    CallbackConfig
	Archive     ArchiveConfig
	RateLimit   RateLimitConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// FacilitatorConfig configures the external payment verification service.
type FacilitatorConfig struct {
	URL     string
	Sandbox bool
	Timeout time.Duration
}

// TreasuryConfig configures the on-chain treasury gateway.
type TreasuryConfig struct {
	URL             string
	ContractAddress string
	SignerKeyRef    string
	Network         string
	Token           string
	Timeout         time.Duration
	Mock            bool

	ListenerEnabled  bool
	ListenerInterval time.Duration
}

// RailConfig configures the fiat payout rail.
type RailConfig struct {
	URL          string
	APIKey       string
	Mock         bool
	PollInterval time.Duration
	PollAttempts int
}

// CallbackConfig configures the inbound confirmation callback.
type CallbackConfig struct {
	SharedSecret string
}

// ArchiveConfig configures the settlement receipt archiver.
type ArchiveConfig struct {
	Enabled    bool
	Dir        string
	SigningKey string
	QueueSize  int
}

// RateLimitConfig configures the redis-backed callback limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CallbackRate  float64
	CallbackBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "paygate"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),
		PayrollBatchSize: getenvInt("PAYROLL_BATCH_SIZE", 10),
		Facilitator: FacilitatorConfig{
			URL:     strings.TrimSpace(getenv("FACILITATOR_URL", "")),
			Sandbox: getenvBool("FACILITATOR_SANDBOX", false),
			Timeout: getenvDuration("FACILITATOR_TIMEOUT", 10*time.Second),
		},
		Treasury: TreasuryConfig{
			URL:              strings.TrimSpace(getenv("TREASURY_URL", "")),
			ContractAddress:  strings.TrimSpace(getenv("TREASURY_CONTRACT_ADDRESS", "")),
			SignerKeyRef:     strings.TrimSpace(getenv("TREASURY_SIGNER_KEY", "")),
			Network:          getenv("TREASURY_NETWORK", "avalanche"),
			Token:            getenv("TREASURY_TOKEN", "USDC"),
			Timeout:          getenvDuration("TREASURY_TIMEOUT", 60*time.Second),
			Mock:             getenvBool("TREASURY_MOCK", false),
			ListenerEnabled:  getenvBool("TREASURY_LISTENER_ENABLED", false),
			ListenerInterval: getenvDuration("TREASURY_LISTENER_INTERVAL", 15*time.Second),
		},
		Rail: RailConfig{
			URL:          strings.TrimSpace(getenv("RAIL_URL", "")),
			APIKey:       strings.TrimSpace(getenv("RAIL_API_KEY", "")),
			Mock:         getenvBool("RAIL_MOCK", true),
			PollInterval: getenvDuration("RAIL_POLL_INTERVAL", 500*time.Millisecond),
			PollAttempts: getenvInt("RAIL_POLL_ATTEMPTS", 20),
		},
		Callback: CallbackConfig{
			SharedSecret: strings.TrimSpace(getenv("CALLBACK_SHARED_SECRET", "")),
		},
		Archive: ArchiveConfig{
			Enabled:    getenvBool("ARCHIVE_ENABLED", true),
			Dir:        getenv("ARCHIVE_DIR", "archive"),
			SigningKey: strings.TrimSpace(getenv("ARCHIVE_SIGNING_KEY", "")),
			QueueSize:  getenvInt("ARCHIVE_QUEUE_SIZE", 64),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			CallbackRate:  getenvFloat("RATE_LIMIT_CALLBACK_RATE", 20),
			CallbackBurst: getenvInt("RATE_LIMIT_CALLBACK_BURST", 40),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paygate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
	}

	return cfg
}

// IsProduction reports whether the deployment is flagged as production.
func (c Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

// BypassEnabled reports whether the sandbox proof bypass may be wired in.
// It is keyed off explicit deployment configuration: the facilitator must be
// flagged as sandbox and the deployment must not be production. The bypass
// literal itself is public knowledge and never enough on its own.
func (c Config) BypassEnabled() bool {
	return c.Facilitator.Sandbox && !c.IsProduction()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
