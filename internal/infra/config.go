package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token backends.
const (
	TokenBackendMemory = "memory"
	TokenBackendERC20  = "erc20"
)

// defaultCustodyAddress is the custody account of the in-memory token.
const defaultCustodyAddress = "0x000000000000000000000000000000000000c057"

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	DatabaseURL        string
	DBMaxConns         int
	DBStatementTimeout time.Duration
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string
	GeoIPDBPath        string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int

	WorkerMetricsPort       string
	WatchdogIntervalSeconds int

	TokenBackend        string
	TokenNetwork        string
	TokenAddress        string
	EthRPCURL           string
	CustodyPrivateKey   string
	CustodyAddress      string
	TokenReceiptTimeout time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// An empty DATABASE_URL selects the in-memory ledger.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                  getEnv("APP_ENV", "development"),
		Port:                    getEnv("PORT", "8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		JWTIssuer:               getEnv("JWT_ISSUER", "crowdfund"),
		CORSAllowedOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		GeoIPDBPath:             os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:         time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:        time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:         time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:         getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		WorkerMetricsPort:       getEnv("WORKER_METRICS_PORT", "9090"),
		WatchdogIntervalSeconds: getEnvInt("WATCHDOG_INTERVAL_SECONDS", 30),
		TokenBackend:            strings.ToLower(getEnv("TOKEN_BACKEND", TokenBackendMemory)),
		TokenNetwork:            getEnv("TOKEN_NETWORK", "alfajores"),
		TokenAddress:            os.Getenv("TOKEN_ADDRESS"),
		EthRPCURL:               os.Getenv("ETH_RPC_URL"),
		CustodyPrivateKey:       os.Getenv("CUSTODY_PRIVATE_KEY"),
		CustodyAddress:          os.Getenv("CUSTODY_ADDRESS"),
		TokenReceiptTimeout:     time.Second * time.Duration(getEnvInt("TOKEN_RECEIPT_TIMEOUT_SECONDS", 45)),
	}

	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.TokenBackend {
	case TokenBackendMemory:
		if cfg.CustodyAddress == "" {
			cfg.CustodyAddress = defaultCustodyAddress
		}
		if !common.IsHexAddress(cfg.CustodyAddress) {
			return nil, fmt.Errorf("CUSTODY_ADDRESS %q is not a hex address", cfg.CustodyAddress)
		}
	case TokenBackendERC20:
		if cfg.EthRPCURL == "" {
			return nil, fmt.Errorf("ETH_RPC_URL is required for the erc20 token backend")
		}
		if cfg.CustodyPrivateKey == "" {
			return nil, fmt.Errorf("CUSTODY_PRIVATE_KEY is required for the erc20 token backend")
		}
		if cfg.TokenAddress != "" && !common.IsHexAddress(cfg.TokenAddress) {
			return nil, fmt.Errorf("TOKEN_ADDRESS %q is not a hex address", cfg.TokenAddress)
		}
	default:
		return nil, fmt.Errorf("unknown TOKEN_BACKEND %q", cfg.TokenBackend)
	}

	return cfg, nil
}

// IsDevelopment reports whether development-only endpoints may be served.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// UsesDatabase reports whether the ledger lives in PostgreSQL.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
