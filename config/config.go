package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load env from .env when present. Values already set in the
	// environment win over the file.
	godotenv.Load()
}

// Config carries every tunable of the bridge. It is built once in main()
// and handed to the components that need it; nothing reads the environment
// after startup, so changing a value requires a restart.
type Config struct {
	Port      string
	Fidelimax FidelimaxConfig
	LojaDB    DatabaseConfig
	PDVDB     DatabaseConfig
	PDV       PDVConfig
	Retry     RetryConfig
}

type FidelimaxConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

type DatabaseConfig struct {
	// DSN, when set, is used verbatim and the individual fields are
	// ignored (mirrors the original connection-string mode used for
	// Windows Integrated Security setups).
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type PDVConfig struct {
	// LastSaleQuery must return the most recent sale row of the PDV.
	// The column layout varies per store system, so the result is probed
	// by name heuristics rather than scanned into a fixed struct.
	LastSaleQuery string
}

type RetryConfig struct {
	Interval      time.Duration
	InitialDelay  time.Duration
	MaxTentativas int
}

func Load() *Config {
	return &Config{
		Port: stringFromEnv("PORT", "3001"),
		Fidelimax: FidelimaxConfig{
			BaseURL:   stringFromEnv("FIDELIMAX_BASE_URL", "https://api.fidelimax.com.br/api/Integracao"),
			AuthToken: strings.TrimSpace(os.Getenv("FIDELIMAX_AUTH_TOKEN")),
			Timeout:   time.Duration(intFromEnv("FIDELIMAX_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		LojaDB: databaseFromEnv("LOJA_DB", DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1433,
			User:     "fideliza",
			Database: "FidelizaBridge",
		}),
		PDVDB: databaseFromEnv("PDV_DB", DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1435,
			User:     "fideliza",
			Database: "BancoSammi",
		}),
		PDV: PDVConfig{
			LastSaleQuery: stringFromEnv("PDV_LAST_SALE_QUERY", ""),
		},
		Retry: RetryConfig{
			Interval:      time.Duration(intFromEnv("RETRY_INTERVAL_MINUTES", 5)) * time.Minute,
			InitialDelay:  time.Duration(intFromEnv("RETRY_INITIAL_DELAY_SECONDS", 60)) * time.Second,
			MaxTentativas: intFromEnv("RETRY_MAX_TENTATIVAS", 5),
		},
	}
}

func databaseFromEnv(prefix string, def DatabaseConfig) DatabaseConfig {
	cfg := DatabaseConfig{
		DSN:             strings.TrimSpace(os.Getenv(prefix + "_DSN")),
		Host:            stringFromEnv(prefix+"_HOST", def.Host),
		Port:            intFromEnv(prefix+"_PORT", def.Port),
		User:            stringFromEnv(prefix+"_USER", def.User),
		Password:        os.Getenv(prefix + "_PASSWORD"),
		Database:        stringFromEnv(prefix+"_NAME", def.Database),
		MaxOpenConns:    intFromEnv(prefix+"_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    intFromEnv(prefix+"_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(intFromEnv(prefix+"_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		ConnMaxIdleTime: time.Duration(intFromEnv(prefix+"_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
	}
	return cfg
}

// SQLServerDSN builds the sqlserver URL for gorm. The PDV installs in the
// field run without TLS, so encryption stays disabled unless the DSN is
// provided explicitly.
func (c DatabaseConfig) SQLServerDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
	}
	q := url.Values{}
	q.Set("database", c.Database)
	q.Set("encrypt", "disable")
	q.Set("TrustServerCertificate", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// MaskedDSN is what the config endpoint may show: credentials stripped.
func (c DatabaseConfig) MaskedDSN() string {
	if c.DSN != "" {
		if u, err := url.Parse(c.DSN); err == nil && u.User != nil {
			u.User = url.User(u.User.Username())
			return u.String()
		}
		return "(connection string)"
	}
	return fmt.Sprintf("sqlserver://%s@%s:%d?database=%s", c.User, c.Host, c.Port, c.Database)
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
