package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, populated from environment
// variables with sensible defaults for local development.
type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Scout      ScoutConfig
	TextSearch TextSearchConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Uploads    UploadsConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// SearchTimeout bounds a single search request end to end. Visual
	// searches can legitimately take minutes when a challenge needs a
	// manual solve.
	SearchTimeout time.Duration
}

type BrowserConfig struct {
	Headless       bool
	ProfileDir     string
	ExecutablePath string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	DefaultTimeout time.Duration
	Prewarm        bool
}

type ScoutConfig struct {
	HomeURL          string
	AltSearchURL     string
	NavTimeout       time.Duration
	InputWaitTimeout time.Duration
	ChallengeTimeout time.Duration
	ResultTimeout    time.Duration
	ParseAttempts    int
	// TablesFile optionally overrides the built-in selector and marker
	// tables, so a markup drift fix can ship without a rebuild.
	TablesFile string
}

type TextSearchConfig struct {
	SearchURL   string
	RenderProxy string
	ProxyAPIKey string
	MinDelay    time.Duration
	MaxDelay    time.Duration
	HTTPTimeout time.Duration
	MaxResults  int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type UploadsConfig struct {
	Dir      string
	MaxBytes int64
	MaxAge   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("PORT", "8085"),
			Host:            getEnvOrDefault("HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 6*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			SearchTimeout:   getDurationOrDefault("SEARCH_TIMEOUT", 5*time.Minute),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ProfileDir:     getEnvOrDefault("BROWSER_PROFILE_DIR", ".chrome-profile"),
			ExecutablePath: getEnvOrDefault("BROWSER_EXECUTABLE_PATH", ""),
			UserAgent: getEnvOrDefault("BROWSER_USER_AGENT",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1366),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			DefaultTimeout: getDurationOrDefault("BROWSER_DEFAULT_TIMEOUT", 30*time.Second),
			Prewarm:        getBoolOrDefault("BROWSER_PREWARM", false),
		},
		Scout: ScoutConfig{
			HomeURL:          getEnvOrDefault("SCOUT_HOME_URL", "https://www.alibaba.com"),
			AltSearchURL:     getEnvOrDefault("SCOUT_ALT_SEARCH_URL", "https://www.alibaba.com/trade/search?SearchText=image+search"),
			NavTimeout:       getDurationOrDefault("SCOUT_NAV_TIMEOUT", 45*time.Second),
			InputWaitTimeout: getDurationOrDefault("SCOUT_INPUT_WAIT_TIMEOUT", 10*time.Second),
			ChallengeTimeout: getDurationOrDefault("SCOUT_CHALLENGE_TIMEOUT", 60*time.Second),
			ResultTimeout:    getDurationOrDefault("SCOUT_RESULT_TIMEOUT", 25*time.Second),
			ParseAttempts:    getIntOrDefault("SCOUT_PARSE_ATTEMPTS", 2),
			TablesFile:       getEnvOrDefault("SCOUT_TABLES_FILE", ""),
		},
		TextSearch: TextSearchConfig{
			SearchURL:   getEnvOrDefault("TEXT_SEARCH_URL", "https://www.alibaba.com/trade/search"),
			RenderProxy: getEnvOrDefault("RENDER_PROXY_URL", "https://api.scraperapi.com"),
			ProxyAPIKey: getEnvOrDefault("RENDER_PROXY_API_KEY", ""),
			MinDelay:    getDurationOrDefault("TEXT_SEARCH_MIN_DELAY", 5*time.Second),
			MaxDelay:    getDurationOrDefault("TEXT_SEARCH_MAX_DELAY", 30*time.Second),
			HTTPTimeout: getDurationOrDefault("TEXT_SEARCH_HTTP_TIMEOUT", 70*time.Second),
			MaxResults:  getIntOrDefault("TEXT_SEARCH_MAX_RESULTS", 12),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrDefault("DB_NAME", "visual_scout"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			CacheTTL: getDurationOrDefault("RESULT_CACHE_TTL", time.Hour),
		},
		Uploads: UploadsConfig{
			Dir:      getEnvOrDefault("UPLOADS_DIR", "uploads"),
			MaxBytes: int64(getIntOrDefault("UPLOADS_MAX_BYTES", 10<<20)),
			MaxAge:   getDurationOrDefault("UPLOADS_MAX_AGE", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.Scout.ParseAttempts < 1 {
		return fmt.Errorf("scout parse attempts must be at least 1")
	}
	if c.Scout.HomeURL == "" {
		return fmt.Errorf("scout home URL cannot be empty")
	}
	if c.TextSearch.MinDelay > c.TextSearch.MaxDelay {
		return fmt.Errorf("text search min delay %v exceeds max delay %v",
			c.TextSearch.MinDelay, c.TextSearch.MaxDelay)
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads max bytes must be positive")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// DatabaseURL builds a postgres connection string from the database config.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port,
		c.Database.DBName, c.Database.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
