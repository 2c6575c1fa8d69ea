package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultGeminiBaseURL  = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel    = "gemini-2.5-flash-image"
	DefaultGuestCredits   = 3
	DefaultRequestTimeout = 5 * time.Minute
)

// Config aggregates runtime configuration for the API, the admin console and supporting services.
type Config struct {
	AppEnv string

	HTTPListenAddr  string
	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	MySQLDSN string

	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiDefaultModel string
	GeminiHTTPTimeout  time.Duration

	RequestTimeout      time.Duration
	GuestDefaultCredits int

	SessionJWTSecret string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	IdentityCacheTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel        string
	LogFormat       string
	LogFile         string
	DefaultLanguage string

	TelegramAlertBotToken string
	TelegramAlertChatID   int64

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3PublicRead    bool
	S3Prefix        string
}

// IsProduction reports whether raw error details must be hidden from callers.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration from an optional .env file, an optional config file and
// environment variables, in increasing order of precedence.
func Load(configFile string) (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := Config{
		AppEnv:                strings.ToLower(v.GetString("APP_ENV")),
		HTTPListenAddr:        v.GetString("HTTP_LISTEN_ADDR"),
		AdminListenAddr:       v.GetString("ADMIN_LISTEN_ADDR"),
		AdminUsername:         v.GetString("ADMIN_USERNAME"),
		AdminPassword:         v.GetString("ADMIN_PASSWORD"),
		MySQLDSN:              v.GetString("MYSQL_DSN"),
		GeminiAPIKey:          v.GetString("GEMINI_API_KEY"),
		GeminiBaseURL:         normalizeBaseURL(v.GetString("GEMINI_BASE_URL"), DefaultGeminiBaseURL),
		GeminiDefaultModel:    v.GetString("GEMINI_DEFAULT_MODEL"),
		GeminiHTTPTimeout:     time.Second * time.Duration(v.GetInt("GEMINI_HTTP_TIMEOUT_SECONDS")),
		RequestTimeout:        time.Second * time.Duration(v.GetInt("REQUEST_TIMEOUT_SECONDS")),
		GuestDefaultCredits:   v.GetInt("GUEST_DEFAULT_CREDITS"),
		SessionJWTSecret:      v.GetString("SESSION_JWT_SECRET"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		IdentityCacheTTL:      time.Second * time.Duration(v.GetInt("IDENTITY_CACHE_TTL_SECONDS")),
		RateLimitRPS:          v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:        v.GetInt("RATE_LIMIT_BURST"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		LogFile:               v.GetString("LOG_FILE"),
		DefaultLanguage:       v.GetString("DEFAULT_LANGUAGE"),
		TelegramAlertBotToken: v.GetString("TELEGRAM_ALERT_BOT_TOKEN"),
		TelegramAlertChatID:   v.GetInt64("TELEGRAM_ALERT_CHAT_ID"),
		S3Endpoint:            v.GetString("S3_ENDPOINT"),
		S3Region:              v.GetString("S3_REGION"),
		S3AccessKey:           v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:           v.GetString("S3_SECRET_KEY"),
		S3Bucket:              v.GetString("S3_BUCKET"),
		S3PublicBaseURL:       v.GetString("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:        v.GetBool("S3_USE_PATH_STYLE"),
		S3PublicRead:          v.GetBool("S3_PUBLIC_READ"),
		S3Prefix:              v.GetString("S3_PREFIX"),
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.GuestDefaultCredits < 0 {
		cfg.GuestDefaultCredits = DefaultGuestCredits
	}

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.SessionJWTSecret == "" {
		missing = append(missing, "SESSION_JWT_SECRET")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: %v", missing)
	}

	return cfg, nil
}

// LoadDatabaseDSN resolves only the MySQL DSN so migrations can run without the full service config.
func LoadDatabaseDSN(configFile string) (string, error) {
	if err := loadEnvFile(); err != nil {
		return "", err
	}
	v := viper.New()
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}
	dsn := v.GetString("MYSQL_DSN")
	if dsn == "" {
		return "", fmt.Errorf("missing required configuration: [MYSQL_DSN]")
	}
	return dsn, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_LISTEN_ADDR", ":8080")
	v.SetDefault("ADMIN_LISTEN_ADDR", ":8081")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "change-me")
	v.SetDefault("GEMINI_BASE_URL", DefaultGeminiBaseURL)
	v.SetDefault("GEMINI_DEFAULT_MODEL", DefaultGeminiModel)
	v.SetDefault("GEMINI_HTTP_TIMEOUT_SECONDS", 120)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", int(DefaultRequestTimeout/time.Second))
	v.SetDefault("GUEST_DEFAULT_CREDITS", DefaultGuestCredits)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDENTITY_CACHE_TTL_SECONDS", 300)
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 3)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DEFAULT_LANGUAGE", "en")
	v.SetDefault("S3_PREFIX", "generations")
}

func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}
	return strings.TrimRight(parsed.String(), "/")
}

// loadEnvFile loads the first .env found. A missing file is not an error; the
// environment may already be populated by the deployment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
