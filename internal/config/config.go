package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// ConfigPathEnv overrides ConfigPath when --config is not given.
const ConfigPathEnv = "BOOKBAZAAR_CONFIG"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	defaultPort       = "3001"
	defaultSessionTTL = 7 * 24 * time.Hour
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`
	SessionTTL  string `yaml:"sessionTTL"`

	SuperAdminKey string `yaml:"superAdminKey"`

	SignupRateLimitPerMinute int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int `yaml:"loginRateLimitPerMinute"`
	OrderRateLimitPerMinute  int `yaml:"orderRateLimitPerMinute"`

	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	TrustedProxyCIDRs  []string `yaml:"trustedProxyCIDRs"`

	Mail  MailConfig  `yaml:"mail"`
	Minio MinioConfig `yaml:"minio"`

	CoverMaxBytes   int64 `yaml:"coverMaxBytes"`
	MailConcurrency int   `yaml:"mailConcurrency"`
}

// MailConfig holds SMTP settings. An empty host selects the log mailer.
type MailConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	FromName  string `yaml:"fromName"`
	FromEmail string `yaml:"fromEmail"`
}

// MinioConfig holds object storage settings. An empty endpoint disables cover uploads.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// IsProduction reports whether the service runs in production mode.
func (c FileConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ResolvePath picks the explicit flag value, then BOOKBAZAAR_CONFIG, then ConfigPath.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(ConfigPathEnv)); p != "" {
		return p
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml). A missing file is
// allowed so the service can be configured from the environment alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	str("PORT", &cfg.Port)
	str("NODE_ENV", &cfg.Environment)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("JWT_ISSUER", &cfg.JWTIssuer)
	str("JWT_AUDIENCE", &cfg.JWTAudience)
	str("JWT_LEEWAY", &cfg.JWTLeeway)
	str("SESSION_TTL", &cfg.SessionTTL)
	str("SUPER_ADMIN_KEY", &cfg.SuperAdminKey)
	integer("SIGNUP_RATE_LIMIT_PER_MINUTE", &cfg.SignupRateLimitPerMinute)
	integer("LOGIN_RATE_LIMIT_PER_MINUTE", &cfg.LoginRateLimitPerMinute)
	integer("ORDER_RATE_LIMIT_PER_MINUTE", &cfg.OrderRateLimitPerMinute)
	list("CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)
	list("TRUSTED_PROXY_CIDRS", &cfg.TrustedProxyCIDRs)

	str("MAIL_HOST", &cfg.Mail.Host)
	integer("MAIL_PORT", &cfg.Mail.Port)
	str("MAIL_USER", &cfg.Mail.User)
	str("MAIL_PASS", &cfg.Mail.Pass)
	str("MAIL_FROM_NAME", &cfg.Mail.FromName)
	str("MAIL_FROM_EMAIL", &cfg.Mail.FromEmail)

	str("MINIO_ENDPOINT", &cfg.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	str("MINIO_BUCKET", &cfg.Minio.Bucket)
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Minio.UseSSL = b
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	cfg.Environment = strings.ToLower(cfg.Environment)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Minio.Bucket == "" {
		cfg.Minio.Bucket = "bookbazaar"
	}
	if cfg.Mail.FromName == "" {
		cfg.Mail.FromName = "BookBazaar"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("config: port must be numeric, got %q", cfg.Port)
	}
	if cfg.Environment != EnvDevelopment && cfg.Environment != EnvProduction {
		return fmt.Errorf("config: unknown environment %q", cfg.Environment)
	}
	if cfg.IsProduction() {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required in production (set DATABASE_URL)")
		}
		if len(cfg.JWTSecret) < 32 {
			return errors.New("config: jwtSecret must be at least 32 bytes in production (set JWT_SECRET)")
		}
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.OrderRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.CoverMaxBytes < 0 {
		return errors.New("config: coverMaxBytes must be >= 0")
	}
	if cfg.Minio.Endpoint != "" && (cfg.Minio.AccessKey == "" || cfg.Minio.SecretKey == "") {
		return errors.New("config: minio endpoint requires accessKey and secretKey")
	}
	if cfg.Mail.Host != "" && cfg.Mail.FromEmail == "" {
		return errors.New("config: mail host requires fromEmail")
	}
	return nil
}

// ParseSessionTTL parses the session TTL, defaulting to seven days.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return defaultSessionTTL, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("invalid sessionTTL duration: must be positive")
	}
	return dur, nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
