package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Cache         CacheConfig
	Fio           FioConfig
	Mail          MailConfig
	OIDC          OIDCConfig
	Deadlines     DeadlineConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN renders the lib/pq keyword connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	PasswordResetTTL  time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the Redis-backed ledger aggregate cache.
type CacheConfig struct {
	Enabled   bool
	LedgerTTL time.Duration
}

// FioConfig configures the bank statement feed and the payment descriptor.
type FioConfig struct {
	Token         string
	BaseURL       string
	AccountNumber string
	BankCode      string
	DefaultDays   int
	MinInterval   time.Duration
}

// MailConfig configures outbound SMTP delivery.
type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Sender     string
	AdminEmail string
	Workers    int
}

// OIDCConfig configures the external identity provider login.
type OIDCConfig struct {
	Issuer           string
	ClientID         string
	ClientSecretPath string
	RedirectURL      string
}

// DeadlineConfig holds the day-based self-service cut-offs.
type DeadlineConfig struct {
	CoachEnrollDays         int
	CoachUnenrollDays       int
	CoachExcuseDays         int
	ParticipantEnrollDays   int
	ParticipantUnenrollDays int
	ParticipantExcuseDays   int
}

// NotificationConfig holds thresholds used by scheduled jobs and alerts.
type NotificationConfig struct {
	FeatureExpiryNoticeHours int
	MinAbsencesForAlert      int
	UnclosedOccurrenceDays   int
	WageDueDays              int
	FeeDueDays               int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("TIMEZONE")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		PasswordResetTTL:  parseDuration(v.GetString("PASSWORD_RESET_TTL"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:   v.GetBool("ENABLE_CACHE"),
		LedgerTTL: parseDuration(v.GetString("LEDGER_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Fio = FioConfig{
		Token:         v.GetString("FIO_API_TOKEN"),
		BaseURL:       v.GetString("FIO_BASE_URL"),
		AccountNumber: v.GetString("FIO_ACCOUNT_NUMBER"),
		BankCode:      v.GetString("FIO_BANK_CODE"),
		DefaultDays:   v.GetInt("FIO_DEFAULT_DAYS"),
		MinInterval:   parseDuration(v.GetString("FIO_MIN_INTERVAL"), 30*time.Second),
	}

	cfg.Mail = MailConfig{
		Host:       v.GetString("SMTP_HOST"),
		Port:       v.GetInt("SMTP_PORT"),
		Username:   v.GetString("SMTP_USERNAME"),
		Password:   v.GetString("SMTP_PASSWORD"),
		Sender:     v.GetString("NOTIFICATION_SENDER"),
		AdminEmail: v.GetString("ADMIN_EMAIL"),
		Workers:    v.GetInt("MAIL_WORKERS"),
	}

	cfg.OIDC = OIDCConfig{
		Issuer:           v.GetString("OIDC_ISSUER"),
		ClientID:         v.GetString("OIDC_CLIENT_ID"),
		ClientSecretPath: v.GetString("OIDC_CLIENT_SECRET_PATH"),
		RedirectURL:      v.GetString("OIDC_REDIRECT_URL"),
	}

	cfg.Deadlines = DeadlineConfig{
		CoachEnrollDays:         v.GetInt("COACH_ENROLL_DEADLINE_DAYS"),
		CoachUnenrollDays:       v.GetInt("COACH_UNENROLL_DEADLINE_DAYS"),
		CoachExcuseDays:         v.GetInt("COACH_EXCUSE_DEADLINE_DAYS"),
		ParticipantEnrollDays:   v.GetInt("PARTICIPANT_ENROLL_DEADLINE_DAYS"),
		ParticipantUnenrollDays: v.GetInt("PARTICIPANT_UNENROLL_DEADLINE_DAYS"),
		ParticipantExcuseDays:   v.GetInt("PARTICIPANT_EXCUSE_DEADLINE_DAYS"),
	}

	cfg.Notifications = NotificationConfig{
		FeatureExpiryNoticeHours: v.GetInt("FEATURE_EXPIRY_NOTICE_HOURS"),
		MinAbsencesForAlert:      v.GetInt("MIN_ABSENCES_FOR_ALERT"),
		UnclosedOccurrenceDays:   v.GetInt("UNCLOSED_OCCURRENCE_DEADLINE_DAYS"),
		WageDueDays:              v.GetInt("WAGE_DUE_DAYS"),
		FeeDueDays:               v.GetInt("FEE_DUE_DAYS"),
	}

	return cfg, nil
}

// Location resolves the configured civil timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("TIMEZONE", "Europe/Prague")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "vzs_club")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("PASSWORD_RESET_TTL", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("LEDGER_CACHE_TTL", "10m")

	v.SetDefault("FIO_API_TOKEN", "")
	v.SetDefault("FIO_BASE_URL", "https://fioapi.fio.cz/v1/rest")
	v.SetDefault("FIO_ACCOUNT_NUMBER", "")
	v.SetDefault("FIO_BANK_CODE", "2010")
	v.SetDefault("FIO_DEFAULT_DAYS", 7)
	v.SetDefault("FIO_MIN_INTERVAL", "30s")

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 25)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("NOTIFICATION_SENDER", "noreply@localhost")
	v.SetDefault("ADMIN_EMAIL", "admin@localhost")
	v.SetDefault("MAIL_WORKERS", 2)

	v.SetDefault("OIDC_ISSUER", "")
	v.SetDefault("OIDC_CLIENT_ID", "")
	v.SetDefault("OIDC_CLIENT_SECRET_PATH", "")
	v.SetDefault("OIDC_REDIRECT_URL", "")

	v.SetDefault("COACH_ENROLL_DEADLINE_DAYS", 1)
	v.SetDefault("COACH_UNENROLL_DEADLINE_DAYS", 14)
	v.SetDefault("COACH_EXCUSE_DEADLINE_DAYS", 21)
	v.SetDefault("PARTICIPANT_ENROLL_DEADLINE_DAYS", 1)
	v.SetDefault("PARTICIPANT_UNENROLL_DEADLINE_DAYS", 1)
	v.SetDefault("PARTICIPANT_EXCUSE_DEADLINE_DAYS", 1)

	v.SetDefault("FEATURE_EXPIRY_NOTICE_HOURS", 720)
	v.SetDefault("MIN_ABSENCES_FOR_ALERT", 3)
	v.SetDefault("UNCLOSED_OCCURRENCE_DEADLINE_DAYS", 2)
	v.SetDefault("WAGE_DUE_DAYS", 14)
	v.SetDefault("FEE_DUE_DAYS", 14)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
