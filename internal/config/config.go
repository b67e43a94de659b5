package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Admin         AdminConfig         `yaml:"admin"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Google        GoogleConfig        `yaml:"google"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	Exports       ExportConfig        `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type HTTPConfig struct {
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	AccessTTLMinutes   int    `yaml:"access_ttl_minutes"`
	RefreshTTLDays     int    `yaml:"refresh_ttl_days"`
	BcryptCost         int    `yaml:"bcrypt_cost"`
	RefreshCookieName  string `yaml:"refresh_cookie_name"`
	RefreshCookiePath  string `yaml:"refresh_cookie_path"`
	SecureCookies      bool   `yaml:"secure_cookies"`
}

type AdminConfig struct {
	// PendingCountIncludesCancellations widens the admin badge count to
	// cancellation requests, which also wait on an admin decision.
	PendingCountIncludesCancellations bool `yaml:"pending_count_includes_cancellations"`
}

type NotificationsConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type EmailConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SendGridKey string `yaml:"sendgrid_key"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	BaseURL     string `yaml:"base_url"`
}

type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled"`
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	GoogleCredentialsFile string `yaml:"credentials_file"`
	ScheduleSpreadsheetID string `yaml:"schedule_spreadsheet_id"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Interval      string `yaml:"interval"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment variables win either way
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references before parsing so secrets stay out of YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "CHANGE_ME" {
		return errors.New("auth jwt secret is required")
	}
	if c.Notifications.Email.Enabled && c.Notifications.Email.SendGridKey == "" {
		return errors.New("notifications.email.sendgrid_key is required when email is enabled")
	}
	if c.Notifications.Telegram.Enabled && c.Notifications.Telegram.BotToken == "" {
		return errors.New("notifications.telegram.bot_token is required when telegram is enabled")
	}
	if c.Google.Enabled && c.Google.GoogleCredentialsFile == "" {
		return errors.New("google.credentials_file is required when the sheets mirror is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RateLimit.RPS == 0 {
		c.HTTP.RateLimit.RPS = 10
	}
	if c.HTTP.RateLimit.Burst == 0 {
		c.HTTP.RateLimit.Burst = 20
	}
	if c.Auth.AccessTTLMinutes == 0 {
		c.Auth.AccessTTLMinutes = 15
	}
	if c.Auth.RefreshTTLDays == 0 {
		c.Auth.RefreshTTLDays = 30
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}
	if c.Auth.RefreshCookieName == "" {
		c.Auth.RefreshCookieName = "hut_refresh"
	}
	if c.Auth.RefreshCookiePath == "" {
		c.Auth.RefreshCookiePath = "/api/auth"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
