package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // scheduler.timezone must resolve on hosts without zoneinfo

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"apples-watch/internal/logging"
)

// DefaultSourceURL is the Ohio Apples to Apples residential electric comparison page.
const DefaultSourceURL = "https://energychoice.ohio.gov/ApplesToApplesComparision.aspx?Category=Electric&TerritoryId=4&RateCode=1"

// ErrDatabaseNotConfigured is returned when no DSN can be assembled for the relational sink.
var ErrDatabaseNotConfigured = errors.New("database connection parameters not configured")

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Source    SourceConfig    `mapstructure:"source"`
	Database  DatabaseConfig  `mapstructure:"database"`
	CSV       CSVConfig       `mapstructure:"csv"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig describes the comparison page and how it is fetched.
type SourceConfig struct {
	URL                string        `mapstructure:"url"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgent          string        `mapstructure:"user_agent"`
	Referer            string        `mapstructure:"referer"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the selection history.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CSVConfig controls the flat-file writer.
type CSVConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AlertsConfig points at the alert rule store and the optional Telegram channel.
type AlertsConfig struct {
	DBPath   string         `mapstructure:"db_path"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SMTPConfig carries outgoing mail parameters for alert delivery.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	StartTLS bool          `mapstructure:"starttls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig governs the watch loop.
type SchedulerConfig struct {
	Cron       string `mapstructure:"cron"`
	Timezone   string `mapstructure:"timezone"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ServerConfig configures the local alert API.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from an optional .env file, config file, environment, and defaults.
func Load(path, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("APPLESWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the environment names the scraper has always honoured.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"database.dsn":      {"APPLESWATCH_DATABASE_DSN", "APPLES_DB_DSN"},
		"database.host":     {"APPLESWATCH_DATABASE_HOST", "PGHOST"},
		"database.port":     {"APPLESWATCH_DATABASE_PORT", "PGPORT"},
		"database.name":     {"APPLESWATCH_DATABASE_NAME", "PGDATABASE"},
		"database.user":     {"APPLESWATCH_DATABASE_USER", "PGUSER"},
		"database.password": {"APPLESWATCH_DATABASE_PASSWORD", "PGPASSWORD"},
		"database.sslmode":  {"APPLESWATCH_DATABASE_SSLMODE", "PGSSLMODE"},
		"alerts.db_path":    {"APPLESWATCH_ALERTS_DB_PATH", "ALERTS_DB"},
		"smtp.host":         {"APPLESWATCH_SMTP_HOST", "ALERT_SMTP_HOST"},
		"smtp.port":         {"APPLESWATCH_SMTP_PORT", "ALERT_SMTP_PORT"},
		"smtp.username":     {"APPLESWATCH_SMTP_USERNAME", "ALERT_SMTP_USER"},
		"smtp.password":     {"APPLESWATCH_SMTP_PASSWORD", "ALERT_SMTP_PASS"},
		"smtp.from":         {"APPLESWATCH_SMTP_FROM", "ALERT_SMTP_FROM"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "appleswatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("source.url", DefaultSourceURL)
	v.SetDefault("source.insecure_skip_verify", false)
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("source.referer", "https://energychoice.ohio.gov/")
	v.SetDefault("source.request_timeout", "25s")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "apples_db")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("csv.enabled", true)
	v.SetDefault("csv.path", "apples_to_apples_snapshot_v2.csv")

	v.SetDefault("alerts.db_path", "")
	v.SetDefault("alerts.telegram.enabled", false)
	v.SetDefault("alerts.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.starttls", true)
	v.SetDefault("smtp.timeout", "20s")

	v.SetDefault("scheduler.cron", "0 */6 * * *")
	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("metrics.job", "appleswatch")

	v.SetDefault("server.listen", "127.0.0.1:5000")

	v.SetDefault("export.max_data_points", 5000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return fmt.Errorf("source.url must be configured")
	}
	if _, err := url.ParseRequestURI(c.Source.URL); err != nil {
		return fmt.Errorf("source.url is invalid: %w", err)
	}
	if c.Source.RequestTimeout < 0 {
		return fmt.Errorf("source.request_timeout cannot be negative")
	}
	if c.CSV.Enabled && strings.TrimSpace(c.CSV.Path) == "" {
		return fmt.Errorf("csv.path must be set when csv output is enabled")
	}
	if strings.TrimSpace(c.Scheduler.Cron) == "" {
		return fmt.Errorf("scheduler.cron must be configured")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone is invalid: %w", err)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port must be between 1 and 65535")
	}
	if c.Alerts.Telegram.Enabled {
		if c.Alerts.Telegram.BotToken == "" {
			return fmt.Errorf("alerts.telegram.bot_token 必须配置")
		}
		if c.Alerts.Telegram.ChatID == "" {
			return fmt.Errorf("alerts.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveDSN returns the explicit DSN, or assembles one from PG-style parts.
// User and password are both required when no DSN is given.
func (d DatabaseConfig) ResolveDSN() (string, error) {
	if dsn := strings.TrimSpace(d.DSN); dsn != "" {
		return dsn, nil
	}
	if d.User == "" || d.Password == "" {
		return "", ErrDatabaseNotConfigured
	}

	parts := []string{
		"host=" + quoteDSNValue(d.Host),
		fmt.Sprintf("port=%d", d.Port),
		"dbname=" + quoteDSNValue(d.Name),
		"user=" + quoteDSNValue(d.User),
		"password=" + quoteDSNValue(d.Password),
	}
	if d.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSNValue(d.SSLMode))
	}
	if d.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(d.ConnectTimeout.Seconds())))
	}
	return strings.Join(parts, " "), nil
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// SMTPConfigured reports whether enough SMTP settings exist to send mail.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != "" && c.SMTP.From != ""
}

// Location returns the scheduler time zone, defaulting to local time.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
