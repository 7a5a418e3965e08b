package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Security      SecurityConfig      `mapstructure:"security"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Runner        RunnerConfig        `mapstructure:"runner"`
	Executor      ExecutorConfig      `mapstructure:"executor"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Renewal       RenewalConfig       `mapstructure:"renewal"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string     `mapstructure:"level"`
	Encoding         string     `mapstructure:"encoding"`
	OutputPaths      []string   `mapstructure:"output_paths"`
	ErrorOutputPaths []string   `mapstructure:"error_output_paths"`
	File             FileConfig `mapstructure:"file"`
}

// FileConfig enables a rotated log file next to the regular outputs.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type SecurityConfig struct {
	// EncryptionKey decrypts secret settings stored in the database.
	EncryptionKey string `mapstructure:"encryption_key"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RunnerConfig selects where system commands (systemctl, certbot) run.
type RunnerConfig struct {
	Mode       string        `mapstructure:"mode"` // local or ssh
	UseSudo    bool          `mapstructure:"use_sudo"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	PrivateKey string        `mapstructure:"private_key"`
}

type ExecutorConfig struct {
	Workers        int           `mapstructure:"workers"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	GracePeriod    time.Duration `mapstructure:"grace_period"`
}

type AlertsConfig struct {
	Enabled          bool             `mapstructure:"enabled"`
	Interval         time.Duration    `mapstructure:"interval"`
	Cooldown         time.Duration    `mapstructure:"cooldown"`
	PruneFactor      int              `mapstructure:"prune_factor"`
	Thresholds       ThresholdsConfig `mapstructure:"thresholds"`
	// HistoryRetention bounds how long alert records are kept.
	HistoryRetention time.Duration    `mapstructure:"history_retention"`
	CleanupSchedule  string           `mapstructure:"cleanup_schedule"`
}

type ThresholdsConfig struct {
	CPUWarning           float64       `mapstructure:"cpu_warning"`
	CPUCritical          float64       `mapstructure:"cpu_critical"`
	MemoryWarning        float64       `mapstructure:"memory_warning"`
	MemoryCritical       float64       `mapstructure:"memory_critical"`
	DiskWarning          float64       `mapstructure:"disk_warning"`
	DiskCritical         float64       `mapstructure:"disk_critical"`
	DiskPath             string        `mapstructure:"disk_path"`
	Services             []string      `mapstructure:"services"`
	AuthFailureThreshold int           `mapstructure:"auth_failure_threshold"`
	IntrusionThreshold   int           `mapstructure:"intrusion_threshold"`
	SecurityWindow       time.Duration `mapstructure:"security_window"`
	CertExpiryLead       time.Duration `mapstructure:"cert_expiry_lead"`
	CertExpiryCritical   time.Duration `mapstructure:"cert_expiry_critical"`
	CertExpiryQuiet      time.Duration `mapstructure:"cert_expiry_quiet"`
}

type NotificationsConfig struct {
	Timeout  time.Duration         `mapstructure:"timeout"`
	Email    EmailChannelConfig    `mapstructure:"email"`
	Slack    WebhookChannelConfig  `mapstructure:"slack"`
	Discord  WebhookChannelConfig  `mapstructure:"discord"`
	Telegram TelegramChannelConfig `mapstructure:"telegram"`
}

type EmailChannelConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	// Provider is "smtp" or "mailgun".
	Provider       string   `mapstructure:"provider"`
	From           string   `mapstructure:"from"`
	To             []string `mapstructure:"to"`
	SMTPHost       string   `mapstructure:"smtp_host"`
	SMTPPort       int      `mapstructure:"smtp_port"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	MailgunKey     string   `mapstructure:"mailgun_key"`
	Domain         string   `mapstructure:"domain"`
	// MailgunAPIBase overrides the API endpoint, e.g. the EU region.
	MailgunAPIBase string   `mapstructure:"mailgun_api_base"`
}

type WebhookChannelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
}

type TelegramChannelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url"`
}

type RenewalConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Schedule    string        `mapstructure:"schedule"`
	LeadTime    time.Duration `mapstructure:"lead_time"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	OwnerID     string        `mapstructure:"owner_id"`
	Email       string        `mapstructure:"email"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})
	v.SetDefault("logger.file.max_size_mb", 100)
	v.SetDefault("logger.file.max_backups", 5)
	v.SetDefault("logger.file.max_age_days", 30)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "hostpanel:alerts:")

	v.SetDefault("runner.mode", "local")
	v.SetDefault("runner.timeout", 2*time.Minute)
	v.SetDefault("runner.port", 22)

	v.SetDefault("executor.workers", 8)
	v.SetDefault("executor.default_timeout", 30*time.Minute)
	v.SetDefault("executor.grace_period", 30*time.Second)

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.interval", 2*time.Minute)
	v.SetDefault("alerts.cooldown", 30*time.Minute)
	v.SetDefault("alerts.prune_factor", 4)
	v.SetDefault("alerts.history_retention", 30*24*time.Hour)
	v.SetDefault("alerts.cleanup_schedule", "@daily")
	v.SetDefault("alerts.thresholds.cpu_warning", 85.0)
	v.SetDefault("alerts.thresholds.cpu_critical", 95.0)
	v.SetDefault("alerts.thresholds.memory_warning", 85.0)
	v.SetDefault("alerts.thresholds.memory_critical", 95.0)
	v.SetDefault("alerts.thresholds.disk_warning", 80.0)
	v.SetDefault("alerts.thresholds.disk_critical", 90.0)
	v.SetDefault("alerts.thresholds.disk_path", "/")
	v.SetDefault("alerts.thresholds.services", []string{"nginx", "mysql", "pdns", "postfix", "dovecot"})
	v.SetDefault("alerts.thresholds.auth_failure_threshold", 10)
	v.SetDefault("alerts.thresholds.intrusion_threshold", 20)
	v.SetDefault("alerts.thresholds.security_window", 10*time.Minute)
	v.SetDefault("alerts.thresholds.cert_expiry_lead", 14*24*time.Hour)
	v.SetDefault("alerts.thresholds.cert_expiry_critical", 3*24*time.Hour)
	v.SetDefault("alerts.thresholds.cert_expiry_quiet", time.Duration(0))

	v.SetDefault("notifications.timeout", 10*time.Second)
	v.SetDefault("notifications.email.provider", "smtp")
	v.SetDefault("notifications.email.smtp_port", 587)
	v.SetDefault("notifications.slack.username", "hostpanel")
	v.SetDefault("notifications.discord.username", "hostpanel")
	v.SetDefault("notifications.telegram.api_url", "https://api.telegram.org")

	v.SetDefault("renewal.enabled", true)
	v.SetDefault("renewal.schedule", "0 */6 * * *")
	v.SetDefault("renewal.lead_time", 30*24*time.Hour)
	v.SetDefault("renewal.max_attempts", 5)
	v.SetDefault("renewal.task_timeout", 10*time.Minute)
	v.SetDefault("renewal.owner_id", "system")
}

// Validate checks the values the core depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Executor.Workers < 1 {
		errs = append(errs, errors.New("executor.workers must be greater than 0"))
	}
	if c.Executor.GracePeriod <= 0 {
		errs = append(errs, errors.New("executor.grace_period must be positive"))
	}
	if c.Alerts.Interval <= 0 {
		errs = append(errs, errors.New("alerts.interval must be positive"))
	}
	if c.Alerts.Cooldown <= 0 {
		errs = append(errs, errors.New("alerts.cooldown must be positive"))
	}
	if c.Alerts.PruneFactor < 1 {
		errs = append(errs, errors.New("alerts.prune_factor must be at least 1"))
	}
	if q := c.Alerts.Thresholds.CertExpiryQuiet; q < 0 || q >= c.Alerts.Thresholds.CertExpiryLead {
		errs = append(errs, errors.New("alerts.thresholds.cert_expiry_quiet must be at least 0 and below cert_expiry_lead"))
	}
	if c.Renewal.MaxAttempts < 1 {
		errs = append(errs, errors.New("renewal.max_attempts must be at least 1"))
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Runner.Mode {
	case "local", "ssh":
	default:
		errs = append(errs, fmt.Errorf("runner.mode %q is not supported", c.Runner.Mode))
	}
	return errors.Join(errs...)
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HOSTPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
