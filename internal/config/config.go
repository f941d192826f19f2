package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const envPrefix = "LIFEDROP"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Notification NotificationConfig `mapstructure:"notification"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	// Enabled false runs the realtime relay in-process only.
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Channel        string        `mapstructure:"channel"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	RPS   float64       `mapstructure:"rps"`
	Burst int           `mapstructure:"burst"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type NotificationConfig struct {
	ChannelTimeout    time.Duration `mapstructure:"channel_timeout"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	LowStockThreshold int           `mapstructure:"low_stock_threshold"`
	SearchRadiusKm    float64       `mapstructure:"search_radius_km"`
	AppURL            string        `mapstructure:"app_url"`
	Email             EmailConfig   `mapstructure:"email"`
	Push              PushConfig    `mapstructure:"push"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type PushConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	// ProjectID is the Firebase project that owns the device tokens.
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	Endpoint        string `mapstructure:"endpoint"`
}

type WorkerConfig struct {
	RequestExpiryInterval      time.Duration `mapstructure:"request_expiry_interval"`
	UnitExpiryInterval         time.Duration `mapstructure:"unit_expiry_interval"`
	ReminderInterval           time.Duration `mapstructure:"reminder_interval"`
	NotificationExpiryInterval time.Duration `mapstructure:"notification_expiry_interval"`
	BatchSize                  int           `mapstructure:"batch_size"`
	HealthPort                 int           `mapstructure:"health_port"`
}

// Secrets are read only from the environment, never from config files.
type Secrets struct {
	JWTSecret          string `envconfig:"JWT_SECRET"`
	DatabasePassword   string `envconfig:"DB_PASSWORD"`
	SMTPPassword       string `envconfig:"SMTP_PASSWORD"`
	FCMCredentialsJSON string `envconfig:"FCM_CREDENTIALS_JSON"`
	RedisURL           string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "lifedrop")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "lifedrop:realtime")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.connect_timeout", 15*time.Second)

	v.SetDefault("jwt.issuer", "lifedrop")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.ttl", 10*time.Minute)

	v.SetDefault("cors.allow_origins", []string{"*"})

	v.SetDefault("notification.channel_timeout", 5*time.Second)
	v.SetDefault("notification.max_concurrency", 16)
	v.SetDefault("notification.low_stock_threshold", 5)
	v.SetDefault("notification.search_radius_km", 25)
	v.SetDefault("notification.app_url", "http://localhost:3000")
	v.SetDefault("notification.email.port", 587)
	v.SetDefault("notification.email.from", "LifeDrop <no-reply@lifedrop.local>")
	v.SetDefault("notification.push.endpoint", "https://fcm.googleapis.com")

	v.SetDefault("worker.request_expiry_interval", time.Minute)
	v.SetDefault("worker.unit_expiry_interval", time.Hour)
	v.SetDefault("worker.reminder_interval", 24*time.Hour)
	v.SetDefault("worker.notification_expiry_interval", time.Hour)
	v.SetDefault("worker.batch_size", 200)
	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads config.yml from the usual locations, overlays LIFEDROP_*
// environment variables and finally the secrets. A missing file is fine.
func LoadConfig(paths ...string) (*Config, error) {
	// .env is a developer convenience; absence is not an error
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	config.applySecrets(secrets)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.SMTPPassword != "" {
		c.Notification.Email.Password = s.SMTPPassword
	}
	if s.FCMCredentialsJSON != "" {
		c.Notification.Push.CredentialsJSON = s.FCMCredentialsJSON
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
}

func (c *Config) Validate() error {
	var problems []string
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required (set LIFEDROP_JWT_SECRET)")
	}
	if c.Notification.ChannelTimeout <= 0 {
		problems = append(problems, "notification.channel_timeout must be positive")
	}
	if c.Notification.Email.Enabled && c.Notification.Email.Host == "" {
		problems = append(problems, "notification.email.host is required when email is enabled")
	}
	if c.Notification.Push.Enabled && c.Notification.Push.ProjectID == "" {
		problems = append(problems, "notification.push.project_id is required when push is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
