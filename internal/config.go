package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
}

type ServerConfig struct {
	Env               string        `mapstructure:"env"`
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	AdminTokenTTL time.Duration `mapstructure:"admin_token_ttl"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
}

// GatewayMode picks the payment backend once at startup.
type GatewayMode string

const (
	GatewayModeAuto      GatewayMode = "auto"
	GatewayModeRemote    GatewayMode = "remote"
	GatewayModeSimulator GatewayMode = "simulator"
	GatewayModeFallback  GatewayMode = "fallback"
)

type PaymentConfig struct {
	Mode        GatewayMode       `mapstructure:"mode"`
	Settlement  string            `mapstructure:"settlement"`
	Acquirer    AcquirerConfig    `mapstructure:"acquirer"`
	MercadoPago MercadoPagoConfig `mapstructure:"mercadopago"`
	Orders      OrdersConfig      `mapstructure:"orders"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	RandomSeed  uint64            `mapstructure:"random_seed"`
	CallTimeout time.Duration     `mapstructure:"call_timeout"`
	Sandbox     SandboxConfig     `mapstructure:"sandbox"`
}

// AcquirerConfig points at the card/PIX/boleto acquirer HTTP API.
type AcquirerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MercadoPagoConfig struct {
	AccessToken     string `mapstructure:"access_token"`
	NotificationURL string `mapstructure:"notification_url"`
	PayerEmail      string `mapstructure:"payer_email"`
	PixKey          string `mapstructure:"pix_key"`
}

type OrdersConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MonitorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// SandboxConfig drives the local acquirer started by `worker acquirer`.
type SandboxConfig struct {
	Port           int           `mapstructure:"port"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
	SettleDelayMin time.Duration `mapstructure:"settle_delay_min"`
	SettleDelayMax time.Duration `mapstructure:"settle_delay_max"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Interval time.Duration `mapstructure:"interval"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Endpoint     string  `mapstructure:"endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the config for container deployments where no
// config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Env:               getEnv("APP_ENV", "production"),
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			AdminTokenTTL: getEnvAsDuration("ADMIN_TOKEN_TTL", time.Hour),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		},
		Payment: PaymentConfig{
			Mode:        GatewayMode(getEnv("PAYMENT_MODE", string(GatewayModeAuto))),
			Settlement:  getEnv("PAYMENT_SETTLEMENT", "auto"),
			RandomSeed:  uint64(getEnvAsInt("PAYMENT_RANDOM_SEED", 0)),
			CallTimeout: getEnvAsDuration("PAYMENT_CALL_TIMEOUT", 5*time.Second),
			Acquirer: AcquirerConfig{
				BaseURL: getEnv("ACQUIRER_BASE_URL", ""),
				APIKey:  getEnv("ACQUIRER_API_KEY", ""),
				Timeout: getEnvAsDuration("ACQUIRER_TIMEOUT", 5*time.Second),
			},
			MercadoPago: MercadoPagoConfig{
				AccessToken:     getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
				NotificationURL: getEnv("MERCADOPAGO_NOTIFICATION_URL", ""),
				PayerEmail:      getEnv("MERCADOPAGO_PAYER_EMAIL", ""),
				PixKey:          getEnv("MERCADOPAGO_PIX_KEY", ""),
			},
			Orders: OrdersConfig{
				BaseURL: getEnv("ORDERS_BASE_URL", ""),
				APIKey:  getEnv("ORDERS_API_KEY", ""),
				Timeout: getEnvAsDuration("ORDERS_TIMEOUT", 5*time.Second),
			},
			Monitor: MonitorConfig{
				Interval:  getEnvAsDuration("MONITOR_INTERVAL", time.Minute),
				BatchSize: getEnvAsInt("MONITOR_BATCH_SIZE", 200),
			},
			Sandbox: SandboxConfig{
				Port:           getEnvAsInt("SANDBOX_PORT", 9090),
				WebhookURL:     getEnv("SANDBOX_WEBHOOK_URL", ""),
				WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
				MaxWorkers:     getEnvAsInt("SANDBOX_MAX_WORKERS", 10),
				JobQueueSize:   getEnvAsInt("SANDBOX_JOB_QUEUE_SIZE", 100),
				SettleDelayMin: getEnvAsDuration("SANDBOX_SETTLE_DELAY_MIN", 2*time.Second),
				SettleDelayMax: getEnvAsDuration("SANDBOX_SETTLE_DELAY_MAX", 10*time.Second),
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled:  getEnv("METRICS_ENABLED", "false") == "true",
				Endpoint: getEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", ""),
				Interval: getEnvAsDuration("METRICS_INTERVAL", 30*time.Second),
			},
			Tracing: TracingConfig{
				Enabled:      getEnv("TRACING_ENABLED", "false") == "true",
				ServiceName:  getEnv("OTEL_SERVICE_NAME", "estore-payments"),
				SamplingRate: 1,
				Endpoint:     getEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	switch c.Mode {
	case "", GatewayModeAuto, GatewayModeSimulator, GatewayModeFallback:
	case GatewayModeRemote:
		if c.Acquirer.BaseURL == "" && c.MercadoPago.AccessToken == "" {
			return errors.New("remote mode needs acquirer.base_url or mercadopago.access_token")
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	switch c.Settlement {
	case "", "auto", "simulated", "mercadopago", "acquirer":
	default:
		return fmt.Errorf("unknown settlement strategy %q", c.Settlement)
	}

	if c.Acquirer.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Acquirer.BaseURL); err != nil {
			return fmt.Errorf("invalid acquirer.base_url: %w", err)
		}
	}
	if c.Monitor.BatchSize < 0 {
		return errors.New("monitor.batch_size cannot be negative")
	}
	return nil
}
