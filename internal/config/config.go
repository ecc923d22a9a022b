package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Order     OrderConfig     `mapstructure:"order"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// ApprovalConfig holds approval engine configuration
type ApprovalConfig struct {
	// Requests above this amount additionally require level-2 approval.
	LevelTwoThreshold float64 `mapstructure:"level_two_threshold"`
}

// OrderConfig holds purchase order generation configuration
type OrderConfig struct {
	NumberMaxAttempts int    `mapstructure:"number_max_attempts"`
	DefaultVendor     string `mapstructure:"default_vendor"`
	ExportDir         string `mapstructure:"export_dir"`
}

// ReconcileConfig holds receipt reconciliation configuration
type ReconcileConfig struct {
	VendorWeight    float64 `mapstructure:"vendor_weight"`
	TotalWeight     float64 `mapstructure:"total_weight"`
	ItemsWeight     float64 `mapstructure:"items_weight"`
	DateWeight      float64 `mapstructure:"date_weight"`
	ReviewThreshold float64 `mapstructure:"review_threshold"`
}

// WorkerConfig holds background job processing configuration
type WorkerConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/procurement.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Approval defaults
	viper.SetDefault("approval.level_two_threshold", 1000.0)

	// Order defaults
	viper.SetDefault("order.number_max_attempts", 10)
	viper.SetDefault("order.default_vendor", "Unknown Vendor")
	viper.SetDefault("order.export_dir", "generated_orders")

	// Reconcile defaults
	viper.SetDefault("reconcile.vendor_weight", 0.25)
	viper.SetDefault("reconcile.total_weight", 0.40)
	viper.SetDefault("reconcile.items_weight", 0.30)
	viper.SetDefault("reconcile.date_weight", 0.05)
	viper.SetDefault("reconcile.review_threshold", 0.8)

	// Worker defaults
	viper.SetDefault("worker.poll_interval", 5*time.Second)
	viper.SetDefault("worker.max_attempts", 5)
	viper.SetDefault("worker.initial_backoff", 2*time.Second)
	viper.SetDefault("worker.max_backoff", 5*time.Minute)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("approval.level_two_threshold", "APPROVAL_LEVEL_TWO_THRESHOLD")
	viper.BindEnv("reconcile.review_threshold", "RECONCILE_REVIEW_THRESHOLD")
	viper.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Approval.LevelTwoThreshold < 0 {
		return fmt.Errorf("approval.level_two_threshold must not be negative")
	}

	if c.Order.NumberMaxAttempts < 1 {
		return fmt.Errorf("order.number_max_attempts must be at least 1")
	}

	sum := c.Reconcile.VendorWeight + c.Reconcile.TotalWeight +
		c.Reconcile.ItemsWeight + c.Reconcile.DateWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("reconcile weights must sum to 1.0, got %.4f", sum)
	}
	for name, w := range map[string]float64{
		"reconcile.vendor_weight": c.Reconcile.VendorWeight,
		"reconcile.total_weight":  c.Reconcile.TotalWeight,
		"reconcile.items_weight":  c.Reconcile.ItemsWeight,
		"reconcile.date_weight":   c.Reconcile.DateWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Reconcile.ReviewThreshold < 0 || c.Reconcile.ReviewThreshold > 1 {
		return fmt.Errorf("reconcile.review_threshold must be between 0 and 1")
	}

	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be at least 1")
	}
	if c.Worker.InitialBackoff <= 0 {
		return fmt.Errorf("worker.initial_backoff must be positive")
	}

	return nil
}
