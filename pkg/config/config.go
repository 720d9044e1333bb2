package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the schnorrauthd server configuration.
//
// This structure captures every static configuration aspect of the server:
// network binding, the modular-exponentiation group in use, logging, pairing
// token lifetime, the persistence backend, and the admin HTTP surface.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SCHNORRAUTH_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Server controls the TCP listener the protocol handler is served on.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Group selects the modular-exponentiation group used for the Schnorr
	// protocol (see internal/group for the registered group ids).
	Group GroupConfig `mapstructure:"group" yaml:"group"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time the admin API's graceful shutdown
	// may take. Protocol connections are not drained on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Token controls the pairing token lifetime and encoding length.
	Token TokenConfig `mapstructure:"token" yaml:"token"`

	// Storage selects and configures the persistence backend for users,
	// devices, and pairing tokens.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin contains the admin/control HTTP API configuration.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// ServerConfig controls the protocol listener.
type ServerConfig struct {
	// Host is the address to bind the protocol listener to.
	// Default: "0.0.0.0"
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// Port is the TCP port the protocol listener accepts connections on.
	// Default: 7733
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// MaxConnections is loaded, defaulted and validated, but the acceptor
	// does not apply it: the number of concurrent connections is not limited.
	// Default: 1024
	MaxConnections int `mapstructure:"max_connections" validate:"omitempty,min=1" yaml:"max_connections"`

	// IdleTimeout is loaded and defaulted, but the acceptor does not apply
	// it: a connection that sends nothing is not closed.
	// Default: 5m
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// GroupConfig selects the modular-exponentiation group.
type GroupConfig struct {
	// ID names a group registered in internal/group.
	// Valid values: "modp1536" (production), "test23" (p=23 toy group, tests only)
	// Default: "modp1536"
	ID string `mapstructure:"id" validate:"required,oneof=modp1536 test23" yaml:"id"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TokenConfig holds pairing token lifetime and shape settings. They are
// loaded and validated, but internal/authstore does not read them: minted
// tokens always last authstore.TokenTTL (10 minutes) and are 32 hex
// characters long, whatever these fields say.
type TokenConfig struct {
	// Expiry is the configured pairing token lifetime (not applied).
	// Default: 10m
	Expiry time.Duration `mapstructure:"expiry" validate:"required,gt=0" yaml:"expiry"`

	// Length is the configured pairing token hex length (not applied).
	// Default: 32
	Length int `mapstructure:"length" validate:"required,min=8" yaml:"length"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver selects the storage backend.
	// Valid values: "memory" (default, process-local), "sqlite", "postgres"
	Driver string `mapstructure:"driver" validate:"required,oneof=memory sqlite postgres" yaml:"driver"`

	// DSN is the data source name for sqlite/postgres drivers. Unused for memory.
	DSN string `mapstructure:"dsn" validate:"required_unless=Driver memory" yaml:"dsn"`
}

// MetricsConfig configures Prometheus metrics. The /metrics endpoint is
// served on the admin API's router; no separate metrics listener is opened.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is loaded and validated but not used to bind any listener.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AdminConfig contains the admin/control HTTP API configuration.
type AdminConfig struct {
	// Enabled controls whether the admin HTTP API is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the address the admin API binds to.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port the admin API is served on.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// JWTSecret signs bearer tokens issued to admin API callers.
	// Must be at least 32 bytes long, matching the underlying JWT service.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true,omitempty,min=32" yaml:"jwt_secret"`

	// JWTIssuer is the "iss" claim stamped on issued tokens.
	JWTIssuer string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`

	// AccessTokenDuration is how long an admin access token remains valid.
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`

	// RefreshTokenDuration is loaded but not used: the admin API issues
	// access tokens only, no refresh tokens.
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" yaml:"refresh_token_duration"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SCHNORRAUTH_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  schnorrauthd init\n\n"+
				"Or specify a custom config file:\n"+
				"  schnorrauthd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  schnorrauthd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the config may carry the admin JWT secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate runs struct-tag validation over the configuration.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SCHNORRAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the combined mapstructure decode hook for time.Duration.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings and numbers to time.Duration so config
// files can use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "schnorrauthd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "schnorrauthd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
