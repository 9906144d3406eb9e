package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SELFHEAL_SERVER_ADDR
const EnvPrefix = "SELFHEAL"

// Config is the complete runtime configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Browser BrowserConfig `mapstructure:"browser"`
	Healing HealingConfig `mapstructure:"healing"`
	Advisor AdvisorConfig `mapstructure:"advisor"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// ServerConfig configures the HTTP API and the realtime channel
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins lists websocket origins; empty allows same host only
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	MaxMessageBytes int64    `mapstructure:"max_message_bytes"`
}

// StorageConfig selects the locator and script backend
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// BrowserConfig configures the browser driver
type BrowserConfig struct {
	Engine            string        `mapstructure:"engine"`
	Headless          bool          `mapstructure:"headless"`
	SlowMo            time.Duration `mapstructure:"slow_mo"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	PickerInterval    time.Duration `mapstructure:"picker_interval"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	WebDriverURL      string        `mapstructure:"webdriver_url"`
	ChromeDriverPath  string        `mapstructure:"chromedriver_path"`
	ChromeDriverPort  int           `mapstructure:"chromedriver_port"`
}

// HealingConfig configures execution sessions
type HealingConfig struct {
	InPagePicker bool     `mapstructure:"in_page_picker"`
	MaxCodeBytes int      `mapstructure:"max_code_bytes"`
	AllowedHosts []string `mapstructure:"allowed_hosts"`
}

// AdvisorConfig configures the optional locator advisor
type AdvisorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggerConfig configures console and file logging
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogFile    string `mapstructure:"log_file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	// -- Server --
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_message_bytes", 1<<20)

	// -- Storage --
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.path", "data/selfheal.db")
	v.SetDefault("storage.dsn", "")

	// -- Browser --
	v.SetDefault("browser.engine", "playwright")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.slow_mo", "0s")
	v.SetDefault("browser.action_timeout", "5s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.picker_interval", "500ms")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.webdriver_url", "")
	v.SetDefault("browser.chromedriver_path", "")
	v.SetDefault("browser.chromedriver_port", 9515)

	// -- Healing --
	v.SetDefault("healing.in_page_picker", true)
	v.SetDefault("healing.max_code_bytes", 64*1024)
	v.SetDefault("healing.allowed_hosts", []string{})

	// -- Advisor --
	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.api_key", "")
	v.SetDefault("advisor.model", "gpt-4o-mini")
	v.SetDefault("advisor.base_url", "")
	v.SetDefault("advisor.timeout", "15s")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
}

// Load reads .env, the optional config file and SELFHEAL_* variables into v.
// An empty cfgFile looks for ./config.yaml and tolerates its absence.
func Load(v *viper.Viper, cfgFile string) error {
	// .env is optional
	_ = godotenv.Load()

	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// NewConfigFromViper unmarshals and validates the configuration
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// the advisor also accepts the conventional OpenAI variable
	v.BindEnv("advisor.api_key", EnvPrefix+"_ADVISOR_API_KEY", "OPENAI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.max_message_bytes must be a positive integer")
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of file, sqlite, postgres")
	}

	switch c.Browser.Engine {
	case "playwright", "rod", "selenium":
	default:
		return fmt.Errorf("browser.engine must be one of playwright, rod, selenium")
	}
	if c.Browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be positive")
	}

	if c.Advisor.Enabled && c.Advisor.APIKey == "" {
		return fmt.Errorf("advisor.api_key is required when the advisor is enabled")
	}
	return nil
}
